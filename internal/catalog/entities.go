package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EntitiesSuffix marks new-entity files.
const EntitiesSuffix = ".entities.json"

// NewEntity is one record of a new-entity file.
type NewEntity struct {
	Name          string
	SanitizedName string
	AssetID       string // 32 lowercase hex digits
	Type          string
}

// NormalizeAssetID parses any textual GUID form and returns it as 32
// lowercase hex digits without dashes.
func NormalizeAssetID(s string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return strings.ReplaceAll(u.String(), "-", ""), true
}

// EntitiesVarName derives the accessor variable name for a new-entity file:
// the sanitized, capitalized base name without the suffix.
func EntitiesVarName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), EntitiesSuffix)
	return Sanitize(Capitalize(base))
}

type newEntityRecord struct {
	Name    json.RawMessage `json:"name"`
	AssetID json.RawMessage `json:"assetId"`
	Type    json.RawMessage `json:"type"`
}

// ReadNewEntities reads a new-entity file. A file that cannot be read or is
// not a JSON array is an error; bad records are skipped and counted.
func ReadNewEntities(path string) ([]NewEntity, Stats, error) {
	var st Stats
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, st, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, st, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	var out []NewEntity
	for _, raw := range raws {
		var rec newEntityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			st.Skipped++
			continue
		}
		name, ok1 := rawString(rec.Name)
		rawID, ok2 := rawString(rec.AssetID)
		typ, ok3 := rawString(rec.Type)
		if !ok1 || !ok2 || !ok3 {
			st.Skipped++
			continue
		}
		id, ok := NormalizeAssetID(rawID)
		if !ok {
			st.Skipped++
			continue
		}
		st.Read++
		out = append(out, NewEntity{Name: name, SanitizedName: Sanitize(name), AssetID: id, Type: typ})
	}
	return out, st, nil
}
