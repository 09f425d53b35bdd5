package catalog

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
)

// ErrNoEntries is reported when a catalog document has no top-level
// Entries array.
var ErrNoEntries = errors.New("catalog: no Entries array")

// Stats counts the outcome of one read of a catalog.
type Stats struct {
	Read    int
	Skipped int
	// Err is the ingestion problem that ended the read early, if any.
	// Ingestion problems never abort a pass.
	Err error
}

// Parse streams the entries of the catalog document in r. Records missing
// Guid, Name or TypeFullName are skipped. Parsing stops quietly at the first
// malformed fragment.
func Parse(r io.Reader) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var st Stats
		parse(r, &st, yield)
	}
}

type record struct {
	Guid         json.RawMessage
	Name         json.RawMessage
	TypeFullName json.RawMessage
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func parse(r io.Reader, st *Stats, yield func(Entry) bool) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		st.Err = err
		return
	}
	found := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			st.Err = fmt.Errorf("catalog: %w", err)
			return
		}
		key, _ := tok.(string)
		if !strings.EqualFold(key, "Entries") {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				st.Err = fmt.Errorf("catalog: skip %q: %w", key, err)
				return
			}
			continue
		}
		found = true
		if err := expectDelim(dec, '['); err != nil {
			st.Err = err
			return
		}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				st.Err = fmt.Errorf("catalog: entry %d: %w", st.Read+st.Skipped, err)
				return
			}
			var rec record
			if err := json.Unmarshal(raw, &rec); err != nil {
				st.Skipped++
				continue
			}
			id, ok1 := rawString(rec.Guid)
			name, ok2 := rawString(rec.Name)
			typeName, ok3 := rawString(rec.TypeFullName)
			if !ok1 || !ok2 || !ok3 {
				st.Skipped++
				continue
			}
			st.Read++
			if !yield(NewEntry(id, name, typeName)) {
				return
			}
		}
		if _, err := dec.Token(); err != nil {
			st.Err = fmt.Errorf("catalog: %w", err)
			return
		}
	}
	if !found {
		st.Err = ErrNoEntries
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("catalog: expected %q, got %v", want, tok)
	}
	return nil
}

// Reader re-reads a catalog file on every range; the file, not any cache, is
// the system of record.
type Reader struct {
	path string

	mu    sync.Mutex
	stats Stats
}

// Open returns a Reader for the catalog at path. The file is not touched
// until the first range.
func Open(path string) *Reader {
	return &Reader{path: path}
}

// Path returns the catalog file path.
func (r *Reader) Path() string { return r.path }

// All streams the catalog from disk. Stats reflect the most recent range.
func (r *Reader) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var st Stats
		defer func() {
			r.mu.Lock()
			r.stats = st
			r.mu.Unlock()
		}()
		f, err := os.Open(r.path)
		if err != nil {
			st.Err = fmt.Errorf("catalog: open: %w", err)
			return
		}
		defer f.Close()
		parse(f, &st, yield)
	}
}

// Stats returns the counts of the most recent range over All.
func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Hash returns the hex SHA-256 of the catalog file, or "" if it is missing.
func (r *Reader) Hash() (string, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: hash: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("catalog: hash: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
