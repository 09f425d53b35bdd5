package blueprintgen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jward/blueprintgen/internal/emit"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// ErrNoMemberAccess is returned by CompleteAt when the text before the
// offset is not a member access.
var ErrNoMemberAccess = errors.New("blueprintgen: no member access before offset")

// Candidate is one completion for a member access on an accessor value.
type Candidate struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	RawName string `json:"raw_name"`
	Type    string `json:"type"`
}

// Answerer answers completion queries from the Engine's entry cache. A type
// that is not cached yet is joined on its own, reading the catalog once;
// concurrent queries for the same type share that join.
type Answerer struct {
	engine *Engine
}

// Answerer returns an Answerer over the Engine's cache. It is safe to use
// while a pass runs.
func (e *Engine) Answerer() *Answerer {
	return &Answerer{engine: e}
}

// Complete returns the entries of typeName whose final name starts with
// prefix, ignoring case, sorted by name. typeName may be a qualified name,
// a name relative to the root namespace, the short name used for emitted
// accessors, or the accessor value's name ("SpellRefs").
func (a *Answerer) Complete(ctx context.Context, typeName, prefix string) ([]Candidate, error) {
	snap, err := a.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	t, ok := resolveAccessorType(snap, typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", snapshot.ErrTypeNotFound, typeName)
	}

	g, err := a.engine.cache.GetOrCompute(ctx, t.ID, func(ctx context.Context) (*join.Group, error) {
		entries, _, err := a.engine.catalogEntries(ctx)
		if err != nil {
			return nil, err
		}
		return join.New(snap, a.engine.logger).JoinType(ctx, entries, t.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: complete %s: %w", t.ID, err)
	}
	return candidates(g, prefix), nil
}

// CompleteAt completes the member access that ends at offset in src, as in
// "SpellRefs.Fire" with the cursor after "Fire". The selector before the
// dot names the type; the partial identifier after it is the prefix.
func (a *Answerer) CompleteAt(ctx context.Context, src []byte, offset int) ([]Candidate, error) {
	recv, prefix, ok := memberAccessAt(src, offset)
	if !ok {
		return nil, ErrNoMemberAccess
	}
	return a.Complete(ctx, recv, prefix)
}

func candidates(g *join.Group, prefix string) []Candidate {
	if g.Empty() {
		return nil
	}
	lower := strings.ToLower(prefix)
	var out []Candidate
	for _, e := range g.Entries {
		if !strings.HasPrefix(strings.ToLower(e.Name), lower) {
			continue
		}
		out = append(out, Candidate{Name: e.Name, ID: e.ID, RawName: e.RawName, Type: string(g.Type)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolveAccessorType maps the receiver of a completion to its type: first
// the short names emitted accessors use, with or without the Refs suffix,
// then catalog-style lookup.
func resolveAccessorType(snap *snapshot.Snapshot, name string) (*snapshot.Type, bool) {
	name = strings.TrimSpace(name)
	short := strings.TrimSuffix(name, "Refs")
	for id, n := range emit.TypeNames(snap.Types()) {
		if n.Ident == short {
			return snap.Type(id)
		}
	}
	if t, ok := snap.Lookup(name); ok {
		return t, true
	}
	return snap.Lookup(short)
}

// memberAccessAt splits the selector expression ending at offset into the
// identifier before the last dot and the partial identifier after it.
func memberAccessAt(src []byte, offset int) (recv, prefix string, ok bool) {
	if offset < 0 || offset > len(src) {
		return "", "", false
	}
	i := offset
	for i > 0 && isIdentByte(src[i-1]) {
		i--
	}
	prefix = string(src[i:offset])

	j := skipSpaceBack(src, i)
	if j == 0 || src[j-1] != '.' {
		return "", "", false
	}
	end := skipSpaceBack(src, j-1)
	k := end
	for k > 0 && isIdentByte(src[k-1]) {
		k--
	}
	if k == end {
		return "", "", false
	}
	return string(src[k:end]), prefix, true
}

func skipSpaceBack(src []byte, i int) int {
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t' || src[i-1] == '\n' || src[i-1] == '\r') {
		i--
	}
	return i
}

// isIdentByte accepts the ASCII identifier bytes and any byte of a
// multi-byte rune.
func isIdentByte(b byte) bool {
	return b == '_' || b >= 0x80 ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
