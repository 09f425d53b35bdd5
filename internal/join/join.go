// Package join groups catalog entries by the program type they name and
// gives every entry a collision-free identifier within its group.
package join

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"strconv"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// SelfSuffix is appended to an entry named exactly like its type.
const SelfSuffix = "_blueprint"

// cancelCheckInterval is how many entries are read between context checks.
const cancelCheckInterval = 1024

// Entry is a catalog entry with its final, collision-free name.
type Entry struct {
	catalog.Entry
	Name string `json:"name"`
}

// Group holds every entry whose type name resolves to one type, in catalog
// order.
type Group struct {
	Type     snapshot.TypeID `json:"type"`
	TypeName string          `json:"typeName"`
	Entries  []Entry         `json:"entries"`
}

// Empty reports whether the group has no entries. A nil group is empty.
func (g *Group) Empty() bool { return g == nil || len(g.Entries) == 0 }

// Stats counts what one join dropped.
type Stats struct {
	Entries    int
	Unresolved int
	NonPublic  int
	Groups     int
}

// Joiner resolves catalog entries against a program snapshot.
type Joiner struct {
	Program snapshot.Program
	Logger  *slog.Logger
}

// New returns a Joiner over p.
func New(p snapshot.Program, logger *slog.Logger) *Joiner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Joiner{Program: p, Logger: logger}
}

// Join resolves, groups and renames entries, then drops groups whose type is
// not public. Groups come back sorted by type identity; entries keep catalog
// order. Entries whose type name does not resolve are dropped.
func (j *Joiner) Join(ctx context.Context, entries iter.Seq[catalog.Entry]) ([]*Group, error) {
	groups, _, err := j.JoinWithStats(ctx, entries)
	return groups, err
}

// JoinWithStats is Join that also reports what was dropped.
func (j *Joiner) JoinWithStats(ctx context.Context, entries iter.Seq[catalog.Entry]) ([]*Group, Stats, error) {
	var st Stats
	byType := make(map[snapshot.TypeID]*Group)
	types := make(map[snapshot.TypeID]*snapshot.Type)

	var err error
	for e := range entries {
		st.Entries++
		if st.Entries%cancelCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				break
			}
		}
		t, ok := j.Program.Lookup(e.TypeName)
		if !ok {
			st.Unresolved++
			continue
		}
		g, ok := byType[t.ID]
		if !ok {
			g = &Group{Type: t.ID, TypeName: string(t.ID)}
			byType[t.ID] = g
			types[t.ID] = t
		}
		g.Entries = append(g.Entries, Entry{Entry: e})
	}
	if err != nil {
		return nil, st, err
	}

	ids := make([]snapshot.TypeID, 0, len(byType))
	for id := range byType {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	out := make([]*Group, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		t := types[id]
		if !j.Program.IsPublic(t) {
			st.NonPublic++
			continue
		}
		g := byType[id]
		Rename(g.Entries, t.Name)
		out = append(out, g)
	}
	st.Groups = len(out)

	j.Logger.Debug("catalog joined",
		"entries", st.Entries,
		"groups", st.Groups,
		"unresolved", st.Unresolved,
		"non_public", st.NonPublic,
	)
	return out, st, nil
}

// JoinType builds the group for a single type, reading only entries that
// resolve to it. The group is empty when the type has no entries or is not
// public.
func (j *Joiner) JoinType(ctx context.Context, entries iter.Seq[catalog.Entry], id snapshot.TypeID) (*Group, error) {
	t, ok := j.Program.Type(id)
	if !ok {
		return nil, snapshot.ErrTypeNotFound
	}
	g := &Group{Type: id, TypeName: string(id)}
	if !j.Program.IsPublic(t) {
		return g, nil
	}
	n := 0
	for e := range entries {
		n++
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if rt, ok := j.Program.Lookup(e.TypeName); ok && rt == t {
			g.Entries = append(g.Entries, Entry{Entry: e})
		}
	}
	Rename(g.Entries, t.Name)
	return g, nil
}

// Rename assigns final names in place:
//  1. a name equal to the type's short name gets SelfSuffix;
//  2. every member of a set of equal names gets "_" + its id appended;
//  3. a name that still collides gets "_2", "_3", ... in catalog order.
//
// Unique names are left untouched by steps 2 and 3.
func Rename(entries []Entry, typeShortName string) {
	counts := make(map[string]int, len(entries))
	for i := range entries {
		name := entries[i].SanitizedName
		if name == typeShortName {
			name += SelfSuffix
		}
		entries[i].Name = name
		counts[name]++
	}

	for i := range entries {
		if counts[entries[i].Name] > 1 {
			entries[i].Name += "_" + catalog.ReplaceInvalid(entries[i].ID)
		}
	}

	Disambiguate(entries)
}

// Disambiguate resolves any remaining equal names: the first occurrence
// keeps its name and later ones get the smallest numeric suffix that is not
// taken by any entry.
func Disambiguate(entries []Entry) {
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		taken[e.Name] = true
	}
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		name := entries[i].Name
		if seen[name] {
			for n := 2; ; n++ {
				candidate := name + "_" + strconv.Itoa(n)
				if !taken[candidate] {
					name = candidate
					break
				}
			}
			taken[name] = true
			entries[i].Name = name
		}
		seen[name] = true
	}
}
