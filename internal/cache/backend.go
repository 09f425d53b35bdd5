package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
	"github.com/jward/blueprintgen/internal/store"
)

const invalidationsKey = "cache_invalidations"

// StoreBackend persists the cache in the session database.
type StoreBackend struct {
	store *store.Store
}

var _ Backend = (*StoreBackend)(nil)

// NewStoreBackend returns a Backend over s.
func NewStoreBackend(s *store.Store) *StoreBackend {
	return &StoreBackend{store: s}
}

func (b *StoreBackend) LoadGroups(ctx context.Context) ([]*join.Group, int64, error) {
	rows, err := b.store.AllGroups()
	if err != nil {
		return nil, 0, fmt.Errorf("cache: load: %w", err)
	}
	groups := make([]*join.Group, 0, len(rows))
	for _, r := range rows {
		g := &join.Group{Type: snapshot.TypeID(r.TypeID), TypeName: r.TypeName}
		for _, e := range r.Entries {
			g.Entries = append(g.Entries, join.Entry{
				Entry: catalog.Entry{
					ID:            e.EntryID,
					RawName:       e.RawName,
					SanitizedName: e.SanitizedName,
					TypeName:      e.TypeName,
				},
				Name: e.Name,
			})
		}
		groups = append(groups, g)
	}

	raw, err := b.store.GetMetadata(invalidationsKey)
	if err != nil {
		return nil, 0, fmt.Errorf("cache: load: %w", err)
	}
	var n int64
	if raw != "" {
		if n, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("cache: load invalidations: %w", err)
		}
	}
	return groups, n, ctx.Err()
}

func (b *StoreBackend) SaveGroups(ctx context.Context, groups []*join.Group, invalidations int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]*store.CachedGroup, 0, len(groups))
	for _, g := range groups {
		r := &store.CachedGroup{TypeID: string(g.Type), TypeName: g.TypeName}
		for i, e := range g.Entries {
			r.Entries = append(r.Entries, store.CachedEntry{
				Ordinal:       i,
				EntryID:       e.ID,
				RawName:       e.RawName,
				SanitizedName: e.SanitizedName,
				TypeName:      e.TypeName,
				Name:          e.Name,
			})
		}
		rows = append(rows, r)
	}
	if err := b.store.ReplaceGroups(rows); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	if err := b.store.SetMetadata(invalidationsKey, strconv.FormatInt(invalidations, 10)); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}
