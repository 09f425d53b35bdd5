package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fireballGroup() *CachedGroup {
	return &CachedGroup{
		TypeID:   "example.com/game/model.Fireball",
		TypeName: "example.com/game/model.Fireball",
		Entries: []CachedEntry{
			{EntryID: "a1", RawName: "Fireball", SanitizedName: "Fireball", TypeName: "Fireball", Name: "Fireball_a1"},
			{EntryID: "a2", RawName: "Fireball", SanitizedName: "Fireball", TypeName: "Fireball", Name: "Fireball_a2"},
		},
	}
}

func TestGroups_ReplaceAndLoad(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	spell := &CachedGroup{
		TypeID:   "example.com/game/model.Spell",
		TypeName: "example.com/game/model.Spell",
		Entries:  []CachedEntry{{EntryID: "s1", RawName: "Spell", SanitizedName: "Spell", TypeName: "Spell", Name: "Spell_blueprint"}},
	}
	require.NoError(t, s.ReplaceGroups([]*CachedGroup{spell, fireballGroup()}))

	groups, err := s.AllGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "example.com/game/model.Fireball", groups[0].TypeID)
	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, "Fireball_a1", groups[0].Entries[0].Name)
	assert.Equal(t, 1, groups[0].Entries[1].Ordinal)
	assert.Equal(t, "Spell_blueprint", groups[1].Entries[0].Name)

	require.NoError(t, s.ReplaceGroups(nil))
	groups, err = s.AllGroups()
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroups_SaveReplacesEntries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	g := fireballGroup()
	require.NoError(t, s.SaveGroup(g))

	g.Entries = g.Entries[:1]
	require.NoError(t, s.SaveGroup(g))

	groups, err := s.AllGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Entries, 1)

	require.NoError(t, s.DeleteGroup(g.TypeID))
	require.NoError(t, s.DeleteGroup("missing"))
	groups, err = s.AllGroups()
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroups_EmptyGroupSurvives(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveGroup(&CachedGroup{TypeID: "x.Empty", TypeName: "x.Empty"}))

	groups, err := s.AllGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].Entries)
}

func TestUnits_UpsertAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.UnitByName("SpellRefs")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertUnit(&EmittedUnit{Name: "SpellRefs", Path: "catalog/spell_refs.go", Hash: "h1"}))
	require.NoError(t, s.UpsertUnit(&EmittedUnit{Name: "SpellRefs", Path: "catalog/spell_refs.go", Hash: "h2"}))

	got, err = s.UnitByName("SpellRefs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h2", got.Hash)
	assert.False(t, got.WrittenAt.IsZero())

	units, err := s.AllUnits()
	require.NoError(t, err)
	assert.Len(t, units, 1)

	require.NoError(t, s.DeleteUnit("SpellRefs"))
	units, err = s.AllUnits()
	require.NoError(t, err)
	assert.Empty(t, units)
}
