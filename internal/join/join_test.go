package join

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/snapshot"
	"github.com/jward/blueprintgen/internal/snapshot/snapshottest"
)

const root = "example.com/game"

var gameFiles = map[string]string{
	"model/model.go": `package model

type Spell struct{ Name string }

type Item struct{}

type hidden struct{}
`,
}

func newJoiner(t *testing.T) *Joiner {
	t.Helper()
	return New(snapshottest.Build(t, root, gameFiles), nil)
}

func names(g *Group) []string {
	var out []string
	for _, e := range g.Entries {
		out = append(out, e.Name)
	}
	return out
}

func TestJoin_DuplicateNamesGetIDSuffix(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	groups, err := j.Join(context.Background(), slices.Values([]catalog.Entry{
		catalog.NewEntry("a1", "Fireball", "model.Spell"),
		catalog.NewEntry("a2", "Fireball", "model.Spell"),
	}))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, snapshot.TypeID("example.com/game/model.Spell"), groups[0].Type)
	assert.Equal(t, []string{"Fireball_a1", "Fireball_a2"}, names(groups[0]))
}

func TestJoin_SelfNameCollision(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	groups, err := j.Join(context.Background(), slices.Values([]catalog.Entry{
		catalog.NewEntry("x", "Spell", "model.Spell"),
	}))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Spell_blueprint"}, names(groups[0]))
}

func TestJoin_DropsUnresolvedAndNonPublic(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	groups, st, err := j.JoinWithStats(context.Background(), slices.Values([]catalog.Entry{
		catalog.NewEntry("1", "Ghost", "model.Missing"),
		catalog.NewEntry("2", "Secret", "model.hidden"),
		catalog.NewEntry("3", "Sword", "model.Item"),
		catalog.NewEntry("4", "Bolt", "model.Spell"),
	}))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, snapshot.TypeID("example.com/game/model.Item"), groups[0].Type)
	assert.Equal(t, snapshot.TypeID("example.com/game/model.Spell"), groups[1].Type)
	assert.Equal(t, Stats{Entries: 4, Unresolved: 1, NonPublic: 1, Groups: 2}, st)
}

func TestJoin_UniqueNamesUntouched(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	groups, err := j.Join(context.Background(), slices.Values([]catalog.Entry{
		catalog.NewEntry("a1", "Fireball", "model.Spell"),
		catalog.NewEntry("b1", "Frostbolt", "model.Spell"),
		catalog.NewEntry("a2", "Fireball", "model.Spell"),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Fireball_a1", "Frostbolt", "Fireball_a2"}, names(groups[0]))
}

func TestRename_SecondaryCollisionsGetCounter(t *testing.T) {
	t.Parallel()
	// "x-1" and "x_1" sanitize to the same suffix; "A_x_1" also exists already.
	entries := []Entry{
		{Entry: catalog.NewEntry("x-1", "A", "T")},
		{Entry: catalog.NewEntry("x_1", "A", "T")},
		{Entry: catalog.NewEntry("z", "A_x_1_2", "T")},
	}
	Rename(entries, "T")
	assert.Equal(t, "A_x_1", entries[0].Name)
	assert.Equal(t, "A_x_1_3", entries[1].Name)
	assert.Equal(t, "A_x_1_2", entries[2].Name)
}

func TestRename_SelfNameThenDuplicate(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Entry: catalog.NewEntry("p", "Spell", "Spell")},
		{Entry: catalog.NewEntry("q", "Spell", "Spell")},
	}
	Rename(entries, "Spell")
	assert.Equal(t, "Spell_blueprint_p", entries[0].Name)
	assert.Equal(t, "Spell_blueprint_q", entries[1].Name)
}

func randomCatalog(r *rand.Rand, n int) []catalog.Entry {
	pool := []string{"Fireball", "Spell", "Item", "Fire ball", "Fire-ball", "1st", "_", "", "type"}
	ids := []string{"a", "b", "a-1", "a_1", "1", "x y"}
	types := []string{"model.Spell", "model.Item", "model.hidden", "nope"}
	out := make([]catalog.Entry, n)
	for i := range out {
		id := ids[r.IntN(len(ids))] + fmt.Sprint(r.IntN(4))
		out[i] = catalog.NewEntry(id, pool[r.IntN(len(pool))], types[r.IntN(len(types))])
	}
	return out
}

func TestJoin_CollisionFreedomAndDeterminism(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	r := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 50; round++ {
		entries := randomCatalog(r, 1+r.IntN(40))

		first, err := j.Join(context.Background(), slices.Values(entries))
		require.NoError(t, err)
		second, err := j.Join(context.Background(), slices.Values(entries))
		require.NoError(t, err)
		assert.Equal(t, first, second, "round %d not deterministic", round)

		for _, g := range first {
			seen := make(map[string]bool)
			for _, e := range g.Entries {
				assert.False(t, seen[e.Name], "round %d: duplicate %q in %s", round, e.Name, g.Type)
				assert.True(t, catalog.IsIdentifier(e.Name), "round %d: %q", round, e.Name)
				seen[e.Name] = true
			}
		}
	}
}

func TestJoinType_OnlyRequestedType(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	entries := slices.Values([]catalog.Entry{
		catalog.NewEntry("a1", "Fireball", "model.Spell"),
		catalog.NewEntry("i1", "Sword", "model.Item"),
		catalog.NewEntry("a2", "Fireball", "example.com/game/model.Spell"),
	})

	g, err := j.JoinType(context.Background(), entries, "example.com/game/model.Spell")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fireball_a1", "Fireball_a2"}, names(g))

	hidden, err := j.JoinType(context.Background(), entries, "example.com/game/model.hidden")
	require.NoError(t, err)
	assert.True(t, hidden.Empty())

	_, err = j.JoinType(context.Background(), entries, "example.com/game/model.Missing")
	assert.ErrorIs(t, err, snapshot.ErrTypeNotFound)
}

func TestJoin_Cancelled(t *testing.T) {
	t.Parallel()
	j := newJoiner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := make([]catalog.Entry, 2*cancelCheckInterval)
	for i := range entries {
		entries[i] = catalog.NewEntry(fmt.Sprint(i), "E", "model.Spell")
	}
	_, err := j.Join(ctx, slices.Values(entries))
	assert.ErrorIs(t, err, context.Canceled)
}
