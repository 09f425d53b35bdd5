package emit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/store"
)

func newTestWriter(t *testing.T) (*Writer, *store.Store) {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "units.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return NewWriter(t.TempDir(), s, nil), s
}

func unit(name, path, src string) *Unit {
	return &Unit{Name: name, Path: path, Source: []byte(src)}
}

func TestWriter_SkipsUnchanged(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	ctx := context.Background()
	u := unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n")

	st, err := w.Write(ctx, []*Unit{u}, true)
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Written: 1}, st)

	abs := filepath.Join(w.Root, "catalog", "spell_refs.go")
	info, err := os.Stat(abs)
	require.NoError(t, err)

	st, err = w.Write(ctx, []*Unit{u}, true)
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Unchanged: 1}, st)
	again, err := os.Stat(abs)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestWriter_RewritesChangedOrMissing(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	ctx := context.Background()
	abs := filepath.Join(w.Root, "catalog", "spell_refs.go")

	_, err := w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n")}, true)
	require.NoError(t, err)

	st, err := w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n\nvar X = 1\n")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Written)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Contains(t, string(data), "var X = 1")

	require.NoError(t, os.Remove(abs))
	st, err = w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n\nvar X = 1\n")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Written)
	assert.FileExists(t, abs)
}

func TestWriter_Prunes(t *testing.T) {
	t.Parallel()
	w, s := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Write(ctx, []*Unit{
		unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n"),
		unit("refs:m.Item", "catalog/item_refs.go", "package catalog\n"),
	}, true)
	require.NoError(t, err)

	// Without pruning the missing unit stays.
	st, err := w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n")}, false)
	require.NoError(t, err)
	assert.Zero(t, st.Removed)
	assert.FileExists(t, filepath.Join(w.Root, "catalog", "item_refs.go"))

	st, err = w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Removed)
	assert.NoFileExists(t, filepath.Join(w.Root, "catalog", "item_refs.go"))

	units, err := s.AllUnits()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "refs:m.Spell", units[0].Name)
}

func TestWriter_MovedUnitRemovesOldFile(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n")}, true)
	require.NoError(t, err)
	_, err = w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/modelspell_refs.go", "package catalog\n")}, true)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(w.Root, "catalog", "spell_refs.go"))
	assert.FileExists(t, filepath.Join(w.Root, "catalog", "modelspell_refs.go"))
}

func TestWriter_Canceled(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Write(ctx, []*Unit{unit("a", "a.go", "package a\n")}, true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriter_PathConflictReported(t *testing.T) {
	t.Parallel()
	w, s := newTestWriter(t)

	st, err := w.Write(context.Background(), []*Unit{
		unit("refs:m.SPELL", "catalog/spell_refs.go", "package catalog\n\nvar A = 1\n"),
		unit("refs:m.Spell", "catalog/Spell_refs.go", "package catalog\n\nvar B = 1\n"),
	}, true)
	require.ErrorIs(t, err, ErrPathConflict)
	assert.Equal(t, 1, st.Written)

	data, err := os.ReadFile(filepath.Join(w.Root, "catalog", "spell_refs.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "var A = 1")

	units, err := s.AllUnits()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "refs:m.SPELL", units[0].Name)
}

func TestWriter_PathHandedToAnotherUnit(t *testing.T) {
	t.Parallel()
	for _, newcomerFirst := range []bool{true, false} {
		w, _ := newTestWriter(t)
		ctx := context.Background()

		_, err := w.Write(ctx, []*Unit{unit("refs:m.Spell", "catalog/spell_refs.go", "package catalog\n\nvar B = 1\n")}, true)
		require.NoError(t, err)

		moved := unit("refs:m.Spell", "catalog/spell_2_refs.go", "package catalog\n\nvar B = 1\n")
		newcomer := unit("refs:m.SPELL", "catalog/spell_refs.go", "package catalog\n\nvar A = 1\n")
		units := []*Unit{moved, newcomer}
		if newcomerFirst {
			units = []*Unit{newcomer, moved}
		}
		st, err := w.Write(ctx, units, true)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Written)

		data, err := os.ReadFile(filepath.Join(w.Root, "catalog", "spell_refs.go"))
		require.NoError(t, err, "newcomerFirst=%v", newcomerFirst)
		assert.Contains(t, string(data), "var A = 1")
		assert.FileExists(t, filepath.Join(w.Root, "catalog", "spell_2_refs.go"))
	}
}
