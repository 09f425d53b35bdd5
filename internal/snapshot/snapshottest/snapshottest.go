// Package snapshottest builds Snapshots from in-memory Go sources for tests.
package snapshottest

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/extract"
	"github.com/jward/blueprintgen/internal/snapshot"
	"github.com/jward/blueprintgen/internal/store"
)

// Build indexes files (slash-separated path relative to the project root ->
// Go source) into a fresh database and loads the resulting Snapshot.
func Build(t testing.TB, rootNamespace string, files map[string]string) *snapshot.Snapshot {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		src := []byte(files[p])
		if extract.IsGenerated(src) {
			continue
		}
		pkgPath := extract.PackagePath(rootNamespace, path.Dir(p))
		f := &store.File{Path: p, Language: "go", PackagePath: pkgPath, Hash: p, LastIndexed: time.Now()}
		_, err := s.InsertFile(f)
		require.NoError(t, err)
		require.NoError(t, extract.ExtractFile(context.Background(), s, f.ID, pkgPath, src))
	}

	snap, err := snapshot.Load(s, rootNamespace)
	require.NoError(t, err)
	return snap
}
