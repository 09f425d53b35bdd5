package blueprintgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/config"
	"github.com/jward/blueprintgen/internal/snapshot"
)

const testRoot = "example.com/game"

// gameProject is a small module with a model package, a default-value
// registry, an output package that calls generated constructors, a
// catalog and a new-entity file.
var gameProject = map[string]string{
	"go.mod": "module example.com/game\n\ngo 1.22\n",
	"main.go": `package main

import "example.com/game/catalog"

func main() {
	_ = catalog.NewSpell()
}
`,
	"model/model.go": `package model

type DamageType int

type Entity struct {
	ID   string
	Name string
}

func (e *Entity) SetName(v string) { e.Name = v }

type Stats struct {
	Power int
}

type Spell struct {
	Entity
	*Stats
	Damage DamageType
	Level  int
}

func (s *Spell) SetLevel(v int) { s.Level = v }

type Rune struct{ Glyph rune }

type Box[T any] struct{ Value T }

type secret struct{}
`,
	"model/model_test.go": `package model

type Fixture struct{}
`,
	"registry/registry.go": `package registry

import "example.com/game/model"

var DefaultDamage model.DamageType

const DefaultLevel int = 1

func DefaultName() string { return "unnamed" }

func WithDefaultName(s *model.Spell) *model.Spell {
	s.Name = DefaultName()
	return s
}

func MarkClassFeature(s *model.Spell) *model.Spell { return s }

func Boost(s model.Stats) model.Stats {
	s.Power++
	return s
}

func TagEntity(e *model.Entity) *model.Entity { return e }
`,
	"catalog/use.go": `package catalog

import "example.com/game/model"

func NewEntity() *model.Entity { return &model.Entity{Name: "hand"} }

func starter() (*model.Rune, *model.Entity, *model.Box[int]) {
	return NewRune(), NewEntity(), NewBox[int]()
}
`,
	"vendor/example.com/dep/dep.go": "package dep\n\ntype Vendored struct{}\n",
	"_scratch/scratch.go":           "package scratch\n\ntype Scratch struct{}\n",
	"catalog.json": `{"Entries": [
	{"Guid": "a1", "Name": "Fireball", "TypeFullName": "model.Spell"},
	{"Guid": "a2", "Name": "Fireball", "TypeFullName": "model.Spell"},
	{"Guid": "b1", "Name": "Frost Bolt", "TypeFullName": "example.com/game/model.Spell"},
	{"Guid": "r1", "Name": "Ansuz", "TypeFullName": "model.Rune"},
	{"Guid": "x1", "Name": "Ghost", "TypeFullName": "model.Missing"},
	{"Guid": "s1", "Name": "Hidden", "TypeFullName": "model.secret"},
	{"Name": "NoGuid", "TypeFullName": "model.Spell"}
]}
`,
	"model/starter.entities.json": `[
	{"name": "Magic Missile", "assetId": "0F8FAD5B-D9CB-469F-A165-70867728950E", "type": "model.Spell"},
	{"name": "Broken", "assetId": "not-a-guid", "type": "model.Spell"}
]
`,
}

// writeProject writes files (slash-separated path -> content) under a fresh
// directory and returns it.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for p, content := range files {
		writeFile(t, dir, p, content)
	}
	return dir
}

func writeFile(t testing.TB, dir, p, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(p))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, p string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
	require.NoError(t, err)
	return string(data)
}

func newTestEngine(t *testing.T, dir string, opts ...Option) *Engine {
	t.Helper()
	cfg := config.Default(dir)
	cfg.RootNamespace = testRoot
	cfg.DB = filepath.Join(t.TempDir(), "session.db")
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func indexedPaths(t *testing.T, e *Engine) []string {
	t.Helper()
	files, err := e.Store().AllFiles()
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func typeIDs(t *testing.T, e *Engine) []snapshot.TypeID {
	t.Helper()
	snap, err := e.Snapshot()
	require.NoError(t, err)
	var ids []snapshot.TypeID
	for _, typ := range snap.Types() {
		ids = append(ids, typ.ID)
	}
	return ids
}

func TestNew_CreatesStoreAndCache(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, t.TempDir())
	require.NotNil(t, e.Store())
	require.NotNil(t, e.Cache())
	assert.Equal(t, testRoot, e.Config().RootNamespace)
	assert.Equal(t, 0, e.Cache().Len())
}

func TestNew_RequiresRootNamespace(t *testing.T) {
	t.Parallel()
	cfg := config.Default(t.TempDir())
	cfg.DB = filepath.Join(t.TempDir(), "session.db")
	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrNoRootNamespace)
}

func TestNew_InvalidDBPath(t *testing.T) {
	t.Parallel()
	cfg := config.Default(t.TempDir())
	cfg.RootNamespace = testRoot
	cfg.DB = "/nonexistent/dir/db.sqlite"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestIndexDirectory_IndexesSourceFiles(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	writeFile(t, dir, "catalog/old_refs.go", "// Code generated by blueprintgen. DO NOT EDIT.\n\npackage catalog\n\nfunc NewRune() {}\n")
	e := newTestEngine(t, dir)

	require.NoError(t, e.IndexDirectory(context.Background()))

	assert.Equal(t, []string{
		"catalog/use.go",
		"main.go",
		"model/model.go",
		"registry/registry.go",
	}, indexedPaths(t, e))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	_, ok := snap.Lookup("model.Fixture")
	assert.False(t, ok, "test files are not indexed")
	assert.False(t, snap.HasFunc(testRoot+"/catalog", "NewRune"), "generated files are not indexed")
	assert.True(t, snap.HasFunc(testRoot+"/catalog", "NewEntity"))

	f, err := e.Store().FileByPath("model/model.go")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, testRoot+"/model", f.PackagePath)
}

func TestIndexDirectory_SkipsUnchangedFiles(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir)
	ctx := context.Background()

	require.NoError(t, e.IndexDirectory(ctx))
	before, err := e.Store().FileByPath("model/model.go")
	require.NoError(t, err)
	snap, err := e.Snapshot()
	require.NoError(t, err)

	require.NoError(t, e.IndexDirectory(ctx))
	after, err := e.Store().FileByPath("model/model.go")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Hash, after.Hash)

	again, err := e.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, again, "snapshot is reused when nothing changed")
}

func TestIndexDirectory_ReindexesChangedFiles(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx))
	assert.NotContains(t, typeIDs(t, e), snapshot.TypeID(testRoot+"/model.Potion"))

	writeFile(t, dir, "model/potion.go", "package model\n\ntype Potion struct{ Dose int }\n")
	writeFile(t, dir, "model/model.go", gameProject["model/model.go"]+"\ntype Scroll struct{}\n")
	require.NoError(t, e.IndexDirectory(ctx))

	ids := typeIDs(t, e)
	assert.Contains(t, ids, snapshot.TypeID(testRoot+"/model.Potion"))
	assert.Contains(t, ids, snapshot.TypeID(testRoot+"/model.Scroll"))
	assert.Contains(t, ids, snapshot.TypeID(testRoot+"/model.Spell"))
}

func TestIndexDirectory_RemovesVanishedFiles(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx))

	require.NoError(t, os.Remove(filepath.Join(dir, "registry", "registry.go")))
	require.NoError(t, e.IndexDirectory(ctx))

	f, err := e.Store().FileByPath("registry/registry.go")
	require.NoError(t, err)
	assert.Nil(t, f)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Funcs(testRoot+"/registry"))
}

func TestIndexFiles_FileTurnedGeneratedIsDropped(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx))

	path := filepath.Join(dir, "catalog", "use.go")
	writeFile(t, dir, "catalog/use.go", "// Code generated by hand. DO NOT EDIT.\n\n"+gameProject["catalog/use.go"])
	require.NoError(t, e.IndexFiles(ctx, []string{path}))

	f, err := e.Store().FileByPath("catalog/use.go")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_SkipsNonSourceFiles(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir)

	err := e.IndexFiles(context.Background(), []string{
		filepath.Join(dir, "catalog.json"),
		filepath.Join(dir, "model", "model_test.go"),
	})
	require.NoError(t, err)
	assert.Empty(t, indexedPaths(t, e))
}

func TestIndexFiles_OutsideProjectRoot(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, writeProject(t, gameProject))
	outside := writeProject(t, map[string]string{"x.go": "package x\n"})

	err := e.IndexFiles(context.Background(), []string{filepath.Join(outside, "x.go")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the project root")
}

func TestIndexFiles_SerialAndParallelAgree(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	ctx := context.Background()

	serial := newTestEngine(t, dir, WithParallel(false))
	require.NoError(t, serial.IndexDirectory(ctx))
	parallel := newTestEngine(t, dir, WithParallel(true))
	require.NoError(t, parallel.IndexDirectory(ctx))

	assert.Equal(t, indexedPaths(t, serial), indexedPaths(t, parallel))
	assert.Equal(t, typeIDs(t, serial), typeIDs(t, parallel))

	s1, err := serial.Snapshot()
	require.NoError(t, err)
	s2, err := parallel.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, s1.Calls(), s2.Calls())
}

func TestIndexFiles_CanceledContext(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, gameProject)
	e := newTestEngine(t, dir, WithParallel(false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.IndexFiles(ctx, []string{filepath.Join(dir, "model", "model.go")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSkippedPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"model/model.go", false},
		{"vendor/x/x.go", true},
		{"model/testdata/x.go", true},
		{".hidden/x.go", true},
		{"_scratch/x.go", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, skippedPath(tt.path), tt.path)
	}
}
