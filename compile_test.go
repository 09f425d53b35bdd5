package blueprintgen

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/emit"
)

// diamondProject embeds Position along two paths of equal depth, declares
// two types whose names differ only in case, and chains two registry
// functions over Spell.
var diamondProject = map[string]string{
	"go.mod": "module example.com/game\n\ngo 1.22\n",
	"main.go": `package main

import (
	"fmt"

	"example.com/game/catalog"
)

func main() {
	u := catalog.NewUnit()
	s := catalog.NewSpell()
	fmt.Println(u.Movable.X, u.Attackable.X, s.Range, s.Steps)
	_ = catalog.UnitRefs.Grunt
	_ = catalog.SPELLRefs.Loud
	_ = catalog.SpellRefs.Quiet
}
`,
	"model/model.go": `package model

type Coord int

type Position struct{ X Coord }

type Movable struct {
	Position
	Speed int
}

type Attackable struct{ Position }

type Unit struct {
	Movable
	Attackable
}

type Spell struct {
	Range Coord
	Steps []string
}

type SPELL struct{ Volume int }
`,
	"registry/registry.go": `package registry

import "example.com/game/model"

var Origin model.Coord = 3

func First(s *model.Spell) *model.Spell {
	s.Steps = append(s.Steps, "first")
	return s
}

func Second(s model.Spell) model.Spell {
	s.Steps = append(s.Steps, "second")
	return s
}
`,
	"catalog.json": `{"Entries": [
	{"Guid": "u1", "Name": "Grunt", "TypeFullName": "model.Unit"},
	{"Guid": "s1", "Name": "Quiet", "TypeFullName": "model.Spell"},
	{"Guid": "s2", "Name": "Loud", "TypeFullName": "model.SPELL"}
]}
`,
}

// sourceImporter type-checks project packages from source and defers the
// rest to the standard library's source importer.
type sourceImporter struct {
	fset *token.FileSet
	std  types.Importer
	dirs map[string]string
	pkgs map[string]*types.Package
	errs []error
}

func (im *sourceImporter) Import(path string) (*types.Package, error) {
	if pkg, ok := im.pkgs[path]; ok {
		return pkg, nil
	}
	dir, ok := im.dirs[path]
	if !ok {
		return im.std.Import(path)
	}
	return im.check(path, dir)
}

func (im *sourceImporter) check(path, dir string) (*types.Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []*ast.File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(im.fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no Go files", path)
	}
	conf := types.Config{
		Importer: im,
		Error:    func(err error) { im.errs = append(im.errs, err) },
	}
	pkg, _ := conf.Check(path, im.fset, files, nil)
	im.pkgs[path] = pkg
	return pkg, nil
}

// typeCheckProject type-checks every package of the module at dir, emitted
// files included, and returns the type errors found.
func typeCheckProject(t *testing.T, dir string) []error {
	t.Helper()
	lazyDir, err := filepath.Abs(filepath.Join("pkg", "lazyref"))
	require.NoError(t, err)

	fset := token.NewFileSet()
	im := &sourceImporter{
		fset: fset,
		std:  importer.ForCompiler(fset, "source", nil),
		dirs: map[string]string{emit.LazyRefImport: lazyDir},
		pkgs: make(map[string]*types.Package),
	}
	var own []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		name := d.Name()
		if p != dir && (name == "vendor" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.go"))
		if err != nil || len(matches) == 0 {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		importPath := testRoot
		if rel != "." {
			importPath += "/" + filepath.ToSlash(rel)
		}
		im.dirs[importPath] = p
		own = append(own, importPath)
		return nil
	})
	require.NoError(t, err)

	for _, path := range own {
		if _, err := im.Import(path); err != nil {
			im.errs = append(im.errs, err)
		}
	}
	return im.errs
}

func TestGenerate_EmittedCodeTypeChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("type-checks the standard library from source")
	}
	t.Parallel()

	// NewBox has no generated constructor, so the call is dropped here.
	game := make(map[string]string, len(gameProject))
	for p, content := range gameProject {
		game[p] = content
	}
	game["catalog/use.go"] = `package catalog

import "example.com/game/model"

func NewEntity() *model.Entity { return &model.Entity{Name: "hand"} }

func starter() (*model.Rune, *model.Entity) {
	return NewRune(), NewEntity()
}
`

	tests := []struct {
		name  string
		files map[string]string
	}{
		{"game", game},
		{"diamond", diamondProject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, tt.files)
			e := newTestEngine(t, dir)
			res := generateProject(t, e)
			require.Zero(t, res.Errors(), "%v", res.Diagnostics)

			assert.Empty(t, typeCheckProject(t, dir))
		})
	}
}

func TestGenerate_DiamondFieldsAreNotAssigned(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, diamondProject)
	e := newTestEngine(t, dir)
	res := generateProject(t, e)

	assert.Equal(t, 2, res.Constructors)
	unit := readFile(t, dir, "catalog/unit_new.go")
	assert.NotContains(t, unit, "v.X")
	assert.Contains(t, unit, "func NewUnit() *model.Unit {\n\tv := &model.Unit{}\n\treturn v\n}\n")

	spell := readFile(t, dir, "catalog/spell_2_new.go")
	assert.Contains(t, spell, "\tv.Range = registry.Origin\n")
	assert.Contains(t, spell, "\tv = registry.First(v)\n\t*v = registry.Second(*v)\n")

	assert.Contains(t, readFile(t, dir, "catalog/spell_refs.go"), "var SPELLRefs = struct {")
	assert.Contains(t, readFile(t, dir, "catalog/spell_2_refs.go"), "var SpellRefs = struct {")
}
