package emit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/initplan"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
	"github.com/jward/blueprintgen/internal/snapshot/snapshottest"
)

const (
	root        = "example.com/game"
	modelPkg    = root + "/model"
	registryPkg = root + "/registry"
)

var catalogOpts = Options{Dir: "catalog", Package: root + "/catalog", PackageName: "catalog"}

var gameFiles = map[string]string{
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
}

func spellType() *snapshot.Type {
	return &snapshot.Type{
		ID:          modelPkg + ".Spell",
		Name:        "Spell",
		Package:     modelPkg,
		PackageName: "model",
		Kind:        snapshot.KindStruct,
	}
}

func spellGroup(names ...string) *join.Group {
	g := &join.Group{Type: modelPkg + ".Spell", TypeName: modelPkg + ".Spell"}
	for i, n := range names {
		id := "a" + string(rune('1'+i))
		g.Entries = append(g.Entries, join.Entry{Entry: catalog.NewEntry(id, "Fireball", "model.Spell"), Name: n})
	}
	return g
}

func TestTypeNames(t *testing.T) {
	t.Parallel()
	types := []*snapshot.Type{
		{ID: modelPkg + ".Spell", Name: "Spell", PackageName: "model"},
		{ID: root + ".Spell", Name: "Spell", PackageName: "game"},
		{ID: modelPkg + ".Item", Name: "Item", PackageName: "model"},
		{ID: modelPkg + ".ModelSpellX", Name: "GameSpell", PackageName: "model"},
	}
	names := TypeNames(types)
	assert.Equal(t, Name{Ident: "ModelSpell", File: "modelspell"}, names[modelPkg+".Spell"])
	assert.Equal(t, Name{Ident: "GameSpell", File: "gamespell"}, names[root+".Spell"])
	assert.Equal(t, Name{Ident: "Item", File: "item"}, names[modelPkg+".Item"])
	// The short name GameSpell is declared too; identity order decides who
	// keeps it.
	assert.Equal(t, Name{Ident: "GameSpell2", File: "gamespell2"}, names[modelPkg+".ModelSpellX"])
}

func TestTypeNames_FilesDifferRegardlessOfCase(t *testing.T) {
	t.Parallel()
	types := []*snapshot.Type{
		{ID: modelPkg + ".Spell", Name: "Spell", Package: modelPkg, PackageName: "model", Kind: snapshot.KindStruct},
		{ID: modelPkg + ".SPELL", Name: "SPELL", Package: modelPkg, PackageName: "model", Kind: snapshot.KindStruct},
		{ID: modelPkg + ".Spell_2", Name: "Spell_2", Package: modelPkg, PackageName: "model", Kind: snapshot.KindStruct},
	}
	names := TypeNames(types)
	assert.Equal(t, Name{Ident: "SPELL", File: "spell"}, names[modelPkg+".SPELL"])
	assert.Equal(t, Name{Ident: "Spell", File: "spell_2"}, names[modelPkg+".Spell"])
	assert.Equal(t, Name{Ident: "Spell_2", File: "spell_2_2"}, names[modelPkg+".Spell_2"])

	paths := make(map[string]bool)
	for _, typ := range types {
		u, err := Accessors(spellGroup("Fireball"), typ, names[typ.ID], catalogOpts)
		require.NoError(t, err)
		assert.False(t, paths[u.Path], "duplicate path %s", u.Path)
		paths[u.Path] = true
	}
	assert.Len(t, paths, 3)
}

const wantAccessors = `// Code generated by blueprintgen. DO NOT EDIT.

package catalog

import (
	"example.com/game/model"
	"github.com/jward/blueprintgen/pkg/lazyref"
)

// SpellRefs holds one lazily resolved handle per catalog entry of example.com/game/model.Spell.
var SpellRefs = struct {
	Fireball_a1 *lazyref.Ref[*model.Spell]
	Fireball_a2 *lazyref.Ref[*model.Spell]
}{
	Fireball_a1: lazyref.New[*model.Spell]("a1"),
	Fireball_a2: lazyref.New[*model.Spell]("a2"),
}

// SpellRefsByID indexes SpellRefs by entry id.
var SpellRefsByID = map[string]*lazyref.Ref[*model.Spell]{
	"a1": SpellRefs.Fireball_a1,
	"a2": SpellRefs.Fireball_a2,
}
`

func TestAccessors_Golden(t *testing.T) {
	t.Parallel()
	u, err := Accessors(spellGroup("Fireball_a1", "Fireball_a2"), spellType(), Name{Ident: "Spell", File: "spell"}, catalogOpts)
	require.NoError(t, err)
	assert.Equal(t, wantAccessors, string(u.Source))
	assert.Equal(t, "refs:example.com/game/model.Spell", u.Name)
	assert.Equal(t, "catalog/spell_refs.go", u.Path)
	assert.Equal(t, root+"/catalog", u.Package)

	again, err := Accessors(spellGroup("Fireball_a1", "Fireball_a2"), spellType(), Name{Ident: "Spell", File: "spell"}, catalogOpts)
	require.NoError(t, err)
	assert.Equal(t, u.Source, again.Source)
	assert.Equal(t, u.Hash(), again.Hash())
}

func TestAccessors_DuplicateIDsKeepFirst(t *testing.T) {
	t.Parallel()
	g := spellGroup("Fireball_x", "Fireball_x_2")
	g.Entries[1].ID = g.Entries[0].ID

	u, err := Accessors(g, spellType(), Name{Ident: "Spell", File: "spell"}, catalogOpts)
	require.NoError(t, err)
	src := string(u.Source)
	assert.Contains(t, src, `"a1": SpellRefs.Fireball_x,`)
	assert.NotContains(t, src, `SpellRefs.Fireball_x_2,`)
	assert.Contains(t, src, "Fireball_x_2 *lazyref.Ref[*model.Spell]")
}

func TestAccessors_SamePackageNonStruct(t *testing.T) {
	t.Parallel()
	typ := &snapshot.Type{
		ID:          root + "/catalog.Sound",
		Name:        "Sound",
		Package:     root + "/catalog",
		PackageName: "catalog",
		Kind:        snapshot.KindNamed,
	}
	g := &join.Group{Type: typ.ID, Entries: []join.Entry{{Entry: catalog.NewEntry("s1", "Boom", "catalog.Sound"), Name: "Boom"}}}

	u, err := Accessors(g, typ, Name{Ident: "Sound", File: "sound"}, catalogOpts)
	require.NoError(t, err)
	src := string(u.Source)
	assert.Contains(t, src, "Boom *lazyref.Ref[Sound]")
	assert.NotContains(t, src, `"example.com/game/catalog"`)
}

func TestAccessors_GenericUnsupported(t *testing.T) {
	t.Parallel()
	typ := spellType()
	typ.TypeParams = []string{"T"}
	_, err := Accessors(spellGroup("A"), typ, Name{Ident: "Spell", File: "spell"}, catalogOpts)
	require.ErrorIs(t, err, ErrUnsupported)
}

func resolveSpell(t *testing.T, typeName string) (*snapshot.Snapshot, *initplan.Plan) {
	t.Helper()
	snap := snapshottest.Build(t, root, gameFiles)
	typ, ok := snap.Lookup(typeName)
	require.True(t, ok)
	r := initplan.NewResolver(snap, initplan.NewRegistry(snap, registryPkg), catalogOpts.Package)
	plan, err := r.Resolve(typ)
	require.NoError(t, err)
	return snap, plan
}

const wantConstructor = `// Code generated by blueprintgen. DO NOT EDIT.

package catalog

import (
	"example.com/game/model"
	"example.com/game/registry"
)

// NewSpell returns a new example.com/game/model.Spell with its registry defaults applied.
func NewSpell() *model.Spell {
	v := &model.Spell{}
	v.Stats = &model.Stats{}
	v.Damage = registry.DefaultDamage
	v.Level = registry.DefaultLevel
	v.ID = registry.DefaultName()
	v.Name = registry.DefaultName()
	v.Power = registry.DefaultLevel
	v.SetLevel(registry.DefaultLevel)
	v.SetName(registry.DefaultName())
	v = registry.WithDefaultName(v)
	v = registry.MarkClassFeature(v)
	*v.Stats = registry.Boost(*v.Stats)
	v.Entity = *registry.TagEntity(&v.Entity)
	return v
}
`

func TestConstructor_Golden(t *testing.T) {
	t.Parallel()
	snap, plan := resolveSpell(t, "model.Spell")

	u, err := Constructor(snap, plan, Name{Ident: "Spell", File: "spell"}, catalogOpts)
	require.NoError(t, err)
	assert.Equal(t, wantConstructor, string(u.Source))
	assert.Equal(t, "new:example.com/game/model.Spell", u.Name)
	assert.Equal(t, "catalog/spell_new.go", u.Path)
}

func TestConstructor_EmptyPlan(t *testing.T) {
	t.Parallel()
	snap, plan := resolveSpell(t, "model.Rune")
	require.True(t, plan.Empty())

	u, err := Constructor(snap, plan, Name{Ident: "Rune", File: "rune"}, catalogOpts)
	require.NoError(t, err)
	assert.Contains(t, string(u.Source), "func NewRune() *model.Rune {\n\tv := &model.Rune{}\n\treturn v\n}\n")
	assert.NotContains(t, string(u.Source), "registry")
}

func TestChainStmt(t *testing.T) {
	t.Parallel()
	fn := initplan.ChainFunc{Name: "F", Package: registryPkg, PackageName: "registry"}
	valueEmbed := []initplan.Step{{Name: "Spell", Type: modelPkg + ".Spell"}}
	ptrEmbed := []initplan.Step{{Name: "Spell"}, {Name: "Stats", Pointer: true}}

	tests := []struct {
		name    string
		pointer bool
		path    []initplan.Step
		want    string
	}{
		{"target pointer", true, nil, "v = registry.F(v)"},
		{"target value", false, nil, "*v = registry.F(*v)"},
		{"value embed pointer func", true, valueEmbed, "v.Spell = *registry.F(&v.Spell)"},
		{"value embed value func", false, valueEmbed, "v.Spell = registry.F(v.Spell)"},
		{"pointer embed pointer func", true, ptrEmbed, "v.Spell.Stats = registry.F(v.Spell.Stats)"},
		{"pointer embed value func", false, ptrEmbed, "*v.Spell.Stats = registry.F(*v.Spell.Stats)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := fn
			f.Pointer = tt.pointer
			got := chainStmt(newImports(catalogOpts.Package), initplan.ChainInit{Func: f, Path: tt.path})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImports_Aliases(t *testing.T) {
	t.Parallel()
	im := newImports("example.com/out")
	assert.Equal(t, "model.A", im.qualify("example.com/a/model", "model", "A"))
	assert.Equal(t, "model2.B", im.qualify("example.com/b/model", "model", "B"))
	assert.Equal(t, "model.C", im.qualify("example.com/a/model", "model", "C"))
	assert.Equal(t, "D", im.qualify("example.com/out", "out", "D"))

	src, err := assemble("out", im, []byte("var _ = model.A\nvar _ = model2.B\n"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "\t\"example.com/a/model\"\n")
	assert.Contains(t, string(src), "\tmodel2 \"example.com/b/model\"\n")
}

func TestAssemble_FormatError(t *testing.T) {
	t.Parallel()
	_, err := assemble("out", newImports("x"), []byte("func {"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupported))
}

func TestNewEntities(t *testing.T) {
	t.Parallel()
	snap := snapshottest.Build(t, root, gameFiles)
	f := EntityFile{
		Path:        "data/spells.entities.json",
		Package:     root + "/data",
		PackageName: "data",
		Entities: []catalog.NewEntity{
			{Name: "Fireball", SanitizedName: "Fireball", AssetID: "00112233445566778899aabbccddeeff", Type: "model.Spell"},
			{Name: "Fireball", SanitizedName: "Fireball", AssetID: "ffeeddccbbaa99887766554433221100", Type: "model.DamageType"},
			{Name: "Ghost", SanitizedName: "Ghost", AssetID: "0123456789abcdef0123456789abcdef", Type: "model.Missing"},
		},
	}

	u, diags, err := NewEntities(f, snap)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "Ghost")

	src := string(u.Source)
	assert.Contains(t, src, "package data\n")
	assert.Contains(t, src, "var Spells = struct {")
	assert.Contains(t, src, `lazyref.New[*model.Spell]("00112233445566778899aabbccddeeff")`)
	assert.Contains(t, src, `lazyref.New[model.DamageType]("ffeeddccbbaa99887766554433221100")`)
	assert.Contains(t, src, "Fireball_2")
	assert.NotContains(t, src, "Ghost")
	assert.Equal(t, "data/spells_entities.go", u.Path)
	assert.Equal(t, "entities:data/spells.entities.json", u.Name)
}
