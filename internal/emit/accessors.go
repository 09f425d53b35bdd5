package emit

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/diag"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// AccessorsUnitName returns the stable unit name for a type's accessors.
func AccessorsUnitName(id snapshot.TypeID) string { return "refs:" + string(id) }

// Accessors renders one handle per entry of g as fields of a package-level
// struct value <name>Refs, plus <name>RefsByID indexing the same handles by
// entry id. t is the group's type and name its names from TypeNames.
func Accessors(g *join.Group, t *snapshot.Type, name Name, opts Options) (*Unit, error) {
	if t.Generic() {
		return nil, fmt.Errorf("%w: %s is generic", ErrUnsupported, t.ID)
	}
	im := newImports(opts.Package)
	lazy := im.use(LazyRefImport, "lazyref")
	elem := handleType(im, t)
	ref := fmt.Sprintf("*%s.Ref[%s]", lazy, elem)
	refs := name.Ident + "Refs"

	var body bytes.Buffer
	fmt.Fprintf(&body, "// %s holds one lazily resolved handle per catalog entry of %s.\n", refs, t.ID)
	fmt.Fprintf(&body, "var %s = struct {\n", refs)
	for _, e := range g.Entries {
		fmt.Fprintf(&body, "\t%s %s\n", e.Name, ref)
	}
	body.WriteString("}{\n")
	for _, e := range g.Entries {
		fmt.Fprintf(&body, "\t%s: %s.New[%s](%s),\n", e.Name, lazy, elem, strconv.Quote(e.ID))
	}
	body.WriteString("}\n\n")

	fmt.Fprintf(&body, "// %sByID indexes %s by entry id.\n", refs, refs)
	fmt.Fprintf(&body, "var %sByID = map[string]%s{\n", refs, ref)
	seen := make(map[string]bool, len(g.Entries))
	for _, e := range g.Entries {
		// Duplicate ids are a catalog integrity problem; the first wins.
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		fmt.Fprintf(&body, "\t%s: %s.%s,\n", strconv.Quote(e.ID), refs, e.Name)
	}
	body.WriteString("}\n")

	src, err := assemble(opts.PackageName, im, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("emit: accessors %s: %w", t.ID, err)
	}
	return &Unit{
		Name:    AccessorsUnitName(t.ID),
		Path:    path.Join(opts.Dir, name.File+"_refs.go"),
		Package: opts.Package,
		Source:  src,
	}, nil
}

// EntityFile is a parsed new-entity file and the package its accessors are
// emitted in: the file's own directory.
type EntityFile struct {
	Path        string // slash-separated, relative to the project root
	Package     string
	PackageName string
	Entities    []catalog.NewEntity
}

// NewEntities renders the handles declared by a new-entity file as fields of
// one package-level struct value named after the file. Entities whose type
// does not resolve to a public, non-generic type are skipped with a warning.
func NewEntities(f EntityFile, p snapshot.Program) (*Unit, []diag.Diagnostic, error) {
	varName := catalog.EntitiesVarName(f.Path)
	im := newImports(f.Package)
	lazy := im.use(LazyRefImport, "lazyref")

	var diags []diag.Diagnostic
	var entries []join.Entry
	var elems []string
	for _, ent := range f.Entities {
		t, ok := p.Lookup(ent.Type)
		switch {
		case !ok:
			diags = append(diags, diag.Warningf(ent.Type, "entity %s in %s: type does not resolve", ent.Name, f.Path))
			continue
		case !p.IsPublic(t) && t.Package != f.Package:
			diags = append(diags, diag.Warningf(string(t.ID), "entity %s in %s: type is not exported", ent.Name, f.Path))
			continue
		case t.Generic():
			diags = append(diags, diag.Warningf(string(t.ID), "entity %s in %s: type is generic", ent.Name, f.Path))
			continue
		}
		entries = append(entries, join.Entry{
			Entry: catalog.Entry{ID: ent.AssetID, RawName: ent.Name, SanitizedName: ent.SanitizedName, TypeName: ent.Type},
			Name:  ent.SanitizedName,
		})
		elems = append(elems, handleType(im, t))
	}
	join.Disambiguate(entries)

	var body bytes.Buffer
	fmt.Fprintf(&body, "// %s holds the handles declared in %s.\n", varName, path.Base(f.Path))
	fmt.Fprintf(&body, "var %s = struct {\n", varName)
	for i, e := range entries {
		fmt.Fprintf(&body, "\t%s *%s.Ref[%s]\n", e.Name, lazy, elems[i])
	}
	body.WriteString("}{\n")
	for i, e := range entries {
		fmt.Fprintf(&body, "\t%s: %s.New[%s](%s),\n", e.Name, lazy, elems[i], strconv.Quote(e.ID))
	}
	body.WriteString("}\n")

	src, err := assemble(f.PackageName, im, body.Bytes())
	if err != nil {
		return nil, diags, fmt.Errorf("emit: entities %s: %w", f.Path, err)
	}
	base := strings.TrimSuffix(path.Base(f.Path), catalog.EntitiesSuffix)
	return &Unit{
		Name:    "entities:" + f.Path,
		Path:    path.Join(path.Dir(f.Path), base+"_entities.go"),
		Package: f.Package,
		Source:  src,
	}, diags, nil
}
