package extract

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// predeclared types stay unqualified in canonical type expressions.
var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "error": true,
	"float32": true, "float64": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
}

var versionSuffix = regexp.MustCompile(`^v[0-9]+$`)

// DefaultImportName guesses the package name an import path binds when the
// import has no explicit alias: the last path element, skipping a major
// version element, with a "go-" prefix and ".vN" suffix removed.
func DefaultImportName(importPath string) string {
	parts := strings.Split(importPath, "/")
	name := parts[len(parts)-1]
	if versionSuffix.MatchString(name) && len(parts) > 1 {
		name = parts[len(parts)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && versionSuffix.MatchString(name[i+1:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	return strings.ReplaceAll(name, "-", "_")
}

// scope resolves identifiers appearing in type positions of one file.
type scope struct {
	pkgPath    string
	imports    map[string]string // local package name -> import path
	typeParams map[string]bool
}

// with returns a copy of sc that also treats names as type parameters.
func (sc scope) with(names []string) scope {
	if len(names) == 0 {
		return sc
	}
	tp := make(map[string]bool, len(sc.typeParams)+len(names))
	for k := range sc.typeParams {
		tp[k] = true
	}
	for _, n := range names {
		tp[n] = true
	}
	sc.typeParams = tp
	return sc
}

// qualify returns the canonical name for a bare identifier in a type position.
func (sc scope) qualify(name string) string {
	if predeclared[name] || sc.typeParams[name] {
		return name
	}
	return sc.pkgPath + "." + name
}

// canon renders a type node as a canonical type expression: named types are
// written as "<import path>.<Name>" and composite types keep Go syntax with
// no spaces. Other shapes fall back to their whitespace-collapsed source.
func (sc scope) canon(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier", "identifier":
		return sc.qualify(n.Content(src))
	case "qualified_type":
		pkg := n.ChildByFieldName("package")
		name := n.ChildByFieldName("name")
		if pkg == nil || name == nil {
			return collapse(n.Content(src))
		}
		if path, ok := sc.imports[pkg.Content(src)]; ok {
			return path + "." + name.Content(src)
		}
		return pkg.Content(src) + "." + name.Content(src)
	case "pointer_type":
		return "*" + sc.canon(n.NamedChild(0), src)
	case "slice_type":
		return "[]" + sc.canon(n.ChildByFieldName("element"), src)
	case "array_type":
		length := n.ChildByFieldName("length")
		l := ""
		if length != nil {
			l = collapse(length.Content(src))
		}
		return "[" + l + "]" + sc.canon(n.ChildByFieldName("element"), src)
	case "map_type":
		return "map[" + sc.canon(n.ChildByFieldName("key"), src) + "]" + sc.canon(n.ChildByFieldName("value"), src)
	case "generic_type":
		base := sc.canon(n.ChildByFieldName("type"), src)
		args := n.ChildByFieldName("type_arguments")
		if args == nil {
			return base
		}
		var parts []string
		for i := 0; i < int(args.NamedChildCount()); i++ {
			parts = append(parts, sc.canon(args.NamedChild(i), src))
		}
		return base + "[" + strings.Join(parts, ",") + "]"
	case "parenthesized_type":
		return sc.canon(n.NamedChild(0), src)
	case "type_elem":
		if n.NamedChildCount() == 1 {
			return sc.canon(n.NamedChild(0), src)
		}
	}
	return collapse(n.Content(src))
}

// shortTypeName returns the bare type name of an embedded field's type node,
// which is also the implicit field name.
func shortTypeName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "pointer_type", "parenthesized_type":
		return shortTypeName(n.NamedChild(0), src)
	case "qualified_type":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	case "generic_type":
		if t := n.ChildByFieldName("type"); t != nil {
			return shortTypeName(t, src)
		}
	}
	return n.Content(src)
}

// collapse folds runs of whitespace to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
