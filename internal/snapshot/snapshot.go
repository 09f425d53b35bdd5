// Package snapshot is the read-only view of a program's declared types,
// functions and package-level values that the join and synthesis passes
// consume. A Snapshot is loaded from the index database once per pass and
// never mutated afterwards, so it is safe for concurrent readers.
package snapshot

import (
	"errors"
	"go/token"
	"sort"
	"strings"
)

// ErrTypeNotFound is returned when a name does not resolve to a declared type.
var ErrTypeNotFound = errors.New("snapshot: type not found")

// TypeID is the canonical identity of a type: its fully-qualified name
// ("<import path>.<Name>") for declared types, or a canonical type
// expression such as "*example.com/m.Spell" or "[]string" otherwise.
type TypeID string

// Package returns the import path part of a qualified identity, or "".
func (id TypeID) Package() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i > 0 && !strings.ContainsAny(s, "*[]() ") {
		return s[:i]
	}
	return ""
}

// Name returns the short name part of a qualified identity.
func (id TypeID) Name() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 && !strings.ContainsAny(s, "*[]() ") {
		return s[i+1:]
	}
	return s
}

// Type kinds.
const (
	KindStruct    = "struct"
	KindInterface = "interface"
	KindNamed     = "type"
	KindAlias     = "alias"
)

// Type is a declared type. Two lookups of the same name in one Snapshot
// return the same pointer.
type Type struct {
	ID          TypeID
	Name        string
	Package     string
	PackageName string
	Kind        string
	TypeParams  []string
	Underlying  string
	File        string
	Line        int

	fields  []Field
	embeds  []Embed
	methods []Method
}

// Exported reports whether the type's name is exported.
func (t *Type) Exported() bool { return token.IsExported(t.Name) }

// Generic reports whether the type declares type parameters.
func (t *Type) Generic() bool { return len(t.TypeParams) > 0 }

// IsStruct reports whether the type is declared as a struct.
func (t *Type) IsStruct() bool { return t.Kind == KindStruct }

// Embeds returns the type's own embedded fields in declaration order.
func (t *Type) Embeds() []Embed { return t.embeds }

// Field is a named struct field, own or promoted through embedding.
type Field struct {
	Name  string
	Type  TypeID
	Owner TypeID
	// Path lists the embedded field names from the queried type down to
	// Owner; empty for the type's own fields.
	Path []string
}

// Exported reports whether the field can be selected from another package.
func (f Field) Exported() bool { return token.IsExported(f.Name) }

// Embed is one embedded field.
type Embed struct {
	Name    string
	Type    TypeID // the embedded named type without pointer or type arguments
	Pointer bool
	Generic bool // embedded with type arguments
}

// Method is a method declared on a type, own or promoted.
type Method struct {
	Name            string
	Owner           TypeID
	PointerReceiver bool
	Params          []TypeID
	Results         []TypeID
	Path            []string
}

// Exported reports whether the method can be called from another package.
func (m Method) Exported() bool { return token.IsExported(m.Name) }

// Func is a package-level function.
type Func struct {
	Name        string
	Package     string
	PackageName string
	TypeParams  []string
	Params      []TypeID
	Results     []TypeID
	File        string
	Line        int
}

// QualifiedName returns "<import path>.<Name>".
func (f Func) QualifiedName() string { return f.Package + "." + f.Name }

// Exported reports whether the function is exported.
func (f Func) Exported() bool { return token.IsExported(f.Name) }

// Value is a package-level var or const.
type Value struct {
	Name        string
	Package     string
	PackageName string
	Type        TypeID // empty when the declaration has no explicit type
	Const       bool
	File        string
	Line        int
}

// Exported reports whether the value is exported.
func (v Value) Exported() bool { return token.IsExported(v.Name) }

// Call is a recorded call of a New-prefixed function.
type Call struct {
	Name   string // qualified callee, "<import path>.<Func>"
	File   string
	Line   int
	Column int
}

// Program is the surface the join, planning and emission passes need.
type Program interface {
	RootNamespace() string
	Lookup(name string) (*Type, bool)
	Type(id TypeID) (*Type, bool)
	Types() []*Type
	Fields(t *Type) []Field
	Methods(t *Type) []Method
	Bases(t *Type) []*Type
	Chain(t *Type) []*Type
	AssignableTo(src, dst *Type) bool
	IsPublic(t *Type) bool
	Funcs(pkg string) []Func
	Values(pkg string) []Value
	HasFunc(pkg, name string) bool
	Calls() []Call
	PackageName(pkg string) string
}

var _ Program = (*Snapshot)(nil)

// Snapshot is the loaded, immutable program view.
type Snapshot struct {
	root     string
	types    map[TypeID]*Type
	ordered  []*Type
	funcs    map[string][]Func
	values   map[string][]Value
	calls    []Call
	pkgNames map[string]string
}

func newSnapshot(root string) *Snapshot {
	return &Snapshot{
		root:     root,
		types:    make(map[TypeID]*Type),
		funcs:    make(map[string][]Func),
		values:   make(map[string][]Value),
		pkgNames: make(map[string]string),
	}
}

// RootNamespace returns the namespace unqualified names resolve against.
func (s *Snapshot) RootNamespace() string { return s.root }

// Lookup resolves a catalog-style type name: the exact identity first, then
// the name relative to the root namespace as a sub-package path
// ("model.Spell" -> "<root>/model.Spell"), then as a root-package type
// ("Spell" -> "<root>.Spell").
func (s *Snapshot) Lookup(name string) (*Type, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if t, ok := s.types[TypeID(name)]; ok {
		return t, true
	}
	if s.root == "" {
		return nil, false
	}
	if t, ok := s.types[TypeID(s.root+"/"+name)]; ok {
		return t, true
	}
	if t, ok := s.types[TypeID(s.root+"."+name)]; ok {
		return t, true
	}
	return nil, false
}

// Type returns the declared type with the given identity.
func (s *Snapshot) Type(id TypeID) (*Type, bool) {
	t, ok := s.types[id]
	return t, ok
}

// Types returns every declared type ordered by identity.
func (s *Snapshot) Types() []*Type { return s.ordered }

// IsPublic reports whether entries of t may be exposed in generated code.
func (s *Snapshot) IsPublic(t *Type) bool { return t != nil && t.Exported() }

// Funcs returns the package's functions in declaration order.
func (s *Snapshot) Funcs(pkg string) []Func { return s.funcs[pkg] }

// Values returns the package's vars and consts in declaration order.
func (s *Snapshot) Values(pkg string) []Value { return s.values[pkg] }

// HasFunc reports whether pkg declares a function called name.
func (s *Snapshot) HasFunc(pkg, name string) bool {
	for _, f := range s.funcs[pkg] {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Calls returns all recorded New-prefixed calls ordered by file and position.
func (s *Snapshot) Calls() []Call { return s.calls }

// PackageName returns the declared name of the package at import path pkg,
// falling back to the last path element.
func (s *Snapshot) PackageName(pkg string) string {
	if n, ok := s.pkgNames[pkg]; ok {
		return n
	}
	return pkg[strings.LastIndexByte(pkg, '/')+1:]
}

// Bases returns the struct types t embeds directly, in declaration order.
// Generic instantiations and types outside the program are skipped.
func (s *Snapshot) Bases(t *Type) []*Type {
	var out []*Type
	for _, e := range t.embeds {
		if e.Generic {
			continue
		}
		if bt, ok := s.types[e.Type]; ok && bt.IsStruct() {
			out = append(out, bt)
		}
	}
	return out
}

// Chain returns t followed by every struct type reachable through embedding,
// breadth-first in declaration order, each type once.
func (s *Snapshot) Chain(t *Type) []*Type {
	out := []*Type{t}
	seen := map[TypeID]bool{t.ID: true}
	for i := 0; i < len(out); i++ {
		for _, b := range s.Bases(out[i]) {
			if !seen[b.ID] {
				seen[b.ID] = true
				out = append(out, b)
			}
		}
	}
	return out
}

// AssignableTo reports whether a value of src can stand in for dst: dst is
// src itself or one of the types src embeds.
func (s *Snapshot) AssignableTo(src, dst *Type) bool {
	if src == nil || dst == nil {
		return false
	}
	for _, c := range s.Chain(src) {
		if c == dst {
			return true
		}
	}
	return false
}

// Fields returns the fields selectable on t following Go's promotion rules:
// a shallower selector shadows deeper ones and a name found twice at the
// same depth is ambiguous and dropped. Own fields come first, then promoted
// fields breadth-first.
func (s *Snapshot) Fields(t *Type) []Field {
	fields, _ := s.selectors(t)
	return fields
}

// Methods returns the methods callable on a *t, own first, then promoted,
// with the same shadowing rules as Fields.
func (s *Snapshot) Methods(t *Type) []Method {
	_, methods := s.selectors(t)
	return methods
}

type level struct {
	t    *Type
	path []string
}

type candidate struct {
	name   string
	field  *Field
	method *Method
}

func (s *Snapshot) selectors(t *Type) ([]Field, []Method) {
	var fields []Field
	var methods []Method
	shadowed := make(map[string]bool)
	visited := map[TypeID]bool{t.ID: true}

	current := []level{{t: t}}
	for len(current) > 0 {
		var cands []candidate
		count := make(map[string]int)
		add := func(c candidate) {
			if shadowed[c.name] {
				return
			}
			if count[c.name] == 0 {
				cands = append(cands, c)
			}
			count[c.name]++
		}

		var next []level
		for _, lv := range current {
			for _, f := range lv.t.fields {
				f.Path = lv.path
				add(candidate{name: f.Name, field: &f})
			}
			for _, m := range lv.t.methods {
				m.Path = lv.path
				add(candidate{name: m.Name, method: &m})
			}
			for _, e := range lv.t.embeds {
				add(candidate{name: e.Name})
				if e.Generic || visited[e.Type] {
					continue
				}
				bt, ok := s.types[e.Type]
				if !ok || !bt.IsStruct() {
					continue
				}
				path := make([]string, len(lv.path)+1)
				copy(path, lv.path)
				path[len(lv.path)] = e.Name
				next = append(next, level{t: bt, path: path})
			}
		}

		// A type reached along several paths at one depth is walked once
		// per path, so its members count as ambiguous at the next level.
		for _, lv := range next {
			visited[lv.t.ID] = true
		}
		for _, c := range cands {
			shadowed[c.name] = true
			if count[c.name] > 1 {
				continue
			}
			switch {
			case c.field != nil:
				fields = append(fields, *c.field)
			case c.method != nil:
				methods = append(methods, *c.method)
			}
		}
		current = next
	}
	return fields, methods
}

// BaseTypeID strips one pointer and any type arguments from a canonical
// type expression, reporting whether each was present.
func BaseTypeID(expr string) (id TypeID, pointer, generic bool) {
	if strings.HasPrefix(expr, "*") {
		pointer = true
		expr = expr[1:]
	}
	if i := strings.IndexByte(expr, '['); i > 0 {
		generic = true
		expr = expr[:i]
	}
	return TypeID(expr), pointer, generic
}

func (s *Snapshot) addType(t *Type) {
	s.types[t.ID] = t
}

func (s *Snapshot) finish() {
	s.ordered = make([]*Type, 0, len(s.types))
	for _, t := range s.types {
		s.ordered = append(s.ordered, t)
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].ID < s.ordered[j].ID })
	for _, t := range s.ordered {
		if t.PackageName == "" {
			t.PackageName = s.PackageName(t.Package)
		}
	}
	for pkg, fs := range s.funcs {
		for i := range fs {
			fs[i].PackageName = s.PackageName(pkg)
		}
	}
	for pkg, vs := range s.values {
		for i := range vs {
			vs[i].PackageName = s.PackageName(pkg)
		}
	}
}
