package initplan

import (
	"errors"
	"fmt"
	"go/token"
	"strings"

	"github.com/jward/blueprintgen/internal/diag"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// ErrNotStruct is returned when a plan is requested for a non-struct type.
var ErrNotStruct = errors.New("initplan: not a struct type")

// Step is one embedded field on the way from the target to an ancestor.
type Step struct {
	Name    string
	Type    snapshot.TypeID
	Pointer bool
}

// Selector renders steps as a dotted selector suffix, e.g. "Spell.Entity".
func Selector(steps []Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Alloc is a pointer-embedded ancestor the constructor allocates. The last
// step is the pointer.
type Alloc struct {
	Path []Step
}

// FieldInit assigns a provider to a field, own or promoted.
type FieldInit struct {
	Field    snapshot.Field
	Provider Provider
}

// PropertyInit calls a setter with a provider.
type PropertyInit struct {
	Property string
	Setter   snapshot.Method
	Provider Provider
}

// ChainInit applies a chaining function to the target or to the ancestor at
// Path.
type ChainInit struct {
	Func ChainFunc
	Path []Step
}

// Plan is the initialization recipe for one target type.
type Plan struct {
	Target        *snapshot.Type
	Allocs        []Alloc
	FieldInits    []FieldInit
	PropertyInits []PropertyInit
	ChainInits    []ChainInit
	Diagnostics   []diag.Diagnostic
}

// Empty reports whether the plan initializes nothing beyond allocation.
func (p *Plan) Empty() bool {
	return len(p.FieldInits) == 0 && len(p.PropertyInits) == 0 && len(p.ChainInits) == 0
}

// Resolver builds plans against one registry. Package is the import path
// the constructor will be emitted in; it decides which unexported members
// are reachable.
type Resolver struct {
	Program  snapshot.Program
	Registry *Registry
	Package  string
}

// NewResolver returns a Resolver for constructors emitted into pkg.
func NewResolver(p snapshot.Program, reg *Registry, pkg string) *Resolver {
	return &Resolver{Program: p, Registry: reg, Package: pkg}
}

// ancestor is one type reached through embedding.
type ancestor struct {
	t    *snapshot.Type
	path []Step
	// addressable: every step can be named from the output package.
	addressable bool
	// live: every pointer step on the path is allocated by the constructor.
	live bool
}

// Resolve computes t's plan: fields matched against value providers,
// setters likewise, then chaining functions whose type is in t's chain.
// Members that cannot be reached from the output package are ignored;
// chaining functions that cannot be applied become diagnostics.
func (r *Resolver) Resolve(t *snapshot.Type) (*Plan, error) {
	if t == nil || !t.IsStruct() {
		name := "<nil>"
		if t != nil {
			name = string(t.ID)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, name)
	}

	plan := &Plan{Target: t}
	ancestors := r.ancestors(t)
	byPath := make(map[string]*ancestor, len(ancestors))
	byType := make(map[snapshot.TypeID]*ancestor, len(ancestors))
	for _, a := range ancestors {
		byPath[Selector(a.path)] = a
		byType[a.t.ID] = a
		if len(a.path) > 0 && a.path[len(a.path)-1].Pointer && a.live {
			plan.Allocs = append(plan.Allocs, Alloc{Path: a.path})
		}
	}
	reachable := func(path []string) bool {
		a, ok := byPath[strings.Join(path, ".")]
		return ok && a.live
	}

	for _, f := range r.Program.Fields(t) {
		if !r.accessible(f.Name, f.Owner) || !reachable(f.Path) {
			continue
		}
		if p, ok := r.Registry.Provider(f.Type); ok {
			plan.FieldInits = append(plan.FieldInits, FieldInit{Field: f, Provider: p})
		}
	}

	for _, m := range r.Program.Methods(t) {
		prop, ok := setterProperty(m)
		if !ok || !r.accessible(m.Name, m.Owner) || !reachable(m.Path) {
			continue
		}
		if p, ok := r.Registry.Provider(m.Params[0]); ok {
			plan.PropertyInits = append(plan.PropertyInits, PropertyInit{Property: prop, Setter: m, Provider: p})
		}
	}

	if t.Generic() {
		return plan, nil
	}
	for _, cf := range r.Registry.ChainFuncs() {
		bt, ok := r.Program.Type(cf.Base)
		if !ok || !r.Program.AssignableTo(t, bt) {
			continue
		}
		a := byType[bt.ID]
		if a == nil || !a.addressable || !a.live {
			plan.Diagnostics = append(plan.Diagnostics, diag.Warningf(string(t.ID),
				"chain function %s skipped: %s is not reachable from package %s",
				cf.QualifiedName(), bt.ID, r.Package,
			).At(t.File, t.Line))
			continue
		}
		plan.ChainInits = append(plan.ChainInits, ChainInit{Func: cf, Path: a.path})
	}
	return plan, nil
}

// ancestors walks t's embedded struct types breadth-first in declaration
// order, each type once, recording how each is reached.
func (r *Resolver) ancestors(t *snapshot.Type) []*ancestor {
	out := []*ancestor{{t: t, addressable: true, live: true}}
	visited := map[snapshot.TypeID]bool{t.ID: true}
	for i := 0; i < len(out); i++ {
		cur := out[i]
		for _, e := range cur.t.Embeds() {
			if e.Generic || visited[e.Type] {
				continue
			}
			bt, ok := r.Program.Type(e.Type)
			if !ok || !bt.IsStruct() {
				continue
			}
			visited[bt.ID] = true
			named := cur.addressable && r.accessible(e.Name, cur.t.ID)
			path := make([]Step, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, Step{Name: e.Name, Type: bt.ID, Pointer: e.Pointer})
			out = append(out, &ancestor{
				t:           bt,
				path:        path,
				addressable: named,
				live:        cur.live && (!e.Pointer || named),
			})
		}
	}
	return out
}

// accessible reports whether a member called name declared by owner can be
// selected from the output package.
func (r *Resolver) accessible(name string, owner snapshot.TypeID) bool {
	return token.IsExported(name) || owner.Package() == r.Package
}

// setterProperty reports whether m is a setter SetP(v U) and returns P.
func setterProperty(m snapshot.Method) (string, bool) {
	prop, ok := strings.CutPrefix(m.Name, "Set")
	if !ok || prop == "" || len(m.Params) != 1 || len(m.Results) != 0 {
		return "", false
	}
	return prop, true
}
