// Package initplan resolves, for a struct type, which registry defaults and
// chaining functions a synthesized constructor applies.
package initplan

import (
	"sort"
	"strings"

	"github.com/jward/blueprintgen/internal/snapshot"
)

// ProviderKind distinguishes the two forms of value provider.
type ProviderKind int

const (
	// ValueProvider is a package-level var or const with an explicit type.
	ValueProvider ProviderKind = iota
	// FuncProvider is a zero-argument function returning one value.
	FuncProvider
)

// Provider supplies a default value of exactly one type.
type Provider struct {
	Kind        ProviderKind
	Name        string
	Package     string
	PackageName string
	Type        snapshot.TypeID
	File        string
	Line        int
}

// QualifiedName returns "<import path>.<Name>".
func (p Provider) QualifiedName() string { return p.Package + "." + p.Name }

// ChainFunc transforms a value of a struct type into another of the same
// type: func(*B) *B or func(B) B.
type ChainFunc struct {
	Name        string
	Package     string
	PackageName string
	Base        snapshot.TypeID
	Pointer     bool
	File        string
	Line        int
}

// QualifiedName returns "<import path>.<Name>".
func (c ChainFunc) QualifiedName() string { return c.Package + "." + c.Name }

// Registry is the DefaultValueRegistry: value providers keyed by exact type
// identity and chaining functions in declaration order.
type Registry struct {
	pkg       string
	providers map[snapshot.TypeID]Provider
	ordered   []Provider
	chains    []ChainFunc
}

// NewRegistry collects the exported providers and chaining functions
// declared in the package at import path pkg. Declaration order is file
// path, then source line; the first provider for a type wins.
func NewRegistry(p snapshot.Program, pkg string) *Registry {
	r := &Registry{pkg: pkg, providers: make(map[snapshot.TypeID]Provider)}

	var candidates []Provider
	for _, v := range p.Values(pkg) {
		if !v.Exported() || v.Type == "" {
			continue
		}
		candidates = append(candidates, Provider{
			Kind:        ValueProvider,
			Name:        v.Name,
			Package:     v.Package,
			PackageName: v.PackageName,
			Type:        v.Type,
			File:        v.File,
			Line:        v.Line,
		})
	}
	for _, f := range p.Funcs(pkg) {
		if !f.Exported() || len(f.TypeParams) > 0 || len(f.Results) != 1 {
			continue
		}
		switch len(f.Params) {
		case 0:
			candidates = append(candidates, Provider{
				Kind:        FuncProvider,
				Name:        f.Name,
				Package:     f.Package,
				PackageName: f.PackageName,
				Type:        f.Results[0],
				File:        f.File,
				Line:        f.Line,
			})
		case 1:
			if cf, ok := chainFunc(p, f); ok {
				r.chains = append(r.chains, cf)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return declaredBefore(candidates[i].File, candidates[i].Line, candidates[j].File, candidates[j].Line)
	})
	for _, c := range candidates {
		if _, dup := r.providers[c.Type]; dup {
			continue
		}
		r.providers[c.Type] = c
		r.ordered = append(r.ordered, c)
	}
	sort.SliceStable(r.chains, func(i, j int) bool {
		return declaredBefore(r.chains[i].File, r.chains[i].Line, r.chains[j].File, r.chains[j].Line)
	})
	return r
}

func chainFunc(p snapshot.Program, f snapshot.Func) (ChainFunc, bool) {
	if f.Params[0] != f.Results[0] {
		return ChainFunc{}, false
	}
	base, ptr, generic := snapshot.BaseTypeID(string(f.Params[0]))
	if generic || strings.HasPrefix(string(base), "*") {
		return ChainFunc{}, false
	}
	t, ok := p.Type(base)
	if !ok || !t.IsStruct() || t.Generic() {
		return ChainFunc{}, false
	}
	return ChainFunc{
		Name:        f.Name,
		Package:     f.Package,
		PackageName: f.PackageName,
		Base:        base,
		Pointer:     ptr,
		File:        f.File,
		Line:        f.Line,
	}, true
}

func declaredBefore(fileA string, lineA int, fileB string, lineB int) bool {
	if fileA != fileB {
		return fileA < fileB
	}
	return lineA < lineB
}

// Package returns the registry's import path.
func (r *Registry) Package() string { return r.pkg }

// Provider returns the provider registered for exactly id.
func (r *Registry) Provider(id snapshot.TypeID) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns the winning providers in declaration order.
func (r *Registry) Providers() []Provider { return r.ordered }

// ChainFuncs returns the chaining functions in declaration order.
func (r *Registry) ChainFuncs() []ChainFunc { return r.chains }
