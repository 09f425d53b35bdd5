package emit

import (
	"bytes"
	"fmt"
	"path"

	"github.com/jward/blueprintgen/internal/initplan"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// ConstructorUnitName returns the stable unit name for a type's constructor.
func ConstructorUnitName(id snapshot.TypeID) string { return "new:" + string(id) }

// ConstructorName returns the function name emitted for a type whose short
// name from TypeNames is name.
func ConstructorName(name string) string { return "New" + name }

// Constructor renders func New<name.Ident>() *T for plan. The body allocates the
// value and its pointer-embedded ancestors, assigns fields, calls setters,
// and finally applies the chaining functions in order, each consuming the
// previous result.
func Constructor(p snapshot.Program, plan *initplan.Plan, name Name, opts Options) (*Unit, error) {
	t := plan.Target
	if t.Generic() {
		return nil, fmt.Errorf("%w: %s is generic", ErrUnsupported, t.ID)
	}
	im := newImports(opts.Package)
	fn := ConstructorName(name.Ident)

	var body bytes.Buffer
	fmt.Fprintf(&body, "// %s returns a new %s with its registry defaults applied.\n", fn, t.ID)
	fmt.Fprintf(&body, "func %s() *%s {\n", fn, im.typeRef(t))
	fmt.Fprintf(&body, "\tv := &%s{}\n", im.typeRef(t))

	for _, a := range plan.Allocs {
		bt, ok := p.Type(a.Path[len(a.Path)-1].Type)
		if !ok {
			return nil, fmt.Errorf("emit: constructor %s: %w", t.ID, snapshot.ErrTypeNotFound)
		}
		fmt.Fprintf(&body, "\tv.%s = &%s{}\n", initplan.Selector(a.Path), im.typeRef(bt))
	}
	for _, fi := range plan.FieldInits {
		fmt.Fprintf(&body, "\tv.%s = %s\n", fi.Field.Name, providerExpr(im, fi.Provider))
	}
	for _, pi := range plan.PropertyInits {
		fmt.Fprintf(&body, "\tv.%s(%s)\n", pi.Setter.Name, providerExpr(im, pi.Provider))
	}
	for _, ci := range plan.ChainInits {
		body.WriteString("\t" + chainStmt(im, ci) + "\n")
	}
	body.WriteString("\treturn v\n}\n")

	src, err := assemble(opts.PackageName, im, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("emit: constructor %s: %w", t.ID, err)
	}
	return &Unit{
		Name:    ConstructorUnitName(t.ID),
		Path:    path.Join(opts.Dir, name.File+"_new.go"),
		Package: opts.Package,
		Source:  src,
	}, nil
}

func providerExpr(im *imports, p initplan.Provider) string {
	expr := im.qualify(p.Package, p.PackageName, p.Name)
	if p.Kind == initplan.FuncProvider {
		expr += "()"
	}
	return expr
}

// chainStmt applies one chaining function in place. A function over *B
// receives the address of the ancestor; one over B receives a copy and the
// result is stored back.
func chainStmt(im *imports, ci initplan.ChainInit) string {
	fn := im.qualify(ci.Func.Package, ci.Func.PackageName, ci.Func.Name)
	if len(ci.Path) == 0 {
		if ci.Func.Pointer {
			return fmt.Sprintf("v = %s(v)", fn)
		}
		return fmt.Sprintf("*v = %s(*v)", fn)
	}
	sel := "v." + initplan.Selector(ci.Path)
	embedPtr := ci.Path[len(ci.Path)-1].Pointer
	switch {
	case ci.Func.Pointer && embedPtr:
		return fmt.Sprintf("%s = %s(%s)", sel, fn, sel)
	case ci.Func.Pointer:
		return fmt.Sprintf("%s = *%s(&%s)", sel, fn, sel)
	case embedPtr:
		return fmt.Sprintf("*%s = %s(*%s)", sel, fn, sel)
	default:
		return fmt.Sprintf("%s = %s(%s)", sel, fn, sel)
	}
}
