package snapshot

import (
	"fmt"

	"github.com/jward/blueprintgen/internal/extract"
	"github.com/jward/blueprintgen/internal/store"
)

// Load builds a Snapshot from everything currently indexed in s.
func Load(s *store.Store, rootNamespace string) (*Snapshot, error) {
	files, err := s.AllFiles()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	fileByID := make(map[int64]*store.File, len(files))
	for _, f := range files {
		fileByID[f.ID] = f
	}

	syms, err := s.AllSymbols()
	if err != nil {
		return nil, fmt.Errorf("snapshot: symbols: %w", err)
	}
	members, err := s.AllTypeMembers()
	if err != nil {
		return nil, fmt.Errorf("snapshot: members: %w", err)
	}
	params, err := s.AllFunctionParams()
	if err != nil {
		return nil, fmt.Errorf("snapshot: params: %w", err)
	}
	typeParams, err := s.AllTypeParams()
	if err != nil {
		return nil, fmt.Errorf("snapshot: type params: %w", err)
	}

	snap := newSnapshot(rootNamespace)
	type pendingMethod struct {
		recv TypeID
		m    Method
	}
	var methods []pendingMethod

	for _, sym := range syms {
		if sym.FileID == nil {
			continue
		}
		f, ok := fileByID[*sym.FileID]
		if !ok {
			continue
		}
		pkg := f.PackagePath
		line := sym.StartLine + 1

		switch sym.Kind {
		case extract.KindPackage:
			if _, seen := snap.pkgNames[pkg]; !seen {
				snap.pkgNames[pkg] = sym.Name
			}

		case extract.KindStruct, extract.KindInterface, extract.KindType, extract.KindAlias:
			t := &Type{
				ID:         TypeID(pkg + "." + sym.Name),
				Name:       sym.Name,
				Package:    pkg,
				Kind:       sym.Kind,
				Underlying: sym.TypeExpr,
				File:       f.Path,
				Line:       line,
			}
			for _, tp := range typeParams[sym.ID] {
				t.TypeParams = append(t.TypeParams, tp.Name)
			}
			for _, m := range members[sym.ID] {
				switch m.Kind {
				case extract.MemberField:
					t.fields = append(t.fields, Field{Name: m.Name, Type: TypeID(m.TypeExpr), Owner: t.ID})
				case extract.MemberEmbedded:
					base, ptr, generic := BaseTypeID(m.TypeExpr)
					t.embeds = append(t.embeds, Embed{Name: m.Name, Type: base, Pointer: ptr, Generic: generic})
				}
			}
			snap.addType(t)

		case extract.KindFunction:
			fn := Func{Name: sym.Name, Package: pkg, File: f.Path, Line: line}
			for _, tp := range typeParams[sym.ID] {
				fn.TypeParams = append(fn.TypeParams, tp.Name)
			}
			for _, p := range params[sym.ID] {
				if p.IsReturn {
					fn.Results = append(fn.Results, TypeID(p.TypeExpr))
				} else {
					fn.Params = append(fn.Params, TypeID(p.TypeExpr))
				}
			}
			snap.funcs[pkg] = append(snap.funcs[pkg], fn)

		case extract.KindMethod:
			var pm pendingMethod
			pm.m.Name = sym.Name
			for _, p := range params[sym.ID] {
				switch {
				case p.IsReceiver:
					base, ptr, _ := BaseTypeID(p.TypeExpr)
					pm.recv = base
					pm.m.PointerReceiver = ptr
				case p.IsReturn:
					pm.m.Results = append(pm.m.Results, TypeID(p.TypeExpr))
				default:
					pm.m.Params = append(pm.m.Params, TypeID(p.TypeExpr))
				}
			}
			if pm.recv != "" {
				pm.m.Owner = pm.recv
				methods = append(methods, pm)
			}

		case extract.KindVariable, extract.KindConstant:
			snap.values[pkg] = append(snap.values[pkg], Value{
				Name:    sym.Name,
				Package: pkg,
				Type:    TypeID(sym.TypeExpr),
				Const:   sym.Kind == extract.KindConstant,
				File:    f.Path,
				Line:    line,
			})
		}
	}

	// Methods may be declared in a different file than their receiver type.
	for _, pm := range methods {
		if t, ok := snap.types[pm.recv]; ok {
			t.methods = append(t.methods, pm.m)
		}
	}

	refs, err := s.ReferencesByContext(extract.ContextCall)
	if err != nil {
		return nil, fmt.Errorf("snapshot: calls: %w", err)
	}
	for _, r := range refs {
		f, ok := fileByID[r.FileID]
		if !ok {
			continue
		}
		snap.calls = append(snap.calls, Call{Name: r.Name, File: f.Path, Line: r.StartLine + 1, Column: r.StartCol + 1})
	}

	snap.finish()
	return snap, nil
}
