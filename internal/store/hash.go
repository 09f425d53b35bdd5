package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// ComputeSignatureHash hashes the parts of a declaration that the join and
// synthesis passes observe: name, kind, visibility, modifiers, declared type,
// members, parameters and type parameters. Source positions do not affect
// the result, so moving a declaration does not mark its type changed.
func ComputeSignatureHash(
	name, kind, visibility, typeExpr string,
	modifiers []string,
	members []*TypeMember,
	params []*FunctionParam,
	typeParams []*TypeParam,
) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "visibility:%s\n", visibility)
	fmt.Fprintf(h, "type:%s\n", typeExpr)

	sorted := make([]string, len(modifiers))
	copy(sorted, modifiers)
	sort.Strings(sorted)
	fmt.Fprintf(h, "modifiers:%s\n", strings.Join(sorted, ","))

	// Member order is significant: embedded struct order drives chain order.
	for _, m := range members {
		fmt.Fprintf(h, "member:%s:%s:%s:%s\n", m.Name, m.Kind, m.TypeExpr, m.Visibility)
	}

	ps := make([]*FunctionParam, len(params))
	copy(ps, params)
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].IsReturn != ps[j].IsReturn {
			return !ps[i].IsReturn
		}
		return ps[i].Ordinal < ps[j].Ordinal
	})
	for _, p := range ps {
		fmt.Fprintf(h, "param:%s:%d:%s:%v:%v\n", p.Name, p.Ordinal, p.TypeExpr, p.IsReceiver, p.IsReturn)
	}

	tps := make([]*TypeParam, len(typeParams))
	copy(tps, typeParams)
	sort.SliceStable(tps, func(i, j int) bool { return tps[i].Ordinal < tps[j].Ordinal })
	for _, tp := range tps {
		fmt.Fprintf(h, "typeparam:%s:%d:%s\n", tp.Name, tp.Ordinal, tp.Constraints)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
