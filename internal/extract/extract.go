// Package extract turns Go source files into snapshot rows: declared types
// with their fields and embeds, functions, methods, package-level values, and
// constructor-style call references.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"go/token"
	"path"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/blueprintgen/internal/store"
)

// Symbol kinds written by the extractor.
const (
	KindPackage   = "package"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindType      = "type"
	KindAlias     = "alias"
	KindFunction  = "function"
	KindMethod    = "method"
	KindVariable  = "variable"
	KindConstant  = "constant"
)

// Member kinds.
const (
	MemberField    = "field"
	MemberEmbedded = "embedded"
)

// ContextCall marks references that are calls to a New-prefixed function.
const ContextCall = "call"

var generatedHeader = regexp.MustCompile(`^// Code generated .* DO NOT EDIT\.$`)

// IsGenerated reports whether src carries the standard generated-code header
// before its package clause.
func IsGenerated(src []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "package ") {
			return false
		}
		if generatedHeader.MatchString(line) {
			return true
		}
	}
	return false
}

// PackagePath joins the root namespace with a slash-separated directory
// relative to the project root.
func PackagePath(rootNamespace, relDir string) string {
	relDir = path.Clean(strings.ReplaceAll(relDir, "\\", "/"))
	if relDir == "." || relDir == "" {
		return rootNamespace
	}
	return rootNamespace + "/" + relDir
}

// Visibility returns "public" for exported identifiers and "private" otherwise.
func Visibility(name string) string {
	if token.IsExported(name) {
		return "public"
	}
	return "private"
}

// ExtractFile parses src and writes everything it declares to ds. pkgPath is
// the import path of the file's package and qualifies local type names.
func ExtractFile(ctx context.Context, ds store.DataStore, fileID int64, pkgPath string, src []byte) error {
	lang, _ := GrammarForLanguage("go")
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("extract: parse: %w", err)
	}
	defer tree.Close()

	x := &fileExtractor{
		ds:     ds,
		fileID: fileID,
		src:    src,
		scope:  scope{pkgPath: pkgPath, imports: make(map[string]string)},
	}
	return x.run(ctx, tree.RootNode())
}

type fileExtractor struct {
	ds     store.DataStore
	fileID int64
	src    []byte
	scope  scope
}

func (x *fileExtractor) run(ctx context.Context, root *sitter.Node) error {
	// Imports first: every later type expression depends on them.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "package_clause":
			if err := x.packageClause(n); err != nil {
				return err
			}
		case "import_declaration":
			if err := x.importDecl(n); err != nil {
				return err
			}
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := root.NamedChild(i)
		var err error
		switch n.Type() {
		case "type_declaration":
			err = x.typeDecl(n)
		case "function_declaration":
			err = x.function(n)
		case "method_declaration":
			err = x.method(n)
		case "var_declaration":
			err = x.valueDecl(n, KindVariable)
		case "const_declaration":
			err = x.valueDecl(n, KindConstant)
		}
		if err != nil {
			return err
		}
	}

	return x.calls(root)
}

func (x *fileExtractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(x.src)
}

// fieldChildren returns every child attached to the named field, in order.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

func hasAnonChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == typ {
			return true
		}
	}
	return false
}

func (x *fileExtractor) packageClause(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "package_identifier" || c.Type() == "identifier" {
			_, err := x.insert(&store.Symbol{Name: x.text(c), Kind: KindPackage, Visibility: "public"}, c, nil, nil, nil)
			return err
		}
	}
	return nil
}

func (x *fileExtractor) importDecl(n *sitter.Node) error {
	var specs []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "import_spec":
			specs = append(specs, c)
		case "import_spec_list":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if s := c.NamedChild(j); s.Type() == "import_spec" {
					specs = append(specs, s)
				}
			}
		}
	}
	for _, spec := range specs {
		source := strings.Trim(x.text(spec.ChildByFieldName("path")), "\"`")
		if source == "" {
			continue
		}
		local := DefaultImportName(source)
		if name := spec.ChildByFieldName("name"); name != nil {
			local = x.text(name)
		}
		// Dot and blank imports name no package.
		if local != "." && local != "_" {
			x.scope.imports[local] = source
		}
	}
	return nil
}

// typeParamList reads a type_parameter_list into rows and the bare names.
func (x *fileExtractor) typeParamList(n *sitter.Node) ([]*store.TypeParam, []string) {
	if n == nil {
		return nil, nil
	}
	var params []*store.TypeParam
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "parameter_declaration" && decl.Type() != "type_parameter_declaration" {
			continue
		}
		constraint := collapse(x.text(decl.ChildByFieldName("type")))
		for _, name := range fieldChildren(decl, "name") {
			params = append(params, &store.TypeParam{
				Name:        x.text(name),
				Ordinal:     len(params),
				Constraints: constraint,
			})
			names = append(names, x.text(name))
		}
	}
	return params, names
}

func (x *fileExtractor) typeDecl(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "type_spec":
			if err := x.typeSpec(c, false); err != nil {
				return err
			}
		case "type_alias":
			if err := x.typeSpec(c, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *fileExtractor) typeSpec(n *sitter.Node, alias bool) error {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := x.text(nameNode)
	typeParams, tpNames := x.typeParamList(n.ChildByFieldName("type_parameters"))
	sc := x.scope.with(tpNames)
	typ := n.ChildByFieldName("type")

	sym := &store.Symbol{Name: name, Visibility: Visibility(name)}
	var members []*store.TypeMember
	switch {
	case alias:
		sym.Kind = KindAlias
		sym.TypeExpr = sc.canon(typ, x.src)
	case typ != nil && typ.Type() == "struct_type":
		sym.Kind = KindStruct
		members = x.structMembers(typ, sc)
	case typ != nil && typ.Type() == "interface_type":
		sym.Kind = KindInterface
	default:
		sym.Kind = KindType
		sym.TypeExpr = sc.canon(typ, x.src)
	}
	_, err := x.insert(sym, n, members, nil, typeParams)
	return err
}

func (x *fileExtractor) structMembers(st *sitter.Node, sc scope) []*store.TypeMember {
	var list *sitter.Node
	for i := 0; i < int(st.NamedChildCount()); i++ {
		if c := st.NamedChild(i); c.Type() == "field_declaration_list" {
			list = c
			break
		}
	}
	if list == nil {
		return nil
	}

	var members []*store.TypeMember
	for i := 0; i < int(list.NamedChildCount()); i++ {
		fd := list.NamedChild(i)
		if fd.Type() != "field_declaration" {
			continue
		}
		typ := fd.ChildByFieldName("type")
		if typ == nil {
			continue
		}
		names := fieldChildren(fd, "name")
		if len(names) == 0 {
			short := shortTypeName(typ, x.src)
			expr := sc.canon(typ, x.src)
			if hasAnonChild(fd, "*") {
				expr = "*" + expr
			}
			members = append(members, &store.TypeMember{
				Name:       short,
				Kind:       MemberEmbedded,
				TypeExpr:   expr,
				Visibility: Visibility(short),
			})
			continue
		}
		expr := sc.canon(typ, x.src)
		for _, nm := range names {
			members = append(members, &store.TypeMember{
				Name:       x.text(nm),
				Kind:       MemberField,
				TypeExpr:   expr,
				Visibility: Visibility(x.text(nm)),
			})
		}
	}
	return members
}

// params reads a parameter_list. Ordinals count individual names, so
// "a, b int" yields two rows.
func (x *fileExtractor) params(n *sitter.Node, sc scope, isReturn bool) []*store.FunctionParam {
	if n == nil {
		return nil
	}
	var out []*store.FunctionParam
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		var expr string
		switch decl.Type() {
		case "parameter_declaration":
			expr = sc.canon(decl.ChildByFieldName("type"), x.src)
		case "variadic_parameter_declaration":
			expr = "..." + sc.canon(decl.ChildByFieldName("type"), x.src)
		default:
			continue
		}
		names := fieldChildren(decl, "name")
		if len(names) == 0 {
			out = append(out, &store.FunctionParam{Ordinal: len(out), TypeExpr: expr, IsReturn: isReturn})
			continue
		}
		for _, nm := range names {
			out = append(out, &store.FunctionParam{Name: x.text(nm), Ordinal: len(out), TypeExpr: expr, IsReturn: isReturn})
		}
	}
	return out
}

func (x *fileExtractor) results(n *sitter.Node, sc scope) []*store.FunctionParam {
	if n == nil {
		return nil
	}
	if n.Type() == "parameter_list" {
		return x.params(n, sc, true)
	}
	return []*store.FunctionParam{{Ordinal: 0, TypeExpr: sc.canon(n, x.src), IsReturn: true}}
}

func (x *fileExtractor) function(n *sitter.Node) error {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := x.text(nameNode)
	typeParams, tpNames := x.typeParamList(n.ChildByFieldName("type_parameters"))
	sc := x.scope.with(tpNames)

	params := x.params(n.ChildByFieldName("parameters"), sc, false)
	params = append(params, x.results(n.ChildByFieldName("result"), sc)...)

	_, err := x.insert(&store.Symbol{Name: name, Kind: KindFunction, Visibility: Visibility(name)}, n, nil, params, typeParams)
	return err
}

func (x *fileExtractor) method(n *sitter.Node) error {
	nameNode := n.ChildByFieldName("name")
	recv := n.ChildByFieldName("receiver")
	if nameNode == nil || recv == nil {
		return nil
	}
	name := x.text(nameNode)

	// A generic receiver such as (b *Box[T]) binds T for the method body.
	var recvType *sitter.Node
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		if d := recv.NamedChild(i); d.Type() == "parameter_declaration" {
			recvType = d.ChildByFieldName("type")
			break
		}
	}
	if recvType == nil {
		return nil
	}
	sc := x.scope.with(receiverTypeParams(recvType, x.src))

	params := []*store.FunctionParam{{Ordinal: 0, TypeExpr: sc.canon(recvType, x.src), IsReceiver: true}}
	for _, p := range x.params(n.ChildByFieldName("parameters"), sc, false) {
		p.Ordinal++
		params = append(params, p)
	}
	params = append(params, x.results(n.ChildByFieldName("result"), sc)...)

	_, err := x.insert(&store.Symbol{Name: name, Kind: KindMethod, Visibility: Visibility(name)}, n, nil, params, nil)
	return err
}

func receiverTypeParams(n *sitter.Node, src []byte) []string {
	for n != nil && (n.Type() == "pointer_type" || n.Type() == "parenthesized_type") {
		n = n.NamedChild(0)
	}
	if n == nil || n.Type() != "generic_type" {
		return nil
	}
	args := n.ChildByFieldName("type_arguments")
	if args == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		if a.Type() == "type_elem" && a.NamedChildCount() == 1 {
			a = a.NamedChild(0)
		}
		names = append(names, a.Content(src))
	}
	return names
}

// valueDecl records package-level var and const names. Constants without a
// type or value repeat the previous spec's type, as iota blocks do.
func (x *fileExtractor) valueDecl(n *sitter.Node, kind string) error {
	var specs []*sitter.Node
	var collect func(*sitter.Node)
	collect = func(p *sitter.Node) {
		for i := 0; i < int(p.NamedChildCount()); i++ {
			c := p.NamedChild(i)
			switch c.Type() {
			case "var_spec", "const_spec":
				specs = append(specs, c)
			case "var_spec_list", "const_spec_list":
				collect(c)
			}
		}
	}
	collect(n)

	var mods []string
	if kind == KindConstant {
		mods = []string{"const"}
	}
	lastType := ""
	for _, spec := range specs {
		typ := spec.ChildByFieldName("type")
		value := spec.ChildByFieldName("value")
		expr := ""
		switch {
		case typ != nil:
			expr = x.scope.canon(typ, x.src)
		case kind == KindConstant && value == nil:
			expr = lastType
		}
		if kind == KindConstant {
			lastType = expr
		}
		for _, nm := range fieldChildren(spec, "name") {
			name := x.text(nm)
			if name == "_" {
				continue
			}
			sym := &store.Symbol{Name: name, Kind: kind, Visibility: Visibility(name), TypeExpr: expr, Modifiers: mods}
			if _, err := x.insert(sym, spec, nil, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// calls records every call whose callee is a New-prefixed function named
// directly or through an imported package.
func (x *fileExtractor) calls(root *sitter.Node) error {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
		if n.Type() != "call_expression" {
			continue
		}
		name, ok := x.callee(n.ChildByFieldName("function"))
		if !ok {
			continue
		}
		start, end := n.StartPoint(), n.EndPoint()
		if _, err := x.ds.InsertReference(&store.Reference{
			FileID:    x.fileID,
			Name:      name,
			StartLine: int(start.Row),
			StartCol:  int(start.Column),
			EndLine:   int(end.Row),
			EndCol:    int(end.Column),
			Context:   ContextCall,
		}); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}
	return nil
}

func (x *fileExtractor) callee(fn *sitter.Node) (string, bool) {
	if fn == nil {
		return "", false
	}
	switch fn.Type() {
	case "identifier":
		name := x.text(fn)
		if !strings.HasPrefix(name, "New") {
			return "", false
		}
		return x.scope.pkgPath + "." + name, true
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil || operand.Type() != "identifier" {
			return "", false
		}
		name := x.text(field)
		path, ok := x.scope.imports[x.text(operand)]
		if !ok || !strings.HasPrefix(name, "New") {
			return "", false
		}
		return path + "." + name, true
	case "index_expression", "generic_type":
		// NewBox[int]() under older grammars.
		if op := fn.ChildByFieldName("operand"); op != nil {
			return x.callee(op)
		}
		return x.callee(fn.ChildByFieldName("type"))
	}
	return "", false
}

// insert writes sym and its children, computing the signature hash first.
func (x *fileExtractor) insert(
	sym *store.Symbol,
	n *sitter.Node,
	members []*store.TypeMember,
	params []*store.FunctionParam,
	typeParams []*store.TypeParam,
) (int64, error) {
	fileID := x.fileID
	sym.FileID = &fileID
	start, end := n.StartPoint(), n.EndPoint()
	sym.StartLine, sym.StartCol = int(start.Row), int(start.Column)
	sym.EndLine, sym.EndCol = int(end.Row), int(end.Column)
	sym.SignatureHash = store.ComputeSignatureHash(
		sym.Name, sym.Kind, sym.Visibility, sym.TypeExpr, sym.Modifiers,
		members, params, typeParams,
	)

	id, err := x.ds.InsertSymbol(sym)
	if err != nil {
		return 0, fmt.Errorf("extract: %s %s: %w", sym.Kind, sym.Name, err)
	}
	for _, m := range members {
		m.SymbolID = id
		if _, err := x.ds.InsertTypeMember(m); err != nil {
			return 0, fmt.Errorf("extract: %s.%s: %w", sym.Name, m.Name, err)
		}
	}
	for _, p := range params {
		p.SymbolID = id
		if _, err := x.ds.InsertFunctionParam(p); err != nil {
			return 0, fmt.Errorf("extract: %s param: %w", sym.Name, err)
		}
	}
	for _, tp := range typeParams {
		tp.SymbolID = id
		if _, err := x.ds.InsertTypeParam(tp); err != nil {
			return 0, fmt.Errorf("extract: %s type param: %w", sym.Name, err)
		}
	}
	return id, nil
}
