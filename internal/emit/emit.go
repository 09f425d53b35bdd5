// Package emit renders entry groups, initializer plans and new-entity files
// as gofmt-formatted Go source units and writes them to disk.
package emit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"go/format"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// Header is the first line of every emitted file. Files carrying it are
// never indexed back into the program snapshot.
const Header = "// Code generated by blueprintgen. DO NOT EDIT."

// LazyRefImport is the import path of the handle package accessors use.
const LazyRefImport = "github.com/jward/blueprintgen/pkg/lazyref"

// ErrUnsupported is returned for types no source can be emitted for, such
// as generic types without type arguments.
var ErrUnsupported = errors.New("emit: unsupported type")

// Unit is one emitted source file. Name is stable across passes and keys the
// unit's recorded hash; Path is slash-separated and relative to the project
// root.
type Unit struct {
	Name    string
	Path    string
	Package string
	Source  []byte
}

// Hash returns the hex sha256 of the unit's source.
func (u *Unit) Hash() string {
	sum := sha256.Sum256(u.Source)
	return hex.EncodeToString(sum[:])
}

// Options locates the output package.
type Options struct {
	Dir         string // slash-separated, relative to the project root
	Package     string // import path of Dir
	PackageName string
}

// Name is how a type is called in emitted code and files.
type Name struct {
	Ident string // prefix of emitted identifiers: <Ident>Refs, New<Ident>
	File  string // lower-case file stem, unique regardless of case
}

// TypeNames assigns every type a short name that is unique among types: its
// own name, or its capitalized package name plus its name when two packages
// declare the same name. Remaining clashes get a numeric suffix in identity
// order. File stems are the lower-cased names, suffixed "_2", "_3" and so on
// when two names differ only in case.
func TypeNames(types []*snapshot.Type) map[snapshot.TypeID]Name {
	sorted := make([]*snapshot.Type, len(types))
	copy(sorted, types)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	count := make(map[string]int, len(sorted))
	for _, t := range sorted {
		count[t.Name]++
	}
	names := make(map[snapshot.TypeID]Name, len(sorted))
	taken := make(map[string]bool, len(sorted))
	files := make(map[string]bool, len(sorted))
	for _, t := range sorted {
		name := t.Name
		if count[name] > 1 {
			name = catalog.Sanitize(catalog.Capitalize(t.PackageName) + t.Name)
		}
		if taken[name] {
			base := name
			for n := 2; taken[name]; n++ {
				name = base + strconv.Itoa(n)
			}
		}
		taken[name] = true

		file := strings.ToLower(name)
		if files[file] {
			base := file
			for n := 2; files[file]; n++ {
				file = base + "_" + strconv.Itoa(n)
			}
		}
		files[file] = true
		names[t.ID] = Name{Ident: name, File: file}
	}
	return names
}

// imports tracks the packages a unit references and their local names.
type imports struct {
	self   string
	byPath map[string]string
	byName map[string]string
}

func newImports(self string) *imports {
	return &imports{self: self, byPath: make(map[string]string), byName: make(map[string]string)}
}

// use imports pkg on first use and returns its local name, or "" for the
// unit's own package.
func (im *imports) use(pkg, pkgName string) string {
	if pkg == im.self || pkg == "" {
		return ""
	}
	if local, ok := im.byPath[pkg]; ok {
		return local
	}
	local := pkgName
	for n := 2; ; n++ {
		if _, used := im.byName[local]; !used {
			break
		}
		local = pkgName + strconv.Itoa(n)
	}
	im.byPath[pkg] = local
	im.byName[local] = pkg
	return local
}

// qualify returns the expression naming pkg.name from the unit's package.
func (im *imports) qualify(pkg, pkgName, name string) string {
	if local := im.use(pkg, pkgName); local != "" {
		return local + "." + name
	}
	return name
}

func (im *imports) typeRef(t *snapshot.Type) string {
	return im.qualify(t.Package, t.PackageName, t.Name)
}

// write renders the import block sorted by path, naming a package
// explicitly when its local name differs from the last path element.
func (im *imports) write(buf *bytes.Buffer) {
	if len(im.byPath) == 0 {
		return
	}
	paths := make([]string, 0, len(im.byPath))
	for p := range im.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	buf.WriteString("import (\n")
	for _, p := range paths {
		local := im.byPath[p]
		if local == path.Base(p) {
			fmt.Fprintf(buf, "\t%s\n", strconv.Quote(p))
		} else {
			fmt.Fprintf(buf, "\t%s %s\n", local, strconv.Quote(p))
		}
	}
	buf.WriteString(")\n\n")
}

// handleType is the type argument of an entry handle: a pointer for
// structs, the type itself otherwise.
func handleType(im *imports, t *snapshot.Type) string {
	ref := im.typeRef(t)
	if t.IsStruct() {
		return "*" + ref
	}
	return ref
}

// assemble prefixes body with the header, package clause and imports and
// formats the result.
func assemble(pkgName string, im *imports, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header + "\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkgName)
	im.write(&buf)
	buf.Write(body)
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("emit: format: %w", err)
	}
	return src, nil
}
