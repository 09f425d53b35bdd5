// Package blueprintgen joins an external catalog of named entities against
// the types declared in a Go module and generates code from the result:
// typed, lazily resolved handles for every catalog entry and constructors
// that apply a registry of default values.
//
// # Pipeline
//
// A pass runs in stages:
//
//  1. Index: each non-test, non-generated .go file of the project is parsed
//     with tree-sitter and its declarations are written to SQLite. Unchanged
//     files (same content hash) are skipped.
//
//  2. Join: catalog records are resolved to declared types by name and
//     grouped per type. Entry names are made unique within each group and
//     groups of unexported types are dropped.
//
//  3. Cache: groups are stored in the entry cache. A non-empty cached group
//     is reused as it is; an empty or absent one is replaced.
//
//  4. Emit: one accessor file per cached group, one constructor per call of
//     an output-package New<T> function the program does not define, and
//     one handle file per *.entities.json file. Files whose content did not
//     change are not rewritten.
//
// Accessor fields keep the sanitized entry name as it is, so an entry named
// "fireball" or "2 Handed Sword" becomes an unexported field that only the
// generated package can select. Each such entry is reported as a warning and
// stays reachable everywhere through <Type>RefsByID.
//
// # Usage
//
//	cfg, err := blueprintgen.LoadConfig("path/to/project")
//	if err != nil { ... }
//	e, err := blueprintgen.New(cfg)
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx)
//	res, err := e.Generate(ctx)
//	for _, d := range res.Diagnostics { ... }
//
// # Completion
//
// [Engine.Answerer] returns an [Answerer] reading the same cache as the
// pass. [Answerer.Complete] lists the entries of a type by name prefix and
// [Answerer.CompleteAt] completes a member access such as SpellRefs.Fire
// in a source buffer. A type missing from the cache is joined on its own.
//
// # Catalog hook
//
// An optional Risor script can filter or rewrite the catalog records before
// the join. See the internal/runtime package for the globals it receives.
package blueprintgen
