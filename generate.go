package blueprintgen

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"go/token"
	"io"
	"iter"
	"os"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jward/blueprintgen/internal/cache"
	"github.com/jward/blueprintgen/internal/catalog"
	"github.com/jward/blueprintgen/internal/diag"
	"github.com/jward/blueprintgen/internal/emit"
	"github.com/jward/blueprintgen/internal/extract"
	"github.com/jward/blueprintgen/internal/initplan"
	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// fingerprintKey stores the digest of the inputs the cached groups were
// last joined from.
const fingerprintKey = "pass_fingerprint"

// Result reports what one pass did.
type Result struct {
	Catalog catalog.Stats
	Join    join.Stats
	// JoinSkipped is set when neither the program nor the catalog changed
	// since the previous pass, so the cached groups were used as they are.
	JoinSkipped  bool
	Cache        cache.ApplyStats
	Groups       int
	Constructors int
	EntityFiles  int
	Write        emit.WriteStats
	Diagnostics  []diag.Diagnostic
	Duration     time.Duration
}

// Errors returns the number of error diagnostics.
func (r *Result) Errors() int { return diag.Count(r.Diagnostics, diag.Error) }

// Generate runs one pass: join the catalog against the program, refresh the
// entry cache, then emit accessors for every cached group, a constructor for
// every constructor-style call without a hand-written function, and handles
// for every new-entity file. Emitted units that no longer have a source are
// removed. Synthesis problems are reported as diagnostics in the Result;
// the returned error is reserved for failures that stop the pass.
func (e *Engine) Generate(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	res := &Result{}

	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}

	fp, err := e.fingerprint()
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: %w", err)
	}
	prev, err := e.store.GetMetadata(fingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: %w", err)
	}
	if fp == prev {
		res.JoinSkipped = true
	} else {
		groups, err := e.join(ctx, snap, res)
		if err != nil {
			return nil, err
		}
		res.Cache = e.cache.Apply(groups)
		if err := e.cache.Flush(ctx); err != nil {
			return nil, fmt.Errorf("blueprintgen: flush cache: %w", err)
		}
		if err := e.store.SetMetadata(fingerprintKey, fp); err != nil {
			return nil, fmt.Errorf("blueprintgen: %w", err)
		}
	}

	units := e.emitUnits(snap, res)
	w := emit.NewWriter(e.cfg.ProjectRoot, e.store, e.logger)
	res.Write, err = w.Write(ctx, units, true)
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("blueprintgen: %w", err)
	}

	e.logger.Info("pass complete",
		"groups", res.Groups,
		"constructors", res.Constructors,
		"entity_files", res.EntityFiles,
		"written", res.Write.Written,
		"unchanged", res.Write.Unchanged,
		"removed", res.Write.Removed,
		"join_skipped", res.JoinSkipped,
		"diagnostics", len(res.Diagnostics),
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// Reset forgets every cached group and the inputs of the last pass, so the
// next Generate joins the whole catalog again.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Clear()
	if err := e.cache.Flush(ctx); err != nil {
		return fmt.Errorf("blueprintgen: reset: %w", err)
	}
	if err := e.store.SetMetadata(fingerprintKey, ""); err != nil {
		return fmt.Errorf("blueprintgen: reset: %w", err)
	}
	return nil
}

// catalogEntries returns the catalog records as the join sees them: read
// from disk and passed through the hook, if one is configured.
func (e *Engine) catalogEntries(ctx context.Context) (iter.Seq[catalog.Entry], *catalog.Reader, error) {
	r := catalog.Open(e.cfg.CatalogPath())
	if e.hook == nil {
		return r.All(), r, nil
	}
	entries, err := e.hook.Apply(ctx, slices.Collect(r.All()))
	if err != nil {
		return nil, r, fmt.Errorf("blueprintgen: %w", err)
	}
	return slices.Values(entries), r, nil
}

func (e *Engine) join(ctx context.Context, snap *snapshot.Snapshot, res *Result) ([]*join.Group, error) {
	entries, r, err := e.catalogEntries(ctx)
	if err != nil {
		return nil, err
	}
	groups, st, err := join.New(snap, e.logger).JoinWithStats(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: join: %w", err)
	}
	res.Join = st
	res.Catalog = r.Stats()
	if res.Catalog.Err != nil {
		e.logger.Warn("catalog read incomplete", "path", r.Path(), "error", res.Catalog.Err)
	}
	if res.Catalog.Skipped > 0 {
		e.logger.Debug("catalog records skipped", "count", res.Catalog.Skipped)
	}
	return groups, nil
}

// fingerprint digests everything the join depends on: the indexed files,
// the catalog, the hook and the root namespace.
func (e *Engine) fingerprint() (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "root=%s\n", e.cfg.RootNamespace)

	files, err := e.store.AllFiles()
	if err != nil {
		return "", err
	}
	for _, f := range files {
		fmt.Fprintf(h, "file=%s:%s\n", f.Path, f.Hash)
	}

	catalogHash, err := catalog.Open(e.cfg.CatalogPath()).Hash()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(h, "catalog=%s\n", catalogHash)

	switch {
	case e.hookSource != "":
		fmt.Fprintf(h, "hook=%s\n", e.hookSource)
	case e.cfg.Hook != "":
		f, err := os.Open(e.cfg.HookPath())
		if err != nil {
			return "", fmt.Errorf("hook: %w", err)
		}
		defer f.Close()
		io.WriteString(h, "hook=")
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hook: %w", err)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (e *Engine) outputOptions() emit.Options {
	return emit.Options{
		Dir:         e.cfg.OutputDir(),
		Package:     e.cfg.OutputImportPath(),
		PackageName: e.cfg.OutputPackageName(),
	}
}

func (e *Engine) emitUnits(snap *snapshot.Snapshot, res *Result) []*emit.Unit {
	opts := e.outputOptions()
	names := emit.TypeNames(snap.Types())

	var units []*emit.Unit
	for _, g := range e.cache.Groups() {
		t, ok := snap.Type(g.Type)
		if !ok || !snap.IsPublic(t) {
			// Kept in the cache; the type may come back.
			e.logger.Debug("cached group skipped", "type", g.Type)
			continue
		}
		n := names[t.ID]
		u, err := emit.Accessors(g, t, n, opts)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				diag.Warningf(string(t.ID), "accessors not emitted: %v", err).At(t.File, t.Line))
			continue
		}
		units = append(units, u)
		res.Groups++
		for _, en := range g.Entries {
			if !token.IsExported(en.Name) {
				res.Diagnostics = append(res.Diagnostics, diag.Warningf(string(t.ID),
					"entry %q is unexported in %sRefs; other packages reach it as %sRefsByID[%q]",
					en.Name, n.Ident, n.Ident, en.ID).At(t.File, t.Line))
			}
		}
	}

	units = append(units, e.constructors(snap, names, opts, res)...)
	units = append(units, e.entityUnits(snap, res)...)
	return units
}

// constructors emits New<T> for every call of an output-package function
// named after a declared type that the program does not define itself.
func (e *Engine) constructors(
	snap *snapshot.Snapshot,
	names map[snapshot.TypeID]emit.Name,
	opts emit.Options,
	res *Result,
) []*emit.Unit {
	byFunc := make(map[string]*snapshot.Type, len(names))
	for _, t := range snap.Types() {
		byFunc[emit.ConstructorName(names[t.ID].Ident)] = t
	}
	reg := initplan.NewRegistry(snap, e.cfg.RegistryImportPath())
	resolver := initplan.NewResolver(snap, reg, opts.Package)

	var units []*emit.Unit
	seen := make(map[snapshot.TypeID]bool)
	for _, c := range snap.Calls() {
		i := strings.LastIndexByte(c.Name, '.')
		if i < 0 || c.Name[:i] != opts.Package {
			continue
		}
		fn := c.Name[i+1:]
		t, ok := byFunc[fn]
		if !ok || seen[t.ID] || snap.HasFunc(opts.Package, fn) {
			continue
		}
		seen[t.ID] = true

		if !snap.IsPublic(t) && t.Package != opts.Package {
			res.Diagnostics = append(res.Diagnostics,
				diag.Errorf(string(t.ID), "%s: type is not exported", fn).At(c.File, c.Line))
			continue
		}
		plan, err := resolver.Resolve(t)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics,
				diag.Errorf(string(t.ID), "%s: %v", fn, err).At(c.File, c.Line))
			continue
		}
		res.Diagnostics = append(res.Diagnostics, plan.Diagnostics...)

		u, err := emit.Constructor(snap, plan, names[t.ID], opts)
		if err != nil {
			d := diag.Errorf(string(t.ID), "%s: %v", fn, err)
			if errors.Is(err, emit.ErrUnsupported) {
				d.Message = fmt.Sprintf("%s: generic types have no generated constructor", fn)
			}
			res.Diagnostics = append(res.Diagnostics, d.At(c.File, c.Line))
			continue
		}
		units = append(units, u)
		res.Constructors++
	}
	return units
}

// entityUnits emits handles for every new-entity file in the project.
func (e *Engine) entityUnits(snap *snapshot.Snapshot, res *Result) []*emit.Unit {
	root := e.cfg.ProjectRoot
	paths, err := gitListFiles(root, isEntitiesFile)
	if err != nil {
		paths, err = walkListFiles(root, isEntitiesFile)
		if err != nil {
			e.logger.Warn("new-entity files not listed", "error", err)
			return nil
		}
	}
	sort.Strings(paths)

	var units []*emit.Unit
	for _, p := range paths {
		rel, err := e.relPath(p)
		if err != nil {
			continue
		}
		entities, st, err := catalog.ReadNewEntities(p)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, diag.Errorf(rel, "%v", err).At(rel, 0))
			continue
		}
		if st.Skipped > 0 {
			e.logger.Warn("new-entity records skipped", "path", rel, "count", st.Skipped)
		}

		pkg := extract.PackagePath(e.cfg.RootNamespace, path.Dir(rel))
		u, ds, err := emit.NewEntities(emit.EntityFile{
			Path:        rel,
			Package:     pkg,
			PackageName: snap.PackageName(pkg),
			Entities:    entities,
		}, snap)
		for _, d := range ds {
			res.Diagnostics = append(res.Diagnostics, d.At(rel, 0))
		}
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, diag.Errorf(rel, "%v", err).At(rel, 0))
			continue
		}
		units = append(units, u)
		res.EntityFiles++
	}
	return units
}
