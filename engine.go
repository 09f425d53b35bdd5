package blueprintgen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jward/blueprintgen/internal/cache"
	"github.com/jward/blueprintgen/internal/config"
	"github.com/jward/blueprintgen/internal/extract"
	"github.com/jward/blueprintgen/internal/runtime"
	"github.com/jward/blueprintgen/internal/snapshot"
	"github.com/jward/blueprintgen/internal/store"
)

// Engine is one build session: it owns the session database, the program
// snapshot, the entry cache and the optional catalog hook, and runs passes
// over the project described by its Config.
type Engine struct {
	cfg     *config.Config
	store   *store.Store
	cache   *cache.Cache
	runtime *runtime.Runtime
	hook    *runtime.Hook
	logger  *slog.Logger

	hookSource  string
	useParallel bool

	// mu serializes passes.
	mu sync.Mutex

	snapMu sync.RWMutex
	snap   *snapshot.Snapshot
	// changed counts files indexed or removed since the snapshot was loaded.
	changed int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithParallel controls parallel extraction. When true, IndexFiles parses
// files on a worker pool and commits their batches from a single writer.
// It overrides the Config's parallel setting.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithHookSource installs a catalog hook from Risor source, taking
// precedence over the Config's hook path.
func WithHookSource(source string) Option {
	return func(e *Engine) {
		e.hookSource = source
	}
}

// New opens the session database named by cfg and loads the persisted entry
// cache.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("blueprintgen: %w", err)
	}
	s, err := store.NewStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("blueprintgen: migrate: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		store:       s,
		logger:      slog.New(slog.DiscardHandler),
		useParallel: cfg.Parallel,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cache = cache.New(cache.NewStoreBackend(s))
	if err := e.cache.Load(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("blueprintgen: load cache: %w", err)
	}

	e.runtime = runtime.NewRuntime(cfg.ProjectRoot, runtime.WithRuntimeLogger(e.logger))
	switch {
	case e.hookSource != "":
		e.hook = runtime.NewSourceHook(e.runtime, e.hookSource)
	case cfg.Hook != "":
		e.hook = runtime.NewHook(e.runtime, cfg.HookPath())
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Config returns the settings the Engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Cache returns the session's entry cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Snapshot returns the program snapshot, reloading it from the index when
// files changed since it was last loaded.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	e.snapMu.RLock()
	snap, stale := e.snap, e.changed > 0
	e.snapMu.RUnlock()
	if snap != nil && !stale {
		return snap, nil
	}

	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if e.snap != nil && e.changed == 0 {
		return e.snap, nil
	}
	snap, err := snapshot.Load(e.store, e.cfg.RootNamespace)
	if err != nil {
		return nil, fmt.Errorf("blueprintgen: %w", err)
	}
	e.snap = snap
	e.changed = 0
	return snap, nil
}

func (e *Engine) markChanged(n int) {
	if n == 0 {
		return
	}
	e.snapMu.Lock()
	e.changed += n
	e.snapMu.Unlock()
}

// relPath returns p relative to the project root, slash-separated.
func (e *Engine) relPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(e.cfg.ProjectRoot, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project root", p)
	}
	return rel, nil
}

// IndexFiles indexes the given Go files. When parallel extraction is
// enabled, files are parsed on a worker pool with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each file:
//  1. Skip non-Go and test files
//  2. Skip unchanged files (same content hash)
//  3. Delete stale data of a changed file
//  4. Skip generated files
//  5. Insert the file record and extract its declarations
//
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	if e.useParallel {
		return e.IndexFilesParallel(ctx, paths)
	}
	return e.indexFilesSerial(ctx, paths)
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFile(ctx context.Context, p string) error {
	item, skip, err := e.prepareFile(ctx, p)
	if err != nil || skip {
		return err
	}
	if err := extract.ExtractFile(ctx, e.store, item.fileID, item.pkgPath, item.src); err != nil {
		_ = e.store.DeleteFile(item.fileID)
		return err
	}
	e.markChanged(1)
	return nil
}

// workItem holds everything an extraction needs once its file record exists.
type workItem struct {
	path    string
	pkgPath string
	fileID  int64
	src     []byte
	batch   *store.BatchedStore
}

// prepareFile does the serial part of indexing one file: hash check,
// cleanup of stale data, file record. skip is true when there is nothing to
// extract.
func (e *Engine) prepareFile(_ context.Context, p string) (workItem, bool, error) {
	if !isSourceFile(p) {
		return workItem{}, true, nil
	}
	rel, err := e.relPath(p)
	if err != nil {
		return workItem{}, false, err
	}

	content, err := os.ReadFile(p)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(rel)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return workItem{}, true, nil
	}
	if existing != nil {
		if err := e.store.DeleteFile(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
		e.markChanged(1)
	}

	// Generated files never contribute declarations, so a constructor this
	// tool emitted is never mistaken for a hand-written one.
	if extract.IsGenerated(content) {
		return workItem{}, true, nil
	}

	pkgPath := extract.PackagePath(e.cfg.RootNamespace, path.Dir(rel))
	fileID, err := e.store.InsertFile(&store.File{
		Path:        rel,
		Language:    "go",
		PackagePath: pkgPath,
		Hash:        hash,
		LineCount:   bytes.Count(content, []byte{'\n'}) + 1,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert file: %w", err)
	}
	return workItem{path: p, pkgPath: pkgPath, fileID: fileID, src: content}, false, nil
}

// skipDirs are directories the go tool never builds from.
var skipDirs = map[string]bool{
	"vendor":   true,
	"testdata": true,
}

// IndexDirectory indexes every Go source file under the project root and
// forgets files that no longer exist. If the root is inside a git
// repository, uses git ls-files to respect .gitignore; falls back to a
// filesystem walk otherwise.
func (e *Engine) IndexDirectory(ctx context.Context) error {
	root := e.cfg.ProjectRoot
	paths, err := gitListFiles(root, isSourceFile)
	if err != nil {
		paths, err = walkListFiles(root, isSourceFile)
		if err != nil {
			return err
		}
	}
	if err := e.removeVanished(paths); err != nil {
		return err
	}
	return e.IndexFiles(ctx, paths)
}

// removeVanished deletes indexed files that are not in paths.
func (e *Engine) removeVanished(paths []string) error {
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		if rel, err := e.relPath(p); err == nil {
			present[rel] = true
		}
	}
	files, err := e.store.AllFiles()
	if err != nil {
		return fmt.Errorf("blueprintgen: %w", err)
	}
	removed := 0
	for _, f := range files {
		if present[f.Path] {
			continue
		}
		if err := e.store.DeleteFile(f.ID); err != nil {
			return fmt.Errorf("blueprintgen: remove %s: %w", f.Path, err)
		}
		e.logger.Debug("file removed from index", "path", f.Path)
		removed++
	}
	e.markChanged(removed)
	return nil
}

// isSourceFile reports whether p is a non-test Go file.
func isSourceFile(p string) bool {
	return strings.HasSuffix(p, ".go") && !strings.HasSuffix(p, "_test.go")
}

// isEntitiesFile reports whether p is a new-entity file.
func isEntitiesFile(p string) bool {
	return strings.HasSuffix(p, ".entities.json")
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root that match keep.
func gitListFiles(root string, keep func(string) bool) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !keep(line) || skippedPath(line) {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(line))
		// ls-files --cached still lists files deleted from the work tree.
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

// skippedPath reports whether any directory of the slash-separated relative
// path p is one the go tool ignores.
func skippedPath(p string) bool {
	dirs := strings.Split(path.Dir(p), "/")
	for _, d := range dirs {
		if d != "." && skipDir(d) {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || skipDirs[name]
}

// walkListFiles discovers files by walking the filesystem, used as a fallback
// when git is not available. Skips hidden and underscore-prefixed
// directories, vendor and testdata.
func walkListFiles(root string, keep func(string) bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if keep(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
