package emit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jward/blueprintgen/internal/store"
)

// ErrPathConflict is reported for a unit whose path another unit of the
// same write already uses.
var ErrPathConflict = errors.New("emit: path used by two units")

// UnitStore records the hash of every unit written.
type UnitStore interface {
	UnitByName(name string) (*store.EmittedUnit, error)
	UpsertUnit(u *store.EmittedUnit) error
	AllUnits() ([]*store.EmittedUnit, error)
	DeleteUnit(name string) error
}

// WriteStats reports what one Write did.
type WriteStats struct {
	Written   int
	Unchanged int
	Removed   int
}

// Writer writes units under Root. A unit whose source hash matches the
// recorded one and whose file still exists is left alone, so re-emitting
// unchanged content does not touch the file.
type Writer struct {
	Root   string
	Store  UnitStore
	Logger *slog.Logger
}

// NewWriter returns a Writer for the project at root.
func NewWriter(root string, s UnitStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{Root: root, Store: s, Logger: logger}
}

// Write writes units and, when prune is set, removes the files of recorded
// units that are not in units. Per-unit failures are collected; the other
// units are still written. Two units claiming one path are both reported
// and only the first is written. A file is never removed while a unit of
// this write claims its path.
func (w *Writer) Write(ctx context.Context, units []*Unit, prune bool) (WriteStats, error) {
	var st WriteStats
	var errs []error
	current := make(map[string]bool, len(units))
	claims := make(map[string]string, len(units))

	var todo []*Unit
	for _, u := range units {
		current[u.Name] = true
		key := pathKey(u.Path)
		if other, ok := claims[key]; ok {
			errs = append(errs, fmt.Errorf("%s: %w: %s and %s", u.Path, ErrPathConflict, other, u.Name))
			continue
		}
		claims[key] = u.Name
		todo = append(todo, u)
	}

	for _, u := range todo {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		written, err := w.writeUnit(u, claims)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Path, err))
			continue
		}
		if written {
			st.Written++
		} else {
			st.Unchanged++
		}
	}

	if prune {
		recorded, err := w.Store.AllUnits()
		if err != nil {
			return st, fmt.Errorf("emit: list units: %w", err)
		}
		for _, u := range recorded {
			if current[u.Name] {
				continue
			}
			if err := w.remove(u, claims); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", u.Path, err))
				continue
			}
			st.Removed++
		}
	}

	w.Logger.Info("units written",
		"written", st.Written,
		"unchanged", st.Unchanged,
		"removed", st.Removed,
	)
	if len(errs) > 0 {
		return st, fmt.Errorf("emit: write had %d error(s): %w", len(errs), errs[0])
	}
	return st, nil
}

// pathKey compares paths without case, since case-insensitive file systems
// would merge two units otherwise.
func pathKey(p string) string { return strings.ToLower(path.Clean(p)) }

func (w *Writer) writeUnit(u *Unit, claims map[string]string) (bool, error) {
	hash := u.Hash()
	abs := filepath.Join(w.Root, filepath.FromSlash(u.Path))

	prev, err := w.Store.UnitByName(u.Name)
	if err != nil {
		return false, err
	}
	if prev != nil && prev.Hash == hash && prev.Path == u.Path {
		if _, err := os.Stat(abs); err == nil {
			return false, nil
		}
	}
	if prev != nil && prev.Path != u.Path {
		if _, taken := claims[pathKey(prev.Path)]; !taken {
			if err := removeFile(filepath.Join(w.Root, filepath.FromSlash(prev.Path))); err != nil {
				return false, err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(abs, u.Source, 0o644); err != nil {
		return false, err
	}
	w.Logger.Debug("unit written", "unit", u.Name, "path", u.Path)
	return true, w.Store.UpsertUnit(&store.EmittedUnit{Name: u.Name, Path: u.Path, Hash: hash})
}

func (w *Writer) remove(u *store.EmittedUnit, claims map[string]string) error {
	if _, taken := claims[pathKey(u.Path)]; !taken {
		if err := removeFile(filepath.Join(w.Root, filepath.FromSlash(u.Path))); err != nil {
			return err
		}
	}
	w.Logger.Debug("unit removed", "unit", u.Name, "path", u.Path)
	return w.Store.DeleteUnit(u.Name)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
