// Package lazyref provides the handles that generated catalog accessors
// return: a stable entry id that resolves to a live value the first time it
// is dereferenced.
//
// Generated code only declares handles. The host program installs a
// resolver once at startup:
//
//	lazyref.SetResolver(func(id string) (any, error) {
//		return assets.Load(id)
//	})
//
// after which catalog.SpellRefs.Fireball.MustGet() loads and memoizes the
// entry.
package lazyref

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoResolver is returned by Get when no resolver is installed.
	ErrNoResolver = errors.New("lazyref: no resolver installed")
	// ErrWrongType is returned when the resolver yields a value of a type
	// other than the handle's.
	ErrWrongType = errors.New("lazyref: resolved value has the wrong type")
)

// ResolveFunc loads the value for an entry id.
type ResolveFunc func(id string) (any, error)

var global atomic.Pointer[ResolveFunc]

// SetResolver installs the process-wide resolver used by handles without
// their own. Passing nil removes it.
func SetResolver(fn ResolveFunc) {
	if fn == nil {
		global.Store(nil)
		return
	}
	global.Store(&fn)
}

// Ref is a memoized handle to the value with a stable id. It is safe for
// concurrent use. A failed resolution is not memoized.
type Ref[T any] struct {
	id      string
	resolve func(id string) (T, error)

	mu       sync.Mutex
	resolved bool
	val      T
}

// New returns a handle resolved through the global resolver.
func New[T any](id string) *Ref[T] {
	return &Ref[T]{id: id}
}

// NewFunc returns a handle with its own resolver.
func NewFunc[T any](id string, fn func(id string) (T, error)) *Ref[T] {
	return &Ref[T]{id: id, resolve: fn}
}

// ID returns the entry id the handle is keyed by.
func (r *Ref[T]) ID() string { return r.id }

// Resolved reports whether the value has been loaded.
func (r *Ref[T]) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Get resolves the value on first use and returns the memoized value after.
func (r *Ref[T]) Get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.val, nil
	}
	v, err := r.load()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("lazyref: resolve %s: %w", r.id, err)
	}
	r.val, r.resolved = v, true
	return v, nil
}

// MustGet is Get that panics on failure.
func (r *Ref[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Reset drops the memoized value so the next Get resolves again.
func (r *Ref[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.val, r.resolved = zero, false
}

func (r *Ref[T]) String() string { return "lazyref(" + r.id + ")" }

func (r *Ref[T]) load() (T, error) {
	var zero T
	if r.resolve != nil {
		return r.resolve(r.id)
	}
	fn := global.Load()
	if fn == nil {
		return zero, ErrNoResolver
	}
	v, err := (*fn)(r.id)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrWrongType, v, zero)
	}
	return t, nil
}
