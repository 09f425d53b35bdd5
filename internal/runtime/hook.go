package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/blueprintgen/internal/catalog"
)

// Hook runs a catalog hook script. The script sees the global entries, a
// list of maps with keys id, name and type_name, and its last expression
// must evaluate to the list of entries to keep, in the same shape. A script
// whose last expression is nil leaves the catalog unchanged. Returned names
// are sanitized again, and records missing a key are skipped.
type Hook struct {
	rt     *Runtime
	path   string
	source string
}

// NewHook returns a hook running the script at path.
func NewHook(rt *Runtime, path string) *Hook {
	return &Hook{rt: rt, path: path}
}

// NewSourceHook returns a hook running inline source.
func NewSourceHook(rt *Runtime, source string) *Hook {
	return &Hook{rt: rt, source: source}
}

// Apply runs the hook over entries.
func (h *Hook) Apply(ctx context.Context, entries []catalog.Entry) ([]catalog.Entry, error) {
	globals := map[string]any{"entries": entriesToList(entries)}

	var result object.Object
	var err error
	if h.path != "" {
		result, err = h.rt.RunScript(ctx, h.path, globals)
	} else {
		result, err = h.rt.RunSource(ctx, h.source, globals)
	}
	if err != nil {
		return nil, fmt.Errorf("hook: %w", err)
	}

	switch res := result.(type) {
	case nil, *object.NilType:
		return entries, nil
	case *object.List:
		out := make([]catalog.Entry, 0, len(res.Value()))
		for _, item := range res.Value() {
			m, ok := item.(*object.Map)
			if !ok {
				continue
			}
			fields := m.Value()
			id, name, typ := getString(fields, "id"), getString(fields, "name"), getString(fields, "type_name")
			if id == "" || name == "" || typ == "" {
				continue
			}
			out = append(out, catalog.NewEntry(id, name, typ))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("hook: result must be a list of entries, got %s", result.Type())
	}
}

func entriesToList(entries []catalog.Entry) *object.List {
	items := make([]object.Object, 0, len(entries))
	for _, e := range entries {
		items = append(items, object.NewMap(map[string]object.Object{
			"id":             object.NewString(e.ID),
			"name":           object.NewString(e.RawName),
			"sanitized_name": object.NewString(e.SanitizedName),
			"type_name":      object.NewString(e.TypeName),
		}))
	}
	return object.NewList(items)
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}
