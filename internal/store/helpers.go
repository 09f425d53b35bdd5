package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// prefixCols qualifies every column in a comma-separated list with a table
// alias, e.g. prefixCols("s.", "id, name") == "s.id, s.name".
func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// marshalModifiers converts []string to JSON text for storage.
func marshalModifiers(mods []string) string {
	if len(mods) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(mods)
	return string(b)
}

// unmarshalModifiers converts JSON text back to []string.
func unmarshalModifiers(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var mods []string
	_ = json.Unmarshal([]byte(s), &mods)
	return mods
}
