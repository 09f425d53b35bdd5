// Package catalog reads the external entity catalog and new-entity files
// into sanitized entries.
package catalog

import (
	"go/token"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entry is one catalog record. SanitizedName is always a valid Go identifier.
type Entry struct {
	ID            string `json:"id"`
	RawName       string `json:"rawName"`
	SanitizedName string `json:"sanitizedName"`
	TypeName      string `json:"typeName"`
}

// NewEntry builds an Entry, sanitizing name.
func NewEntry(id, name, typeName string) Entry {
	return Entry{ID: id, RawName: name, SanitizedName: Sanitize(name), TypeName: typeName}
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ReplaceInvalid replaces every rune that cannot appear in an identifier
// with '_'. Unlike Sanitize it does not fix the first rune, which makes it
// suitable for identifier suffixes.
func ReplaceInvalid(s string) string {
	return strings.Map(func(r rune) rune {
		if isIdentRune(r) {
			return r
		}
		return '_'
	}, s)
}

// Sanitize turns s into a valid Go identifier: invalid runes become '_', a
// leading '_' is added when the first rune cannot start an identifier, the
// blank identifier becomes "__" and keywords get a leading '_'.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	out := ReplaceInvalid(s)
	if out == "" {
		return "__"
	}
	if first, _ := utf8.DecodeRuneInString(out); first != '_' && !unicode.IsLetter(first) {
		out = "_" + out
	}
	if out == "_" || token.IsKeyword(out) {
		out = "_" + out
	}
	return out
}

// IsIdentifier reports whether s is a valid, non-blank, non-keyword Go
// identifier.
func IsIdentifier(s string) bool {
	return s != "_" && token.IsIdentifier(s)
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
