// Package diag carries build-time diagnostics attached to program types.
package diag

import "fmt"

// Severity of a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// MarshalText renders the severity by name in JSON output.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Diagnostic reports a synthesis problem for one type. Other types are
// unaffected by it.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
}

// Warningf returns a warning for typ.
func Warningf(typ, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Warning, Type: typ, Message: fmt.Sprintf(format, args...)}
}

// Errorf returns an error diagnostic for typ.
func Errorf(typ, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: Error, Type: typ, Message: fmt.Sprintf(format, args...)}
}

// At returns a copy of d positioned at file:line.
func (d Diagnostic) At(file string, line int) Diagnostic {
	d.File, d.Line = file, line
	return d
}

func (d Diagnostic) String() string {
	if d.File != "" {
		return fmt.Sprintf("%s:%d: %s: %s: %s", d.File, d.Line, d.Severity, d.Type, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Type, d.Message)
}

// Count returns how many of ds have severity s.
func Count(ds []Diagnostic, s Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == s {
			n++
		}
	}
	return n
}
