package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/blueprintgen"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISummary is a JSON-friendly report of one pass.
type CLISummary struct {
	CatalogRead    int                       `json:"catalog_read"`
	CatalogSkipped int                       `json:"catalog_skipped"`
	CatalogError   string                    `json:"catalog_error,omitempty"`
	Unresolved     int                       `json:"unresolved"`
	NonPublic      int                       `json:"non_public"`
	JoinSkipped    bool                      `json:"join_skipped"`
	CacheReused    int                       `json:"cache_reused"`
	CacheAdded     int                       `json:"cache_added"`
	CacheReplaced  int                       `json:"cache_replaced"`
	Groups         int                       `json:"groups"`
	Constructors   int                       `json:"constructors"`
	EntityFiles    int                       `json:"entity_files"`
	Written        int                       `json:"written"`
	Unchanged      int                       `json:"unchanged"`
	Removed        int                       `json:"removed"`
	DurationMS     int64                     `json:"duration_ms"`
	Diagnostics    []blueprintgen.Diagnostic `json:"diagnostics"`
}

func toCLISummary(res *blueprintgen.Result) CLISummary {
	s := CLISummary{
		CatalogRead:    res.Catalog.Read,
		CatalogSkipped: res.Catalog.Skipped,
		Unresolved:     res.Join.Unresolved,
		NonPublic:      res.Join.NonPublic,
		JoinSkipped:    res.JoinSkipped,
		CacheReused:    res.Cache.Reused,
		CacheAdded:     res.Cache.Added,
		CacheReplaced:  res.Cache.Replaced,
		Groups:         res.Groups,
		Constructors:   res.Constructors,
		EntityFiles:    res.EntityFiles,
		Written:        res.Write.Written,
		Unchanged:      res.Write.Unchanged,
		Removed:        res.Write.Removed,
		DurationMS:     res.Duration.Milliseconds(),
		Diagnostics:    res.Diagnostics,
	}
	if res.Catalog.Err != nil {
		s.CatalogError = res.Catalog.Err.Error()
	}
	if s.Diagnostics == nil {
		s.Diagnostics = []blueprintgen.Diagnostic{}
	}
	return s
}

// formatSummaryText formats a pass report as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	if s.JoinSkipped {
		fmt.Fprintln(w, "Catalog and program unchanged; cached groups used")
	} else {
		fmt.Fprintf(w, "Catalog: %d read, %d skipped, %d unresolved, %d non-public\n",
			s.CatalogRead, s.CatalogSkipped, s.Unresolved, s.NonPublic)
		if s.CatalogError != "" {
			fmt.Fprintf(w, "Catalog error: %s\n", s.CatalogError)
		}
		fmt.Fprintf(w, "Cache: %d reused, %d added, %d replaced\n", s.CacheReused, s.CacheAdded, s.CacheReplaced)
	}
	fmt.Fprintf(w, "Emitted: %d accessor groups, %d constructors, %d entity files\n",
		s.Groups, s.Constructors, s.EntityFiles)
	fmt.Fprintf(w, "Files: %d written, %d unchanged, %d removed\n", s.Written, s.Unchanged, s.Removed)

	if len(s.Diagnostics) > 0 {
		fmt.Fprintln(w)
		for _, d := range s.Diagnostics {
			fmt.Fprintln(w, d.String())
		}
	}
}

// formatCandidatesText formats completion candidates as aligned columns.
func formatCandidatesText(w io.Writer, cs []blueprintgen.Candidate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tRAW NAME\tTYPE")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.ID, c.RawName, c.Type)
	}
	tw.Flush()
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLISummary:
		formatSummaryText(w, v)
	case []blueprintgen.Candidate:
		formatCandidatesText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes result to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	if c, ok := result.Results.([]blueprintgen.Candidate); ok && c == nil {
		result.Results = []blueprintgen.Candidate{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
