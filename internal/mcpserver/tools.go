package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/blueprintgen"
)

// maxCandidates caps one response.
const maxCandidates = 200

// ToolHandler is implemented by every tool.
type ToolHandler[P any] interface {
	Handle(ctx context.Context, params P) (string, error)
}

// WrapHandler adapts a ToolHandler into the SDK's AddTool callback. Nil
// params become the zero value and handler errors become error results.
func WrapHandler[P any](h ToolHandler[P]) func(context.Context, *sdkmcp.CallToolRequest, *P) (*sdkmcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, params *P) (*sdkmcp.CallToolResult, any, error) {
		if params == nil {
			params = new(P)
		}
		result, err := h.Handle(ctx, *params)
		if err != nil {
			return &sdkmcp.CallToolResult{
				IsError: true,
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: result}},
		}, nil, nil
	}
}

// CompleteParams are the parameters of complete_entries.
type CompleteParams struct {
	Type   string `json:"type,omitempty" jsonschema:"type name, accessor name or qualified type"`
	Prefix string `json:"prefix,omitempty" jsonschema:"case-insensitive name prefix"`
	File   string `json:"file,omitempty" jsonschema:"source file, relative to the project root"`
	Offset int    `json:"offset,omitempty" jsonschema:"byte offset in file just after the partial name"`
}

// CompleteHandler implements complete_entries.
type CompleteHandler struct {
	completer Completer
	root      string
	logger    *slog.Logger
}

// NewCompleteHandler returns the complete_entries handler.
func NewCompleteHandler(c Completer, root string, logger *slog.Logger) *CompleteHandler {
	return &CompleteHandler{completer: c, root: root, logger: logger}
}

// Handle answers one completion, one candidate per line.
func (h *CompleteHandler) Handle(ctx context.Context, params CompleteParams) (string, error) {
	var (
		got   []blueprintgen.Candidate
		err   error
		label string
	)
	switch {
	case params.File != "":
		src, rerr := h.readFile(params.File)
		if rerr != nil {
			return "", rerr
		}
		got, err = h.completer.CompleteAt(ctx, src, params.Offset)
		label = fmt.Sprintf("%s:%d", params.File, params.Offset)
	case params.Type != "":
		got, err = h.completer.Complete(ctx, params.Type, params.Prefix)
		label = params.Type
		if params.Prefix != "" {
			label += "." + params.Prefix
		}
	default:
		return "", errors.New("either type or file is required")
	}
	if err != nil {
		return "", err
	}
	h.logger.Debug("complete_entries", "query", label, "candidates", len(got))

	if len(got) == 0 {
		return fmt.Sprintf("No entries match %s.", label), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d entries** for %s\n\n", len(got), label)
	for i, c := range got {
		if i == maxCandidates {
			fmt.Fprintf(&sb, "\n_%d more not shown_\n", len(got)-maxCandidates)
			break
		}
		fmt.Fprintf(&sb, "- %s (id %s, %q)\n", c.Name, c.ID, c.RawName)
	}
	return sb.String(), nil
}

// readFile reads a project file, refusing paths that leave the root.
func (h *CompleteHandler) readFile(name string) ([]byte, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.root, p)
	}
	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("file %s is outside the project", name)
	}
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return src, nil
}
