// Package mcpserver exposes entry completion to editors and agents over the
// Model Context Protocol.
package mcpserver

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/blueprintgen"
)

// Completer answers completion queries. *blueprintgen.Answerer implements it.
type Completer interface {
	Complete(ctx context.Context, typeName, prefix string) ([]blueprintgen.Candidate, error)
	CompleteAt(ctx context.Context, src []byte, offset int) ([]blueprintgen.Candidate, error)
}

// Server is an MCP server with the completion tools registered.
type Server struct {
	sdk    *sdkmcp.Server
	logger *slog.Logger
}

// New registers the tools over c. Files named by tool calls are resolved
// against root.
func New(c Completer, root string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sdk := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "blueprintgen", Version: blueprintgen.Version}, nil)

	sdkmcp.AddTool(sdk, &sdkmcp.Tool{
		Name: "complete_entries",
		Description: "Complete catalog entry names for a type. Pass type and an optional prefix, " +
			"or file and a byte offset just after a partial member access such as SpellRefs.Fi.",
	}, WrapHandler[CompleteParams](NewCompleteHandler(c, root, logger)))

	return &Server{sdk: sdk, logger: logger}
}

// SDK returns the underlying SDK server, for tests and custom transports.
func (s *Server) SDK() *sdkmcp.Server { return s.sdk }

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.sdk.Run(ctx, &sdkmcp.StdioTransport{})
}
