// Package database implements a Model Context Protocol server exposing a
// read-only e-commerce dataset. It publishes table schemas and live
// statistics as resources, guarded SQL query tools, and analysis prompt
// templates.
//
// All database access flows through a single Store gateway with a bounded
// connection pool; a Guard validates every SQL statement before a connection
// is leased.
package database

import (
	"log/slog"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

// Server serves the resource, tool, and prompt subsystems over one Store.
type Server struct {
	store  *Store
	guard  Guard
	logger *slog.Logger
}

// Interface assertions.
var (
	_ mcp.ResourceServer = (*Server)(nil)
	_ mcp.ToolServer     = (*Server)(nil)
	_ mcp.PromptServer   = (*Server)(nil)
)

// NewServer creates a Server backed by store and policed by guard.
func NewServer(store *Store, guard Guard, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}
