package mcp

import (
	"context"
	"iter"
)

// ServerTransport provides the server-side communication layer.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they are
	// initiated. Each yielded Session represents a unique client connection and
	// provides methods for bidirectional communication. The implementation must
	// guarantee that each session ID is unique across all active connections.
	//
	// The implementation should exit the iteration when the Shutdown method is called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport to clean up resources.
	// The caller is guaranteed to call this method only once.
	Shutdown(ctx context.Context) error
}

// Session represents a bidirectional communication channel between server and client.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Send transmits a message to the client.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the client.
	// The implementation should exit the iteration if the session is closed.
	Messages() iter.Seq[JSONRPCMessage]

	// Stop stops the session. Implementations must tolerate repeated calls,
	// since both the server shutdown path and the transport may stop a session.
	Stop()
}

// ResourceServer defines the interface for exposing read-only resources.
type ResourceServer interface {
	// ListResources returns the list of available resources. The list is fixed
	// at server construction and ordered deterministically.
	// Returns error if the operation fails or the context is cancelled.
	ListResources(context.Context, ListResourcesParams) (ListResourcesResult, error)

	// ReadResource retrieves a specific resource by its URI. Payloads are
	// recomputed per read so they reflect live state.
	// Returns error if the resource is not found, cannot be read, or the
	// context is cancelled.
	ReadResource(context.Context, ReadResourceParams) (ReadResourceResult, error)
}

// ToolServer defines the interface for exposing callable tools.
type ToolServer interface {
	// ListTools returns the list of available tools with their input schemas.
	ListTools(context.Context, ListToolsParams) (ListToolsResult, error)

	// CallTool executes a specific tool with the given arguments. Validation
	// and safety-policy failures are reported in-band through CallToolResult
	// with IsError set, so the caller can adjust and retry; the returned error
	// is reserved for faults that should surface as protocol errors.
	CallTool(context.Context, CallToolParams) (CallToolResult, error)
}

// PromptServer defines the interface for exposing parameterized prompt templates.
type PromptServer interface {
	// ListPrompts returns the list of available prompts with their declared arguments.
	ListPrompts(context.Context, ListPromptsParams) (ListPromptsResult, error)

	// GetPrompt renders a specific prompt template by name with the given
	// arguments. Rendering is pure substitution; no data access occurs.
	// Returns error if the prompt is not found or a required argument is absent.
	GetPrompt(context.Context, GetPromptParams) (GetPromptResult, error)
}

// RequestError is implemented by subsystem errors that are safe to surface to
// the client. The dispatcher uses it to map a failure onto a JSON-RPC error
// code with a sanitized message; any error that does not implement it is
// reported as a generic internal error.
type RequestError interface {
	error

	// RequestErrorCode returns the JSON-RPC error code for this failure.
	RequestErrorCode() int

	// RequestErrorMessage returns the sanitized, caller-facing message.
	// It must never include raw driver text or file-system paths.
	RequestErrorMessage() string
}
