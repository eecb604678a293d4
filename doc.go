// Package mcp implements the server side of the Model Context Protocol (MCP) for
// exposing a relational dataset to Large Language Model clients through three typed
// primitives: read-only resources, callable tools, and parameterized prompts.
//
// The package provides the request dispatch layer: it receives typed JSON-RPC
// requests over a transport, routes each to the matching subsystem implementation,
// intercepts failures, and returns sanitized, serializable responses. Subsystem
// implementations live in the servers/ subpackages; servers/database provides the
// safety-gated SQL query execution core.
package mcp
