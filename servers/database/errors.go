package database

import "fmt"

// Kind identifies the category of a request failure. Failure is part of the
// return type at every component boundary; no validation outcome travels as a
// side channel.
type Kind string

// Failure categories.
const (
	KindUnknownResource      Kind = "unknown_resource"
	KindUnknownTool          Kind = "unknown_tool"
	KindUnknownPrompt        Kind = "unknown_prompt"
	KindInvalidArguments     Kind = "invalid_arguments"
	KindMissingArgument      Kind = "missing_argument"
	KindRejectedQuery        Kind = "rejected_query"
	KindPoolExhausted        Kind = "pool_exhausted"
	KindQueryExecution       Kind = "query_execution_error"
	KindUnsupportedOperation Kind = "unsupported_operation"
)

// Error is the failure type crossing every component boundary in this package.
// Its message is sanitized at construction: it never embeds raw driver text,
// stack traces, or file-system paths, so it is always safe to surface.
type Error struct {
	// Kind is the failure category.
	Kind Kind

	// Field names the offending argument for argument-validation failures.
	Field string

	// Message is the sanitized, caller-facing description.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RequestErrorCode implements mcp.RequestError.
func (e *Error) RequestErrorCode() int {
	switch e.Kind {
	case KindPoolExhausted, KindQueryExecution:
		return -32603 // internal error
	case KindUnsupportedOperation:
		return -32601 // method not found
	default:
		return -32602 // invalid params
	}
}

// RequestErrorMessage implements mcp.RequestError.
func (e *Error) RequestErrorMessage() string {
	return e.Message
}

func unknownResource(uri string) *Error {
	return &Error{
		Kind:    KindUnknownResource,
		Message: fmt.Sprintf("unknown resource: %s", uri),
	}
}

func unknownTool(name string) *Error {
	return &Error{
		Kind:    KindUnknownTool,
		Message: fmt.Sprintf("unknown tool: %s", name),
	}
}

func unknownPrompt(name string) *Error {
	return &Error{
		Kind:    KindUnknownPrompt,
		Message: fmt.Sprintf("unknown prompt: %s", name),
	}
}

func invalidArguments(field, reason string) *Error {
	return &Error{
		Kind:    KindInvalidArguments,
		Field:   field,
		Message: fmt.Sprintf("invalid argument %q: %s", field, reason),
	}
}

func missingArgument(field string) *Error {
	return &Error{
		Kind:    KindMissingArgument,
		Field:   field,
		Message: fmt.Sprintf("missing required argument %q", field),
	}
}

func rejectedQuery(reason string) *Error {
	return &Error{
		Kind:    KindRejectedQuery,
		Message: fmt.Sprintf("query rejected: %s", reason),
	}
}

func poolExhausted() *Error {
	return &Error{
		Kind:    KindPoolExhausted,
		Message: "connection pool exhausted, try again later",
	}
}

// queryExecution reports an execution failure without the underlying store's
// error text. The raw cause is logged by the gateway, never surfaced.
func queryExecution(scope string) *Error {
	return &Error{
		Kind:    KindQueryExecution,
		Message: fmt.Sprintf("%s: query execution failed", scope),
	}
}
