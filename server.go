package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server implements the request dispatch layer of the protocol. It receives typed
// inbound requests from client sessions, routes each to the matching subsystem
// (resources, tools, prompts), intercepts subsystem failures, and emits sanitized,
// typed responses. An internal fault never crosses the session boundary unformatted.
type Server struct {
	info Info

	instructions string
	capabilities ServerCapabilities
	transport    ServerTransport

	resourceServer ResourceServer
	toolServer     ToolServer
	promptServer   PromptServer

	sendTimeout time.Duration

	logger *slog.Logger

	sessionsWaitGroup *sync.WaitGroup
	done              chan struct{}
}

// sessionState tracks the dispatch progression of a session's current request.
// A session processes one logical request at a time, end to end; concurrency
// across sessions is unrestricted.
type sessionState int

const (
	stateIdle sessionState = iota
	stateDispatching
	stateAwaitingSubsystem
	stateResponding
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDispatching:
		return "dispatching"
	case stateAwaitingSubsystem:
		return "awaitingSubsystem"
	case stateResponding:
		return "responding"
	default:
		return "unknown"
	}
}

type serverSession struct {
	session Session
	logger  *slog.Logger

	serverCap    ServerCapabilities
	serverInfo   Info
	instructions string

	sendTimeout time.Duration

	resourceServer ResourceServer
	toolServer     ToolServer
	promptServer   PromptServer

	state sessionState
}

var (
	defaultServerSendTimeout = 30 * time.Second

	errInvalidJSON = errors.New("invalid json")
)

// NewServer creates a new server with the specified configuration. Capabilities are
// derived from the subsystem implementations provided through options.
func NewServer(info Info, transport ServerTransport, options ...ServerOption) Server {
	s := Server{
		info:              info,
		transport:         transport,
		logger:            slog.Default(),
		sessionsWaitGroup: &sync.WaitGroup{},
		done:              make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultServerSendTimeout
	}

	s.capabilities = ServerCapabilities{}

	if s.resourceServer != nil {
		s.capabilities.Resources = &ResourcesCapability{}
	}
	if s.toolServer != nil {
		s.capabilities.Tools = &ToolsCapability{}
	}
	if s.promptServer != nil {
		s.capabilities.Prompts = &PromptsCapability{}
	}

	return s
}

// WithResourceServer returns a ServerOption that configures the resource server implementation.
func WithResourceServer(srv ResourceServer) ServerOption {
	return func(s *Server) {
		s.resourceServer = srv
	}
}

// WithToolServer returns a ServerOption that configures the tool server implementation.
func WithToolServer(srv ToolServer) ServerOption {
	return func(s *Server) {
		s.toolServer = srv
	}
}

// WithPromptServer returns a ServerOption that configures the prompt server implementation.
func WithPromptServer(srv PromptServer) ServerOption {
	return func(s *Server) {
		s.promptServer = srv
	}
}

// WithInstructions returns a ServerOption that configures the server instructions.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithServerSendTimeout returns a ServerOption that configures the server's send timeout.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("component", "server"),
		)
	}
}

// Serve starts the server and manages its lifecycle. It accepts client sessions from
// the transport and dispatches their requests until Shutdown is called.
//
// Serve blocks until the server is shut down.
func (s Server) Serve() {
	// This loop breaks when the transport is closed.
	for sess := range s.transport.Sessions() {
		ss := &serverSession{
			session:        sess,
			logger:         s.logger.With(slog.String("sessionID", sess.ID())),
			serverCap:      s.capabilities,
			serverInfo:     s.info,
			instructions:   s.instructions,
			sendTimeout:    s.sendTimeout,
			resourceServer: s.resourceServer,
			toolServer:     s.toolServer,
			promptServer:   s.promptServer,
		}

		s.sessionsWaitGroup.Add(1)

		go func() {
			defer s.sessionsWaitGroup.Done()
			ss.start(s.done)
		}()
	}
}

// Shutdown gracefully shuts down the server by terminating all active sessions and
// cleaning up resources. It returns an error if the shutdown process fails or the
// context is cancelled before the shutdown completes.
func (s Server) Shutdown(ctx context.Context) error {
	// Signal all sessions to stop processing.
	close(s.done)

	s.sessionsWaitGroup.Wait()

	// Close the transport so the Sessions loop in Serve breaks.
	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	return nil
}

func (s *serverSession) start(done <-chan struct{}) {
	// This base context makes sure in-flight subsystem calls are cancelled when
	// the session loop breaks or the server shuts down. Scoped resources held by
	// a cancelled call (leased connections in particular) are still released by
	// their owners; only the result is discarded.
	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()

	go func() {
		select {
		case <-done:
			baseCancel()
			s.session.Stop()
		case <-baseCtx.Done():
		}
	}()

	// Before the client completes initialization, only ping and the
	// initialization messages are processed; everything else is ignored.
	initialized := false

	// This loop breaks when the session is closed. Requests are processed one at
	// a time, end to end, per session.
	for msg := range s.session.Messages() {
		if msg.JSONRPC != JSONRPCVersion {
			s.logger.Info("failed to handle message",
				slog.Any("message", msg),
				slog.String("err", errInvalidJSON.Error()),
			)
			continue
		}

		switch msg.Method {
		case methodPing:
			s.sendResult(msg.ID, nil)
		case methodInitialize:
			s.handleInitializeRequest(msg)
		case methodNotificationsInitialized:
			initialized = true
		case methodNotificationsCancelled:
			// Requests are processed sequentially, so there is never an
			// in-flight request to cancel by the time this arrives.
			s.logger.Debug("ignoring cancellation for completed request", slog.String("requestID", string(msg.ID)))
		case MethodResourcesList, MethodResourcesRead, MethodToolsList, MethodToolsCall,
			MethodPromptsList, MethodPromptsGet:
			if !initialized {
				s.sendError(msg.ID, &JSONRPCError{
					Code:    jsonRPCInvalidRequestCode,
					Message: "session not initialized",
				})
				continue
			}
			s.handleRequest(baseCtx, msg)
		case "":
			// Response message from the client; nothing awaits these.
		default:
			if msg.ID == "" {
				// Unknown notification, drop it.
				continue
			}
			s.logger.Info("unsupported operation", slog.String("method", msg.Method))
			s.sendError(msg.ID, &JSONRPCError{
				Code:    jsonRPCMethodNotFoundCode,
				Message: fmt.Sprintf("unsupported operation: %s", msg.Method),
			})
		}
	}
}

// handleRequest routes a single typed request through its subsystem and emits
// exactly one response, walking the session through
// dispatching -> awaitingSubsystem -> responding -> idle.
func (s *serverSession) handleRequest(ctx context.Context, msg JSONRPCMessage) {
	s.state = stateDispatching

	requestID := uuid.New().String()
	logger := s.logger.With(
		slog.String("requestID", requestID),
		slog.String("method", msg.Method),
	)
	started := time.Now()

	var result any
	var err error

	s.state = stateAwaitingSubsystem

	switch msg.Method {
	case MethodResourcesList:
		result, err = s.callListResources(ctx, msg)
	case MethodResourcesRead:
		result, err = s.callReadResource(ctx, msg)
	case MethodToolsList:
		result, err = s.callListTools(ctx, msg)
	case MethodToolsCall:
		result, err = s.callCallTool(ctx, msg)
	case MethodPromptsList:
		result, err = s.callListPrompts(ctx, msg)
	case MethodPromptsGet:
		result, err = s.callGetPrompt(ctx, msg)
	}

	s.state = stateResponding

	if err != nil {
		// The full failure is logged here with its correlation identifier; the
		// client only ever sees the sanitized form.
		logger.Error("request failed",
			slog.String("err", err.Error()),
			slog.Duration("elapsed", time.Since(started)),
		)
		s.sendError(msg.ID, sanitizeError(err))
	} else {
		logger.Debug("request completed",
			slog.Duration("elapsed", time.Since(started)),
		)
		s.sendResult(msg.ID, result)
	}

	s.state = stateIdle
}

// sanitizeError converts a subsystem failure into a client-facing JSON-RPC error.
// Errors implementing RequestError carry their own code and sanitized message;
// anything else becomes a generic internal error so raw driver text, stack traces,
// and file-system paths never reach the client.
func sanitizeError(err error) *JSONRPCError {
	var reqErr RequestError
	if errors.As(err, &reqErr) {
		return &JSONRPCError{
			Code:    reqErr.RequestErrorCode(),
			Message: reqErr.RequestErrorMessage(),
		}
	}

	jsonErr := JSONRPCError{}
	if errors.As(err, &jsonErr) {
		return &jsonErr
	}

	return &JSONRPCError{
		Code:    jsonRPCInternalErrorCode,
		Message: "internal error",
	}
}

func (s *serverSession) sendResult(id MustString, result any) {
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
	}
	if result != nil {
		resBs, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("failed to marshal result", slog.String("err", err.Error()))
			s.sendError(id, &JSONRPCError{
				Code:    jsonRPCInternalErrorCode,
				Message: "internal error",
			})
			return
		}
		msg.Result = resBs
	} else {
		msg.Result = json.RawMessage("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.session.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send result", slog.String("err", err.Error()))
	}
}

func (s *serverSession) sendError(id MustString, jsonErr *JSONRPCError) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.session.Send(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   jsonErr,
	}); err != nil {
		s.logger.Error("failed to send error", slog.String("err", err.Error()))
	}
}

func (s *serverSession) handleInitializeRequest(msg JSONRPCMessage) {
	res, err := s.initializationHandshake(msg)
	if err != nil {
		s.logger.Info("invalid initialization request", slog.String("err", err.Error()))
		jsonErr := JSONRPCError{}
		if !errors.As(err, &jsonErr) {
			jsonErr = JSONRPCError{
				Code:    jsonRPCInternalErrorCode,
				Message: "internal error",
			}
		}
		s.sendError(msg.ID, &jsonErr)
		return
	}
	s.sendResult(msg.ID, res)
}

func (s *serverSession) initializationHandshake(msg JSONRPCMessage) (initializeResult, error) {
	var params initializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return initializeResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err.Error()),
		}
	}

	if params.ProtocolVersion != protocolVersion {
		return initializeResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("protocol version mismatch: %s != %s", params.ProtocolVersion, protocolVersion),
		}
	}

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.serverCap,
		ServerInfo:      s.serverInfo,
		Instructions:    s.instructions,
	}, nil
}

func (s *serverSession) callListResources(ctx context.Context, msg JSONRPCMessage) (ListResourcesResult, error) {
	if s.resourceServer == nil {
		return ListResourcesResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ListResourcesParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return ListResourcesResult{}, JSONRPCError{
				Code:    jsonRPCInvalidParamsCode,
				Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
			}
		}
	}

	rs, err := s.resourceServer.ListResources(ctx, params)
	if err != nil {
		return ListResourcesResult{}, fmt.Errorf("failed to list resources: %w", err)
	}

	return rs, nil
}

func (s *serverSession) callReadResource(ctx context.Context, msg JSONRPCMessage) (ReadResourceResult, error) {
	if s.resourceServer == nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "resources not supported by server",
		}
	}

	var params ReadResourceParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	r, err := s.resourceServer.ReadResource(ctx, params)
	if err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to read resource: %w", err)
	}

	return r, nil
}

func (s *serverSession) callListTools(ctx context.Context, msg JSONRPCMessage) (ListToolsResult, error) {
	if s.toolServer == nil {
		return ListToolsResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params ListToolsParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return ListToolsResult{}, JSONRPCError{
				Code:    jsonRPCInvalidParamsCode,
				Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
			}
		}
	}

	ts, err := s.toolServer.ListTools(ctx, params)
	if err != nil {
		return ListToolsResult{}, fmt.Errorf("failed to list tools: %w", err)
	}

	return ts, nil
}

func (s *serverSession) callCallTool(ctx context.Context, msg JSONRPCMessage) (CallToolResult, error) {
	if s.toolServer == nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "tools not supported by server",
		}
	}

	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	result, err := s.toolServer.CallTool(ctx, params)
	if err != nil {
		// Tool failures are reported in-band so the caller can adjust and
		// retry; the message is sanitized first.
		jsonErr := sanitizeError(err)
		result = CallToolResult{
			Content: []Content{
				{
					Type: ContentTypeText,
					Text: jsonErr.Message,
				},
			},
			IsError: true,
		}
	}

	return result, nil
}

func (s *serverSession) callListPrompts(ctx context.Context, msg JSONRPCMessage) (ListPromptsResult, error) {
	if s.promptServer == nil {
		return ListPromptsResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params ListPromptsParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return ListPromptsResult{}, JSONRPCError{
				Code:    jsonRPCInvalidParamsCode,
				Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
			}
		}
	}

	ps, err := s.promptServer.ListPrompts(ctx, params)
	if err != nil {
		return ListPromptsResult{}, fmt.Errorf("failed to list prompts: %w", err)
	}

	return ps, nil
}

func (s *serverSession) callGetPrompt(ctx context.Context, msg JSONRPCMessage) (GetPromptResult, error) {
	if s.promptServer == nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: "prompts not supported by server",
		}
	}

	var params GetPromptParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Errorf("failed to unmarshal params: %w", err).Error(),
		}
	}

	p, err := s.promptServer.GetPrompt(ctx, params)
	if err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to get prompt: %w", err)
	}

	return p, nil
}
