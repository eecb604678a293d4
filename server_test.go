package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

type mockSession struct {
	incoming chan mcp.JSONRPCMessage
	outgoing chan mcp.JSONRPCMessage
	done     chan struct{}
	stopOnce sync.Once
}

func newMockSession() *mockSession {
	return &mockSession{
		incoming: make(chan mcp.JSONRPCMessage),
		outgoing: make(chan mcp.JSONRPCMessage, 16),
		done:     make(chan struct{}),
	}
}

func (m *mockSession) ID() string { return "mock-session" }

func (m *mockSession) Send(_ context.Context, msg mcp.JSONRPCMessage) error {
	select {
	case m.outgoing <- msg:
		return nil
	case <-m.done:
		return nil
	}
}

func (m *mockSession) Messages() iter.Seq[mcp.JSONRPCMessage] {
	return func(yield func(mcp.JSONRPCMessage) bool) {
		for {
			select {
			case <-m.done:
				return
			case msg := <-m.incoming:
				if !yield(msg) {
					return
				}
			}
		}
	}
}

func (m *mockSession) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

type mockTransport struct {
	sess   *mockSession
	closed chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		sess:   newMockSession(),
		closed: make(chan struct{}),
	}
}

func (m *mockTransport) Sessions() iter.Seq[mcp.Session] {
	return func(yield func(mcp.Session) bool) {
		defer close(m.closed)
		if !yield(m.sess) {
			return
		}
		<-m.sess.done
	}
}

func (m *mockTransport) Shutdown(ctx context.Context) error {
	m.sess.Stop()
	select {
	case <-m.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockResourceServer struct {
	readErr error
}

func (m *mockResourceServer) ListResources(
	_ context.Context,
	_ mcp.ListResourcesParams,
) (mcp.ListResourcesResult, error) {
	return mcp.ListResourcesResult{
		Resources: []mcp.Resource{{URI: "db://schema/customers", Name: "Customers"}},
	}, nil
}

func (m *mockResourceServer) ReadResource(
	_ context.Context,
	params mcp.ReadResourceParams,
) (mcp.ReadResourceResult, error) {
	if m.readErr != nil {
		return mcp.ReadResourceResult{}, m.readErr
	}
	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{URI: params.URI, Text: "{}"}},
	}, nil
}

type mockToolServer struct {
	callErr error
}

func (m *mockToolServer) ListTools(
	_ context.Context,
	_ mcp.ListToolsParams,
) (mcp.ListToolsResult, error) {
	return mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "query_database"}}}, nil
}

func (m *mockToolServer) CallTool(
	_ context.Context,
	params mcp.CallToolParams,
) (mcp.CallToolResult, error) {
	if m.callErr != nil {
		return mcp.CallToolResult{}, m.callErr
	}
	return mcp.CallToolResult{
		Content: []mcp.Content{{Type: mcp.ContentTypeText, Text: params.Name}},
	}, nil
}

type mockPromptServer struct{}

func (m mockPromptServer) ListPrompts(
	_ context.Context,
	_ mcp.ListPromptsParams,
) (mcp.ListPromptsResult, error) {
	return mcp.ListPromptsResult{Prompts: []mcp.Prompt{{Name: "analyze_customer"}}}, nil
}

func (m mockPromptServer) GetPrompt(
	_ context.Context,
	params mcp.GetPromptParams,
) (mcp.GetPromptResult, error) {
	return mcp.GetPromptResult{Description: params.Name}, nil
}

// requestFault mimics the sanitized failure type crossing the dispatcher
// boundary from subsystem servers.
type requestFault struct {
	code    int
	message string
	cause   string
}

func (e *requestFault) Error() string { return e.cause }

func (e *requestFault) RequestErrorCode() int { return e.code }

func (e *requestFault) RequestErrorMessage() string { return e.message }

type serverFixture struct {
	transport *mockTransport
	srv       mcp.Server
	nextID    int
}

func newServerFixture(t *testing.T, options ...mcp.ServerOption) *serverFixture {
	t.Helper()

	f := &serverFixture{transport: newMockTransport()}
	f.srv = mcp.NewServer(mcp.Info{Name: "test-server", Version: "0.1.0"}, f.transport, options...)
	go f.srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := f.srv.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return f
}

func (f *serverFixture) request(t *testing.T, method string, params any) mcp.JSONRPCMessage {
	t.Helper()

	f.nextID++
	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	msg := mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      mcp.MustString(fmt.Sprintf("%d", f.nextID)),
		Method:  method,
		Params:  rawParams,
	}

	select {
	case f.transport.sess.incoming <- msg:
	case <-time.After(time.Second):
		t.Fatal("timed out sending request")
	}
	select {
	case res := <-f.transport.sess.outgoing:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for response to %s", method)
		return mcp.JSONRPCMessage{}
	}
}

func (f *serverFixture) notify(t *testing.T, method string) {
	t.Helper()

	msg := mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, Method: method}
	select {
	case f.transport.sess.incoming <- msg:
	case <-time.After(time.Second):
		t.Fatal("timed out sending notification")
	}
}

func (f *serverFixture) initialize(t *testing.T) {
	t.Helper()

	res := f.request(t, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "test-client", "version": "0.0.1"},
	})
	if res.Error != nil {
		t.Fatalf("initialize failed: %+v", res.Error)
	}
	f.notify(t, "notifications/initialized")
}

func TestServerInitialize(t *testing.T) {
	f := newServerFixture(t,
		mcp.WithResourceServer(&mockResourceServer{}),
		mcp.WithToolServer(&mockToolServer{}),
	)

	res := f.request(t, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "test-client", "version": "0.0.1"},
	})
	if res.Error != nil {
		t.Fatalf("initialize failed: %+v", res.Error)
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Resources *struct{} `json:"resources"`
			Tools     *struct{} `json:"tools"`
			Prompts   *struct{} `json:"prompts"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("unmarshal initialize result: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocolVersion = %q, want 2024-11-05", result.ProtocolVersion)
	}
	if result.Capabilities.Resources == nil {
		t.Error("resources capability not advertised")
	}
	if result.Capabilities.Tools == nil {
		t.Error("tools capability not advertised")
	}
	if result.Capabilities.Prompts != nil {
		t.Error("prompts capability advertised without a prompt server")
	}
}

func TestServerRejectsUnsupportedProtocolVersion(t *testing.T) {
	f := newServerFixture(t, mcp.WithToolServer(&mockToolServer{}))

	res := f.request(t, "initialize", map[string]any{
		"protocolVersion": "1999-01-01",
		"clientInfo":      map[string]string{"name": "test-client", "version": "0.0.1"},
	})
	if res.Error == nil {
		t.Fatal("expected error for unsupported protocol version")
	}
}

func TestServerRoutesRequests(t *testing.T) {
	f := newServerFixture(t,
		mcp.WithResourceServer(&mockResourceServer{}),
		mcp.WithToolServer(&mockToolServer{}),
		mcp.WithPromptServer(mockPromptServer{}),
	)
	f.initialize(t)

	testCases := []struct {
		method string
		params any
	}{
		{mcp.MethodResourcesList, nil},
		{mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "db://schema/customers"}},
		{mcp.MethodToolsList, nil},
		{mcp.MethodToolsCall, mcp.CallToolParams{Name: "query_database"}},
		{mcp.MethodPromptsList, nil},
		{mcp.MethodPromptsGet, mcp.GetPromptParams{Name: "analyze_customer"}},
	}

	for _, tc := range testCases {
		t.Run(tc.method, func(t *testing.T) {
			res := f.request(t, tc.method, tc.params)
			if res.Error != nil {
				t.Fatalf("%s failed: %+v", tc.method, res.Error)
			}
			if len(res.Result) == 0 {
				t.Fatalf("%s returned empty result", tc.method)
			}
		})
	}
}

func TestServerUnsupportedMethod(t *testing.T) {
	f := newServerFixture(t, mcp.WithToolServer(&mockToolServer{}))
	f.initialize(t)

	res := f.request(t, "resources/subscribe", nil)
	if res.Error == nil {
		t.Fatal("expected error for unsupported method")
	}
	if res.Error.Code != -32601 {
		t.Errorf("error code = %d, want -32601", res.Error.Code)
	}
	if !strings.Contains(res.Error.Message, "resources/subscribe") {
		t.Errorf("error message %q does not name the method", res.Error.Message)
	}
}

func TestServerRequiresInitialization(t *testing.T) {
	f := newServerFixture(t, mcp.WithToolServer(&mockToolServer{}))

	res := f.request(t, mcp.MethodToolsList, nil)
	if res.Error == nil {
		t.Fatal("expected error before initialization")
	}
}

func TestServerSanitizesFaults(t *testing.T) {
	fault := &requestFault{
		code:    -32602,
		message: "unknown resource: db://nope",
		cause:   "lookup failed at /var/lib/db/ecommerce.db: no such row",
	}
	f := newServerFixture(t,
		mcp.WithResourceServer(&mockResourceServer{readErr: fault}),
		mcp.WithToolServer(&mockToolServer{}),
	)
	f.initialize(t)

	res := f.request(t, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "db://nope"})
	if res.Error == nil {
		t.Fatal("expected error")
	}
	if res.Error.Code != fault.code {
		t.Errorf("error code = %d, want %d", res.Error.Code, fault.code)
	}
	if res.Error.Message != fault.message {
		t.Errorf("error message = %q, want %q", res.Error.Message, fault.message)
	}
	if strings.Contains(res.Error.Message, "/var/lib") {
		t.Error("sanitized message leaks internal detail")
	}
}

func TestServerHidesInternalErrors(t *testing.T) {
	f := newServerFixture(t,
		mcp.WithResourceServer(&mockResourceServer{
			readErr: errors.New("dial tcp 10.0.0.1:5432: connection refused"),
		}),
	)
	f.initialize(t)

	res := f.request(t, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: "db://schema/customers"})
	if res.Error == nil {
		t.Fatal("expected error")
	}
	if res.Error.Code != -32603 {
		t.Errorf("error code = %d, want -32603", res.Error.Code)
	}
	if strings.Contains(res.Error.Message, "10.0.0.1") {
		t.Errorf("error message %q leaks the underlying cause", res.Error.Message)
	}
}

func TestServerConvertsToolErrors(t *testing.T) {
	f := newServerFixture(t, mcp.WithToolServer(&mockToolServer{
		callErr: &requestFault{
			code:    -32603,
			message: "query_database: query execution failed",
			cause:   "sqlite3: SQL logic error near line 1",
		},
	}))
	f.initialize(t)

	res := f.request(t, mcp.MethodToolsCall, mcp.CallToolParams{Name: "query_database"})
	if res.Error != nil {
		t.Fatalf("tool faults should be in-band results, got protocol error: %+v", res.Error)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if len(result.Content) != 1 || result.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
	if strings.Contains(result.Content[0].Text, "sqlite3") {
		t.Errorf("tool error %q leaks driver text", result.Content[0].Text)
	}
}

func TestServerPing(t *testing.T) {
	f := newServerFixture(t, mcp.WithToolServer(&mockToolServer{}))

	res := f.request(t, "ping", nil)
	if res.Error != nil {
		t.Fatalf("ping failed: %+v", res.Error)
	}
}
