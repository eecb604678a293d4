package mcp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/deasyyulanda-debug/a-kp-mcp-project"
)

func TestStdIOSessionRoundTrip(t *testing.T) {
	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()

	transport := mcp.NewStdIO(inReader, outWriter)

	received := make(chan mcp.JSONRPCMessage, 4)
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		for sess := range transport.Sessions() {
			if sess.ID() == "" {
				t.Error("session ID is empty")
			}
			for msg := range sess.Messages() {
				received <- msg
				echo := msg
				echo.Method = ""
				echo.Result = json.RawMessage("{}")
				if err := sess.Send(context.Background(), echo); err != nil {
					t.Errorf("send: %v", err)
				}
			}
		}
	}()

	request := mcp.JSONRPCMessage{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      mcp.MustString("1"),
		Method:  "ping",
	}
	requestBs, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	go func() {
		// A blank line and a garbage line must both be skipped.
		inWriter.Write([]byte("\n"))
		inWriter.Write([]byte("not json\n"))
		inWriter.Write(append(requestBs, '\n'))
	}()

	select {
	case msg := <-received:
		if msg.Method != "ping" {
			t.Errorf("received method = %q, want ping", msg.Method)
		}
		if msg.ID != mcp.MustString("1") {
			t.Errorf("received ID = %q, want 1", msg.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	scanner := bufio.NewScanner(outReader)
	if !scanner.Scan() {
		t.Fatalf("read response line: %v", scanner.Err())
	}
	var response mcp.JSONRPCMessage
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.ID != mcp.MustString("1") {
		t.Errorf("response ID = %q, want 1", response.ID)
	}

	// EOF on the input ends the session and the transport loop.
	inWriter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := transport.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case <-sessionDone:
	case <-time.After(time.Second):
		t.Fatal("transport loop did not end after shutdown")
	}
}

func TestStdIOShutdownUnblocksSessions(t *testing.T) {
	inReader, inWriter := io.Pipe()
	defer inWriter.Close()

	transport := mcp.NewStdIO(inReader, io.Discard)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for sess := range transport.Sessions() {
			for range sess.Messages() {
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := transport.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("sessions loop did not end after shutdown")
	}
}
