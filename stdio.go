package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements a standard input/output transport layer using newline-delimited
// JSON-RPC message encoding over stdin/stdout or similar io.Reader/io.Writer pairs.
// It provides a single persistent session and processes inbound messages sequentially.
//
// Proper initialization requires using the NewStdIO constructor. Resources are
// released when the session is stopped by the server during Shutdown.
type StdIO struct {
	sess   *stdIOSession
	closed chan struct{}
}

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	done    chan struct{}
	stopped sync.Once
}

// NewStdIO creates a new StdIO instance configured with the provided reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer) StdIO {
	return StdIO{
		sess: &stdIOSession{
			id:     uuid.New().String(),
			reader: reader,
			writer: writer,
			logger: slog.Default(),
			done:   make(chan struct{}),
		},
		closed: make(chan struct{}),
	}
}

// Sessions implements the ServerTransport interface by providing an iterator that
// yields a single persistent session. The session remains active for the lifetime
// of the StdIO instance.
func (s StdIO) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		// StdIO only supports a single session, so we yield it and wait until it's done.
		yield(s.sess)
		<-s.sess.done
	}
}

// Shutdown implements the ServerTransport interface by waiting for the session to close.
func (s StdIO) Shutdown(ctx context.Context) error {
	s.sess.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}

func (s *stdIOSession) ID() string {
	return s.id
}

func (s *stdIOSession) Send(_ context.Context, msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// Append newline to maintain message framing protocol.
	msgBs = append(msgBs, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		s.logger.Warn("session is closed while writing message", slog.String("message", string(msgBs)))
		return nil
	default:
	}

	if _, err := s.writer.Write(msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *stdIOSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
		reader := bufio.NewReader(s.reader)
		for {
			type lineWithErr struct {
				line string
				err  error
			}

			lines := make(chan lineWithErr, 1)

			// Reading happens in a goroutine so a slow or blocked reader never
			// keeps us from observing the done channel.
			go func() {
				line, err := reader.ReadString('\n')
				if err != nil {
					lines <- lineWithErr{err: err}
					return
				}
				lines <- lineWithErr{line: strings.TrimSuffix(line, "\n")}
			}()

			var lwe lineWithErr
			select {
			case <-s.done:
				return
			case lwe = <-lines:
			}

			if lwe.err != nil {
				if errors.Is(lwe.err, io.EOF) {
					return
				}
				s.logger.Error("failed to read message", "err", lwe.err)
				return
			}

			if lwe.line == "" {
				continue
			}

			var msg JSONRPCMessage
			if err := json.Unmarshal([]byte(lwe.line), &msg); err != nil {
				s.logger.Error("failed to unmarshal message", "err", err)
				continue
			}

			// We stop iteration if yield returns false.
			if !yield(msg) {
				return
			}
		}
	}
}

func (s *stdIOSession) Stop() {
	s.stopped.Do(func() {
		close(s.done)
	})
}
