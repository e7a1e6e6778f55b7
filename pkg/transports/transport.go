package transports

import (
	"context"
	"errors"

	"github.com/harunnryd/sabda/pkg/frames"
)

// ErrClosed is returned by Conn.Send after the connection has closed.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one client connection as seen by a session. Send serializes msg
// as JSON and queues it for delivery; it must be safe for concurrent use.
type Conn interface {
	ID() string
	Send(msg any) error
	Close() error
}

// Handler consumes the frames of one connection. Frames are delivered from a
// single goroutine in arrival order; a non-nil error ends the read loop.
type Handler interface {
	HandleFrame(ctx context.Context, f frames.Frame) error
}

// HandlerFactory builds the handler for a newly accepted connection.
type HandlerFactory func(conn Conn) Handler

// ReadyReporter allows transports to expose readiness metadata (e.g., websocket paths).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
