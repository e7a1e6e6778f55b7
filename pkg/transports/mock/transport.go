package mock

import (
	"encoding/json"
	"sync"

	"github.com/harunnryd/sabda/pkg/transports"
)

// Conn is an in-memory transports.Conn for tests and local integration.
// Every sent message is round-tripped through JSON so callers inspect
// exactly what a websocket client would receive.
type Conn struct {
	id string

	mu     sync.Mutex
	msgs   []map[string]any
	closed bool
	fail   error
	notify chan struct{}
}

func NewConn(id string) *Conn {
	return &Conn{id: id, notify: make(chan struct{}, 1)}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	if c.closed {
		return transports.ErrClosed
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	c.msgs = append(c.msgs, out)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// FailWith makes every later Send return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages returns a copy of every delivered message.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.msgs...)
}

// Sent signals after each delivered message; signals coalesce.
func (c *Conn) Sent() <-chan struct{} { return c.notify }

var _ transports.Conn = (*Conn)(nil)
