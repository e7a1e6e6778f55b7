package transports

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry maps client ids to live connections. It is safe for concurrent use.
type Registry struct {
	conns    sync.Map
	count    atomic.Int64
	draining atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores conn under id and returns the connection it replaced, if any.
func (r *Registry) Register(id string, conn Conn) Conn {
	if id == "" || conn == nil {
		return nil
	}
	prev, loaded := r.conns.Swap(id, conn)
	if !loaded {
		r.count.Add(1)
		return nil
	}
	return prev.(Conn)
}

// Deregister removes id only while it still maps to conn, so a stale
// connection cannot evict the reconnect that replaced it.
func (r *Registry) Deregister(id string, conn Conn) bool {
	if r.conns.CompareAndDelete(id, conn) {
		r.count.Add(-1)
		return true
	}
	return false
}

func (r *Registry) Get(id string) (Conn, bool) {
	if v, ok := r.conns.Load(id); ok {
		return v.(Conn), true
	}
	return nil, false
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	var ids []string
	r.conns.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// CloseAll closes every registered connection. Entries are removed by the
// sessions as their read loops exit.
func (r *Registry) CloseAll() {
	r.conns.Range(func(_, value any) bool {
		_ = value.(Conn).Close()
		return true
	})
}

func (r *Registry) Count() int64 {
	return r.count.Load()
}

func (r *Registry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *Registry) Draining() bool {
	return r.draining.Load()
}

func (r *Registry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
