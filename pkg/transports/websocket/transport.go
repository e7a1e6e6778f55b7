// Package websocket accepts browser websocket connections and turns their
// messages into frames for a per-connection handler.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/frames"
	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/transports"
)

type Config struct {
	Path           string        `mapstructure:"path"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/ws/"
	}
	if !strings.HasSuffix(c.Path, "/") {
		c.Path += "/"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 10 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	return c
}

type Transport struct {
	cfg      Config
	upgrader websocket.Upgrader
	registry *transports.Registry
	factory  transports.HandlerFactory
	log      *slog.Logger
	active   atomic.Int64
}

func New(cfg Config, registry *transports.Registry, factory transports.HandlerFactory, logger *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		cfg:      cfg,
		registry: registry,
		factory:  factory,
		log:      logging.NewComponentLogger(logger, "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "websocket" }

// Path returns the route prefix; the client id follows it.
func (t *Transport) Path() string { return t.cfg.Path }

// Active reports the number of open connections served by this transport.
func (t *Transport) Active() int64 { return t.active.Load() }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"ws_path":          t.cfg.Path + "{client_id}",
		"allow_any_origin": t.cfg.AllowAnyOrigin,
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.registry != nil && t.registry.Draining() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Debug("websocket_upgrade_failed", "error", err.Error())
		return
	}

	id := t.clientID(r)
	c := newConn(id, ws, t.cfg, t.log)
	go c.writeLoop()
	t.active.Add(1)
	defer t.active.Add(-1)

	meta := map[string]string{
		frames.MetaClientID:   id,
		frames.MetaTraceID:    uuid.NewString(),
		frames.MetaSource:     "websocket",
		frames.MetaRemoteAddr: r.RemoteAddr,
	}
	log := t.log.With("client_id", id, "trace_id", meta[frames.MetaTraceID])
	log.Info("websocket_connected", "remote_addr", r.RemoteAddr)

	ctx := r.Context()
	handler := t.factory(c)
	_ = handler.HandleFrame(ctx, frames.NewSystemFrame(id, frames.Now(), frames.SystemConnect, meta))

	ws.SetReadLimit(t.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	reason := "client_closed"
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn("websocket_read_error", "error", err.Error())
				reason = "read_error"
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		var f frames.Frame
		switch mt {
		case websocket.BinaryMessage:
			f = frames.NewAudioFrame(id, frames.Now(), data, meta)
		case websocket.TextMessage:
			f = frames.NewTextFrame(id, frames.Now(), string(data), meta)
		default:
			continue
		}
		if err := handler.HandleFrame(ctx, f); err != nil {
			log.Warn("websocket_handler_error", "error", err.Error())
			reason = "handler_error"
			break
		}
	}

	closeMeta := map[string]string{frames.MetaCloseReason: reason}
	for k, v := range meta {
		closeMeta[k] = v
	}
	_ = handler.HandleFrame(context.WithoutCancel(ctx), frames.NewSystemFrame(id, frames.Now(), frames.SystemDisconnect, closeMeta))
	_ = c.Close()
	<-c.done
	log.Info("websocket_disconnected", "reason", reason)
}

func (t *Transport) clientID(r *http.Request) string {
	id := strings.TrimSpace(r.PathValue("client_id"))
	if id == "" {
		id = strings.Trim(strings.TrimPrefix(r.URL.Path, t.cfg.Path), "/")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case a == "":
		case a == "*":
			return true
		case strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://"):
			if strings.EqualFold(a, origin) {
				return true
			}
		case strings.EqualFold(a, originHost):
			return true
		}
	}
	return false
}

// conn owns the write side of one websocket. All writes happen on the
// writeLoop goroutine.
type conn struct {
	id     string
	ws     *websocket.Conn
	cfg    Config
	log    *slog.Logger
	sendCh chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newConn(id string, ws *websocket.Conn, cfg Config, log *slog.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		log:    log,
		sendCh: make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonUnexpected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transports.ErrClosed
	}
	select {
	case c.sendCh <- b:
		return nil
	default:
		return errorsx.Newf(errorsx.ReasonTransportSend, "send buffer full (%d)", cap(c.sendCh))
	}
}

// Close stops accepting messages; queued messages are flushed before the
// socket closes.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	return nil
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()
	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket_write_failed", "client_id", c.id, "error", err.Error())
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

var _ transports.Conn = (*conn)(nil)
