// Package session holds per-connection state: the current language pair and
// the pipeline calls started for that connection's audio.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/sabda/pkg/frames"
	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/metrics"
	"github.com/harunnryd/sabda/pkg/pipeline"
	"github.com/harunnryd/sabda/pkg/transports"
)

// Processor runs one audio chunk through the pipeline.
type Processor interface {
	Process(ctx context.Context, audio []byte, pair pipeline.LanguagePair) pipeline.Result
}

// Registrar is the connection registry owned by the gateway.
type Registrar interface {
	Register(id string, conn transports.Conn) transports.Conn
	Deregister(id string, conn transports.Conn) bool
}

type Config struct {
	DefaultSourceLang string `mapstructure:"default_source_lang"`
	DefaultTargetLang string `mapstructure:"default_target_lang"`
	// SerializeAudio makes each chunk wait for the previous chunk's result.
	SerializeAudio bool `mapstructure:"serialize_audio"`
	// QueueSize bounds pending chunks when SerializeAudio is on.
	QueueSize int `mapstructure:"queue_size"`
}

func (c Config) withDefaults() Config {
	if c.DefaultSourceLang == "" {
		c.DefaultSourceLang = "th"
	}
	if c.DefaultTargetLang == "" {
		c.DefaultTargetLang = "en"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4
	}
	return c
}

type Options struct {
	Config    Config
	Registrar Registrar
	Processor Processor
	Observer  metrics.Observer
	Logger    *slog.Logger
	Listeners []StateListener
}

type Session struct {
	id   string
	conn transports.Conn
	cfg  Config
	reg  Registrar
	proc Processor
	obs  metrics.Observer
	log  *slog.Logger

	listeners []StateListener

	mu   sync.RWMutex
	pair pipeline.LanguagePair

	inflight atomic.Int64
	wg       sync.WaitGroup

	lifeMu  sync.Mutex
	started bool
	closed  bool
	jobs    chan job
	opened  time.Time
}

type job struct {
	ctx   context.Context
	audio []byte
	pair  pipeline.LanguagePair
}

func New(conn transports.Conn, opts Options) *Session {
	cfg := opts.Config.withDefaults()
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		id:        conn.ID(),
		conn:      conn,
		cfg:       cfg,
		reg:       opts.Registrar,
		proc:      opts.Processor,
		obs:       opts.Observer,
		log:       logging.NewComponentLogger(opts.Logger, "session").With("client_id", conn.ID()),
		listeners: opts.Listeners,
		pair:      pipeline.LanguagePair{Source: cfg.DefaultSourceLang, Target: cfg.DefaultTargetLang},
	}
}

func (s *Session) ID() string { return s.id }

// Languages returns the current language pair.
func (s *Session) Languages() pipeline.LanguagePair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// State reports Processing while any pipeline call is in flight.
func (s *Session) State() State {
	if s.inflight.Load() > 0 {
		return StateProcessing
	}
	return StateIdle
}

func (s *Session) InFlight() int64 { return s.inflight.Load() }

// Start registers the connection. A previous connection with the same id is
// closed and replaced.
func (s *Session) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.opened = time.Now()
	if s.reg != nil {
		if prev := s.reg.Register(s.id, s.conn); prev != nil && prev != s.conn {
			s.log.Info("session_replaced_connection")
			_ = prev.Close()
		}
	}
	if s.cfg.SerializeAudio {
		s.jobs = make(chan job, s.cfg.QueueSize)
		go s.worker(s.jobs)
	}
	s.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSessionOpen, Time: s.opened, Tags: map[string]string{"client_id": s.id}})
	s.log.Info("session_started", "source_lang", s.pair.Source, "target_lang", s.pair.Target)
}

// Close deregisters the connection. In-flight pipeline calls keep running and
// their results are dropped if delivery fails.
func (s *Session) Close() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.reg != nil {
		s.reg.Deregister(s.id, s.conn)
	}
	if s.jobs != nil {
		close(s.jobs)
	}
	s.obs.RecordEvent(metrics.Latency(metrics.EventSessionClose, s.opened, map[string]string{"client_id": s.id}))
	s.log.Info("session_closed", "in_flight", s.inflight.Load())
}

// Wait blocks until every started pipeline call has delivered or dropped its result.
func (s *Session) Wait() {
	s.wg.Wait()
}

// HandleFrame dispatches one inbound frame. It returns an error only when an
// error reply could not be delivered, which ends the connection.
func (s *Session) HandleFrame(ctx context.Context, f frames.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session_frame_panic", "panic", r, "kind", f.Kind())
			reply := ErrorReply{Error: fmt.Sprintf("unexpected error: %v", r), Details: fmt.Sprintf("%s frame", f.Kind())}
			if sendErr := s.conn.Send(reply); sendErr != nil {
				err = fmt.Errorf("send error reply: %w", sendErr)
			}
		}
	}()

	switch fr := f.(type) {
	case frames.AudioFrame:
		s.handleAudio(ctx, fr)
		return nil
	case frames.TextFrame:
		return s.handleText(fr)
	case frames.SystemFrame:
		switch fr.Name() {
		case frames.SystemConnect:
			s.Start()
		case frames.SystemDisconnect:
			s.Close()
		}
		return nil
	default:
		s.log.Debug("session_frame_ignored", "kind", f.Kind())
		return nil
	}
}

func (s *Session) handleAudio(ctx context.Context, f frames.AudioFrame) {
	if f.Len() == 0 {
		s.log.Debug("session_empty_audio_dropped")
		return
	}
	pair := s.Languages()
	s.log.Debug("session_audio_received", "bytes", f.Len(), "source_lang", pair.Source, "target_lang", pair.Target)
	j := job{ctx: context.WithoutCancel(ctx), audio: f.RawPayload(), pair: pair}

	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		s.log.Debug("session_audio_after_close")
		return
	}
	s.begin()
	jobs := s.jobs
	if jobs == nil {
		s.lifeMu.Unlock()
		go s.run(j)
		return
	}
	s.lifeMu.Unlock()
	jobs <- j
}

func (s *Session) worker(jobs <-chan job) {
	for j := range jobs {
		s.run(j)
	}
}

func (s *Session) run(j job) {
	defer s.end()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session_pipeline_panic", "panic", r)
		}
	}()
	res := s.proc.Process(j.ctx, j.audio, j.pair)
	s.deliver(ResultMessage(res))
}

func (s *Session) handleText(f frames.TextFrame) error {
	src, tgt, ok := parseLanguageUpdate(f.Text())
	if !ok {
		s.log.Debug("session_invalid_json")
		if err := s.conn.Send(ErrorReply{Error: MsgInvalidJSON}); err != nil {
			return fmt.Errorf("send invalid json reply: %w", err)
		}
		return nil
	}
	s.mu.Lock()
	if src != "" {
		s.pair.Source = src
	}
	if tgt != "" {
		s.pair.Target = tgt
	}
	pair := s.pair
	s.mu.Unlock()
	s.log.Info("session_languages_updated", "source_lang", pair.Source, "target_lang", pair.Target)
	s.deliver(LanguageAck{Status: "ok", Message: MsgLanguageUpdated, SourceLang: pair.Source, TargetLang: pair.Target})
	return nil
}

// parseLanguageUpdate accepts a JSON object (or null) whose source_lang and
// target_lang, when present and non-null, are strings.
func parseLanguageUpdate(text string) (src, tgt string, ok bool) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return "", "", false
	}
	if raw == nil {
		return "", "", true
	}
	obj, isObj := raw.(map[string]any)
	if !isObj {
		return "", "", false
	}
	for key, dst := range map[string]*string{"source_lang": &src, "target_lang": &tgt} {
		v, present := obj[key]
		if !present || v == nil {
			continue
		}
		str, isStr := v.(string)
		if !isStr {
			return "", "", false
		}
		*dst = str
	}
	return src, tgt, true
}

// deliver swallows send failures; the client may already be gone.
func (s *Session) deliver(msg any) {
	if err := s.conn.Send(msg); err != nil {
		if errors.Is(err, transports.ErrClosed) {
			s.log.Debug("session_send_after_close")
		} else {
			s.log.Warn("session_send_failed", "error", err)
		}
		s.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSendDropped, Time: time.Now(), Tags: map[string]string{"client_id": s.id}})
	}
}

func (s *Session) begin() {
	s.wg.Add(1)
	if n := s.inflight.Add(1); n == 1 {
		s.notify(StateIdle, StateProcessing, n)
	}
}

func (s *Session) end() {
	if n := s.inflight.Add(-1); n == 0 {
		s.notify(StateProcessing, StateIdle, n)
	}
	s.wg.Done()
}

func (s *Session) notify(from, to State, n int64) {
	if len(s.listeners) == 0 {
		return
	}
	ev := StateChange{SessionID: s.id, FromState: from, ToState: to, Timestamp: time.Now(), InFlight: n}
	for _, l := range s.listeners {
		l.OnStateChange(ev)
	}
}
