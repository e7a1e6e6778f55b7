// Package sabda wires configuration, backends, sessions and HTTP routes into
// the realtime speech gateway.
package sabda

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/frames"
	"github.com/harunnryd/sabda/pkg/languages"
	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/metrics"
	"github.com/harunnryd/sabda/pkg/pipeline"
	"github.com/harunnryd/sabda/pkg/resilience"
	"github.com/harunnryd/sabda/pkg/session"
	"github.com/harunnryd/sabda/pkg/textnorm"
	"github.com/harunnryd/sabda/pkg/translation"
	"github.com/harunnryd/sabda/pkg/transports"
	"github.com/harunnryd/sabda/pkg/transports/websocket"
)

const healthTimeout = 5 * time.Second

type Options struct {
	Config    Config
	Providers *ProviderRegistry
	// Transcriber replaces the configured transcription provider when set.
	Transcriber stt.Transcriber
	Observer    metrics.Observer
	Logger      *slog.Logger
}

type Server struct {
	cfg         Config
	providers   *ProviderRegistry
	transcriber stt.Transcriber
	router      *translation.Router
	orch        *pipeline.Orchestrator
	registry    *transports.Registry
	ws          *websocket.Transport
	obs         metrics.Observer
	base        *slog.Logger
	log         *slog.Logger
	handler     http.Handler

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
}

// NewServer builds every component. Only a transcription provider that
// cannot be built is fatal; translation problems surface per request.
func NewServer(opts Options) (*Server, error) {
	cfg := opts.Config
	if opts.Providers == nil {
		opts.Providers = DefaultProviders()
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := logging.NewComponentLogger(opts.Logger, "gateway")

	transcriber := opts.Transcriber
	if transcriber == nil {
		var err error
		transcriber, err = opts.Providers.BuildTranscriber(cfg.Transcription.Provider, cfg.Transcription.Settings)
		if err != nil {
			return nil, err
		}
	}

	service := normalizeName(cfg.Translation.Service)
	adapter, buildErr := opts.Providers.BuildTranslator(service, cfg.TranslationSettings())
	if buildErr != nil {
		log.Warn("translation_service_unavailable", "service", service, "error", buildErr.Error())
	}
	router := translation.New(translation.Options{
		Service:  service,
		Adapter:  adapter,
		BuildErr: buildErr,
		Breaker:  resilience.NewCircuitBreaker(cfg.Translation.BreakerThreshold, cfg.Translation.BreakerCooldown),
		Observer: opts.Observer,
		Logger:   opts.Logger,
	})

	s := &Server{
		cfg:         cfg,
		providers:   opts.Providers,
		transcriber: transcriber,
		router:      router,
		orch: pipeline.New(pipeline.Options{
			Transcriber:           transcriber,
			Translator:            router,
			Normalizer:            textnorm.New(cfg.Normalizer.Glossary),
			Observer:              opts.Observer,
			Logger:                opts.Logger,
			FailedTranslationText: cfg.Translation.FailedText,
		}),
		registry: transports.NewRegistry(),
		obs:      opts.Observer,
		base:     opts.Logger,
		log:      log,
		sessions: make(map[*session.Session]struct{}),
	}
	s.ws = websocket.New(cfg.Websocket, s.registry, s.newSessionHandler, opts.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /supported-languages", s.handleSupportedLanguages)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /translation-services", s.handleTranslationServices)
	mux.HandleFunc("POST /text-translate", s.handleTextTranslate)
	mux.HandleFunc("GET /whisper-capabilities", s.handleWhisperCapabilities)
	mux.Handle("GET "+s.ws.Path()+"{client_id}", s.ws)
	mux.Handle("GET "+s.ws.Path(), s.ws)
	s.handler = corsMiddleware(cfg.Server.CORS, mux)

	log.Info("gateway_init",
		"transcription_provider", transcriber.Name(),
		"whisper_url", endpointOf(transcriber),
		"translation_service", service,
		"translation_configured", router.Configured(),
	)
	for k, v := range s.ws.ReadyFields() {
		log.Debug("gateway_ready_field", "key", k, "value", v)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Registry() *transports.Registry { return s.registry }

func (s *Server) Orchestrator() *pipeline.Orchestrator { return s.orch }

// InFlight sums the pipeline calls running across all live sessions.
func (s *Server) InFlight() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for sess := range s.sessions {
		n += sess.InFlight()
	}
	return n
}

// Drain refuses new connections, lets in-flight pipeline calls deliver,
// then closes every connection.
func (s *Server) Drain(ctx context.Context) error {
	s.registry.SetDraining(true)
	s.log.Info("gateway_draining", "connections", s.registry.Count(), "in_flight", s.InFlight())
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	var err error
wait:
	for s.InFlight() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		case <-ticker.C:
		}
	}
	s.registry.CloseAll()
	if !s.registry.WaitForEmpty(ctx, 50*time.Millisecond) && err == nil {
		err = ctx.Err()
	}
	s.log.Info("gateway_drained", "connections", s.registry.Count())
	return err
}

func (s *Server) newSessionHandler(conn transports.Conn) transports.Handler {
	sess := session.New(conn, session.Options{
		Config:    s.cfg.Session,
		Registrar: s.registry,
		Processor: s.orch,
		Observer:  s.obs,
		Logger:    s.base,
	})
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return &trackedSession{Session: sess, release: func() {
		sess.Wait()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}}
}

// trackedSession forgets the session once it disconnects and its last
// pipeline call finishes.
type trackedSession struct {
	*session.Session
	once    sync.Once
	release func()
}

func (t *trackedSession) HandleFrame(ctx context.Context, f frames.Frame) error {
	err := t.Session.HandleFrame(ctx, f)
	if sf, ok := f.(frames.SystemFrame); ok && sf.Name() == frames.SystemDisconnect {
		t.once.Do(func() { go t.release() })
	}
	return err
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "running",
		"whisper_url":         endpointOf(s.transcriber),
		"translation_service": s.router.ServiceName(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	var wg sync.WaitGroup
	var sttErr, trErr error
	wg.Add(2)
	go func() { defer wg.Done(); sttErr = s.transcriber.Health(ctx) }()
	go func() { defer wg.Done(); trErr = s.router.Health(ctx) }()
	wg.Wait()
	if sttErr != nil {
		s.log.Warn("health_transcription_down", "error", sttErr.Error())
	}
	if trErr != nil {
		s.log.Warn("health_translation_down", "error", trErr.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"whisper_service":     upDown(sttErr),
		"translation_service": s.router.ServiceName(),
		"translation_status":  upDown(trErr),
	})
}

func (s *Server) handleSupportedLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"source_languages": languages.Supported(),
		"target_languages": languages.Supported(),
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	}
	file, _, err := r.FormFile("audio_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, session.ErrorReply{Error: "audio file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, session.ErrorReply{Error: "audio_file is required", Details: err.Error()})
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, session.ErrorReply{Error: "could not read audio_file", Details: err.Error()})
		return
	}
	pair := pipeline.LanguagePair{
		Source: queryOr(r, "source_lang", s.cfg.Session.DefaultSourceLang, "th"),
		Target: queryOr(r, "target_lang", s.cfg.Session.DefaultTargetLang, "en"),
	}
	switch res := s.orch.Process(r.Context(), audio, pair).(type) {
	case pipeline.Success:
		writeJSON(w, http.StatusOK, session.ResultMessage(res))
	case pipeline.Failure:
		writeJSON(w, http.StatusOK, session.ErrorReply{Error: res.Message})
	}
}

func (s *Server) handleTranslationServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current_service":    s.router.ServiceName(),
		"supported_services": s.providers.TranslationServices(),
		"notes":              s.providers.TranslationNotes(),
	})
}

func (s *Server) handleTextTranslate(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	src := formOr(r, "source_lang", s.cfg.Session.DefaultSourceLang, "th")
	tgt := formOr(r, "target_lang", s.cfg.Session.DefaultTargetLang, "en")
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusBadRequest, session.ErrorReply{Error: "text is required"})
		return
	}
	for _, code := range []string{src, tgt} {
		if !languages.IsSupported(code) {
			writeJSON(w, http.StatusBadRequest, session.ErrorReply{Error: "unsupported language: " + code})
			return
		}
	}
	translated, err := s.orch.TranslateText(r.Context(), text, pipeline.LanguagePair{Source: src, Target: tgt})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, session.ErrorReply{Error: "Translation failed", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"original_text":   text,
		"translated_text": translated,
		"source_lang":     src,
		"target_lang":     tgt,
	})
}

func (s *Server) handleWhisperCapabilities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	out := map[string]any{
		"whisper_url":           endpointOf(s.transcriber),
		"transcription_service": s.transcriber.Name(),
		"reachable":             false,
	}
	if err := s.transcriber.Health(ctx); err != nil {
		out["error"] = err.Error()
		writeJSON(w, http.StatusOK, out)
		return
	}
	out["reachable"] = true
	if path := strings.TrimSpace(s.cfg.TestAudioPath); path != "" {
		if audio, err := os.ReadFile(path); err == nil && len(audio) > 0 {
			if _, err := s.transcriber.Transcribe(r.Context(), audio, "en"); err != nil {
				out["can_transcribe"] = false
				out["error"] = err.Error()
			} else {
				out["can_transcribe"] = true
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func upDown(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}

func endpointOf(t stt.Transcriber) string {
	if d, ok := t.(stt.Describer); ok {
		return d.Endpoint()
	}
	return ""
}

func queryOr(r *http.Request, key string, fallbacks ...string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return firstNonEmpty(fallbacks...)
}

func formOr(r *http.Request, key string, fallbacks ...string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return firstNonEmpty(fallbacks...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
