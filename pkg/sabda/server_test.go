package sabda

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/sabda/pkg/providers/mock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":0",
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		Transcription: VendorConfig{Provider: "mock", Settings: map[string]any{"transcript": "สวัสดี"}},
		Translation:   TranslationConfig{Service: "mock", Services: map[string]map[string]any{"mock": {"prefix": "EN:"}}},
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func newTestGateway(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	providers := DefaultProviders()
	RegisterMockProviders(providers)
	s, err := NewServer(Options{Config: cfg, Providers: providers, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func multipartAudio(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "audio.webm")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestRootReportsServices(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "running" || body["translation_service"] != "mock" || body["whisper_url"] != "mock://transcriber" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSupportedLanguagesRoundTripWithTextTranslate(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	resp, err := http.Get(srv.URL + "/supported-languages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var langs struct {
		Source []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"source_languages"`
		Target []struct {
			Code string `json:"code"`
		} `json:"target_languages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(langs.Source) != 20 || len(langs.Target) != 20 {
		t.Fatalf("expected 20 languages, got %d/%d", len(langs.Source), len(langs.Target))
	}
	for _, l := range langs.Source {
		if l.Name == "" {
			t.Fatalf("missing name for %s", l.Code)
		}
		form := url.Values{"text": {"hello"}, "source_lang": {l.Code}, "target_lang": {langs.Target[0].Code}}
		resp, err := http.PostForm(srv.URL+"/text-translate", form)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		body := decodeBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s rejected: %d %v", l.Code, resp.StatusCode, body)
		}
		if _, ok := body["error"]; ok {
			t.Fatalf("%s: unexpected error %v", l.Code, body)
		}
		if body["original_text"] != "hello" || body["source_lang"] != l.Code {
			t.Fatalf("unexpected body %v", body)
		}
	}
}

func TestTextTranslateRejectsUnsupportedLanguage(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	resp, err := http.Post(srv.URL+"/text-translate?text=hi&source_lang=xx&target_lang=en", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || body["error"] == nil {
		t.Fatalf("expected 400 error, got %d %v", resp.StatusCode, body)
	}
}

func TestTextTranslateMisconfiguredServiceIsBadGateway(t *testing.T) {
	cfg := testConfig()
	cfg.Translation = TranslationConfig{Service: "deepl"}
	_, srv := newTestGateway(t, cfg)
	resp, err := http.PostForm(srv.URL+"/text-translate", url.Values{"text": {"hi"}, "source_lang": {"en"}, "target_lang": {"th"}})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "api_key") {
		t.Fatalf("expected missing api_key in details, got %v", body)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	buf, ct := multipartAudio(t, "audio_file", []byte("webm"))
	resp, err := http.Post(srv.URL+"/transcribe?source_lang=th&target_lang=en", ct, buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := decodeBody(t, resp)
	if body["text"] != "สวัสดี" || body["translated_text"] != "EN:สวัสดี" || body["source_lang"] != "th" || body["target_lang"] != "en" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestTranscribeBackendErrorReturnsOnlyError(t *testing.T) {
	whisperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/asr" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("model crashed"))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer whisperSrv.Close()

	cfg := testConfig()
	cfg.Transcription = VendorConfig{Provider: "whisper", Settings: map[string]any{"url": whisperSrv.URL}}
	_, srv := newTestGateway(t, cfg)

	buf, ct := multipartAudio(t, "audio_file", []byte("webm"))
	resp, err := http.Post(srv.URL+"/transcribe", ct, buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := decodeBody(t, resp)
	if len(body) != 1 {
		t.Fatalf("expected only error key, got %v", body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "status 500") {
		t.Fatalf("unexpected error %v", body)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	buf, ct := multipartAudio(t, "other", []byte("x"))
	resp, err := http.Post(srv.URL+"/transcribe", ct, buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || body["error"] == nil {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, body)
	}
}

func TestHealthReportsBackendStatus(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cfg := testConfig()
	cfg.Transcription = VendorConfig{Provider: "whisper", Settings: map[string]any{"url": deadURL}}
	_, srv := newTestGateway(t, cfg)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "healthy" || body["whisper_service"] != "down" || body["translation_status"] != "up" || body["translation_service"] != "mock" {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestTranslationServicesListsClosedSet(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	resp, err := http.Get(srv.URL + "/translation-services")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	services, _ := body["supported_services"].([]any)
	if len(services) != 3 || services[0] != "deepl" || services[1] != "google" || services[2] != "libre" {
		t.Fatalf("unexpected services %v", body["supported_services"])
	}
	notes, _ := body["notes"].(map[string]any)
	if len(notes) != 3 || body["current_service"] != "mock" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestWhisperCapabilitiesUsesTestAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.webm")
	if err := os.WriteFile(path, []byte("webm"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig()
	cfg.TestAudioPath = path
	_, srv := newTestGateway(t, cfg)
	resp, err := http.Get(srv.URL + "/whisper-capabilities")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	if body["reachable"] != true || body["can_transcribe"] != true || body["transcription_service"] != mock.TranscriberName {
		t.Fatalf("unexpected capabilities %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestGateway(t, testConfig())
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/transcribe", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" || resp.Header.Get("Access-Control-Allow-Headers") != "content-type" {
		t.Fatalf("unexpected headers %v", resp.Header)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/"+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	return c
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	var out map[string]any
	if err := c.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestWebsocketSessionFlow(t *testing.T) {
	s, srv := newTestGateway(t, testConfig())
	c := dialWS(t, srv, "client-42")

	_ = c.WriteMessage(websocket.BinaryMessage, nil)
	_ = c.WriteMessage(websocket.TextMessage, []byte(`{"source_lang":"en","target_lang":"fr"}`))
	ack := readMsg(t, c)
	if ack["status"] != "ok" || ack["message"] != "Language settings updated" || ack["source_lang"] != "en" || ack["target_lang"] != "fr" {
		t.Fatalf("expected ack as first reply (empty audio dropped), got %v", ack)
	}

	_ = c.WriteMessage(websocket.BinaryMessage, []byte("webm-chunk"))
	res := readMsg(t, c)
	if res["text"] != "สวัสดี" || res["translated_text"] != "EN:สวัสดี" || res["source_lang"] != "en" || res["target_lang"] != "fr" {
		t.Fatalf("unexpected result %v", res)
	}

	_ = c.WriteMessage(websocket.TextMessage, []byte("not json"))
	if msg := readMsg(t, c); msg["error"] != "Invalid JSON message" {
		t.Fatalf("unexpected reply %v", msg)
	}
	_ = c.WriteMessage(websocket.TextMessage, []byte(`{}`))
	if msg := readMsg(t, c); msg["status"] != "ok" {
		t.Fatalf("connection should stay open, got %v", msg)
	}
	if _, ok := s.Registry().Get("client-42"); !ok {
		t.Fatalf("expected client registered")
	}
}

func TestDrainClosesConnectionsAndRejectsNew(t *testing.T) {
	s, srv := newTestGateway(t, testConfig())
	c := dialWS(t, srv, "draining")
	deadline := time.Now().Add(time.Second)
	for s.Registry().Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected connection closed")
	}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/late", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining")
	}
}
