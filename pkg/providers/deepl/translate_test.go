package deepl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/errorsx"
)

func TestTranslateUppercasesLanguages(t *testing.T) {
	var auth string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"translations":[{"detected_source_language":"TH","text":"hello"}]}`))
	}))
	defer srv.Close()

	out := New(Config{URL: srv.URL + "/v2/translate", APIKey: "abc"}).Translate(context.Background(), "สวัสดี", "th", "en")
	tr, ok := out.(translate.Translated)
	if !ok || tr.Text != "hello" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if auth != "DeepL-Auth-Key abc" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["source_lang"] != "TH" || got["target_lang"] != "EN" {
		t.Fatalf("unexpected payload %#v", got)
	}
	texts, _ := got["text"].([]any)
	if len(texts) != 1 || texts[0] != "สวัสดี" {
		t.Fatalf("unexpected text list %#v", got["text"])
	}
}

func TestTranslateRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	out := New(Config{URL: srv.URL, APIKey: "k"}).Translate(context.Background(), "x", "th", "en")
	if failed, ok := out.(translate.Failed); !ok || failed.Reason != errorsx.ReasonTranslateRateLimit {
		t.Fatalf("expected rate limit, got %#v", out)
	}
}

func TestHealthUsesUsageEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"character_count":1}`))
	}))
	defer srv.Close()
	if err := New(Config{URL: srv.URL + "/v2/translate", APIKey: "k"}).Health(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/v2/usage" {
		t.Fatalf("expected /v2/usage, got %s", path)
	}
}
