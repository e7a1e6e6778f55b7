package sabda

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Transcription.Provider != "whisper" || cfg.Translation.Service != "libre" {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.Session.DefaultSourceLang != "th" || cfg.Session.DefaultTargetLang != "en" || cfg.Session.SerializeAudio {
		t.Fatalf("unexpected session defaults %#v", cfg.Session)
	}
	if cfg.Translation.BreakerCooldown != 30*time.Second {
		t.Fatalf("unexpected cooldown %v", cfg.Translation.BreakerCooldown)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("WHISPER_SERVICE_URL", "http://whisper:9000")
	t.Setenv("TRANSLATION_SERVICE", "DeepL")
	t.Setenv("DEEPL_API_KEY", "secret")
	t.Setenv("SERVER_ADDR", ":9999")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transcription.Settings["url"] != "http://whisper:9000" {
		t.Fatalf("unexpected transcription settings %v", cfg.Transcription.Settings)
	}
	if got := cfg.TranslationSettings()["api_key"]; got != "secret" {
		t.Fatalf("expected deepl api key, got %v", got)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
}

func TestLoadConfigFileExpandsEnv(t *testing.T) {
	t.Setenv("MY_LIBRE_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "sabda.yaml")
	yaml := `
translation:
  service: libre
  failed_text: "(no translation)"
  services:
    libre:
      url: http://libre:5000
      api_key: ${MY_LIBRE_KEY}
session:
  serialize_audio: true
normalizer:
  glossary:
    open ai: OpenAI
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	settings := cfg.TranslationSettings()
	if settings["api_key"] != "from-env" || settings["url"] != "http://libre:5000" {
		t.Fatalf("unexpected settings %v", settings)
	}
	if !cfg.Session.SerializeAudio || cfg.Translation.FailedText != "(no translation)" {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.Normalizer.Glossary["open ai"] != "OpenAI" {
		t.Fatalf("unexpected glossary %v", cfg.Normalizer.Glossary)
	}
}

func TestLoadConfigRejectsBadLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := LoadConfig("")
	if err == nil || !strings.Contains(err.Error(), "LogLevel") {
		t.Fatalf("expected log level validation error, got %v", err)
	}
}

func TestDeepgramKeyOnlyForDeepgram(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cfg.Transcription.Settings["api_key"]; ok {
		t.Fatalf("deepgram key must not leak into whisper settings")
	}
	t.Setenv("TRANSCRIPTION_PROVIDER", "deepgram")
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transcription.Settings["api_key"] != "dg" {
		t.Fatalf("expected deepgram key, got %v", cfg.Transcription.Settings)
	}
}

func TestProviderRegistryValidatesSettings(t *testing.T) {
	r := DefaultProviders()
	if _, err := r.BuildTranslator("google", nil); err == nil || !strings.Contains(err.Error(), "missing: api_key") {
		t.Fatalf("expected missing api_key, got %v", err)
	}
	if _, err := r.BuildTranslator("bing", nil); err == nil {
		t.Fatalf("expected unsupported service error")
	}
	if _, err := r.BuildTranscriber("whisper", map[string]any{"uri": "x"}); err == nil || !strings.Contains(err.Error(), "unknown: uri") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	a, err := r.BuildTranslator("LIBRE", map[string]any{"url": "http://libre", "timeout": "5s"})
	if err != nil || a.Name() != "libre" {
		t.Fatalf("expected libre adapter, got %v %v", a, err)
	}
}
