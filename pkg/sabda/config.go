package sabda

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/harunnryd/sabda/pkg/session"
	"github.com/harunnryd/sabda/pkg/transports/websocket"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transcription VendorConfig        `mapstructure:"transcription"`
	Translation   TranslationConfig   `mapstructure:"translation"`
	Session       session.Config      `mapstructure:"session"`
	Websocket     websocket.Config    `mapstructure:"websocket"`
	Normalizer    NormalizerConfig    `mapstructure:"normalizer"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	TestAudioPath string              `mapstructure:"test_audio_path"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat     string              `mapstructure:"log_format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gte=0"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider" validate:"required"`
	Settings map[string]any `mapstructure:"settings"`
}

// TranslationConfig selects one service; Services holds per-service settings.
// An unknown or misconfigured service is reported at translate time.
type TranslationConfig struct {
	Service          string                    `mapstructure:"service"`
	Services         map[string]map[string]any `mapstructure:"services"`
	FailedText       string                    `mapstructure:"failed_text"`
	BreakerThreshold int                       `mapstructure:"breaker_threshold" validate:"gte=0"`
	BreakerCooldown  time.Duration             `mapstructure:"breaker_cooldown"`
}

type NormalizerConfig struct {
	Glossary map[string]string `mapstructure:"glossary"`
}

type ObservabilityConfig struct {
	MetricsFile string  `mapstructure:"metrics_file"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	AsyncBuffer int     `mapstructure:"async_buffer" validate:"gte=0"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// envBindings maps config keys to the environment variables operators set.
var envBindings = map[string]string{
	"server.addr":                         "SERVER_ADDR",
	"log_level":                           "LOG_LEVEL",
	"log_format":                          "LOG_FORMAT",
	"environment":                         "ENVIRONMENT",
	"test_audio_path":                     "TEST_AUDIO_PATH",
	"transcription.provider":              "TRANSCRIPTION_PROVIDER",
	"transcription.settings.url":          "WHISPER_SERVICE_URL",
	"transcription.settings.asr_path":     "WHISPER_ASR_ENDPOINT",
	"translation.service":                 "TRANSLATION_SERVICE",
	"translation.services.libre.url":      "LIBRE_TRANSLATE_URL",
	"translation.services.libre.api_key":  "LIBRE_TRANSLATE_API_KEY",
	"translation.services.google.api_key": "GOOGLE_TRANSLATE_API_KEY",
	"translation.services.google.url":     "GOOGLE_TRANSLATE_URL",
	"translation.services.deepl.api_key":  "DEEPL_API_KEY",
	"translation.services.deepl.url":      "DEEPL_API_URL",
	"observability.metrics_file":          "METRICS_FILE",
	"privacy.redact_pii":                  "REDACT_PII",
	"session.serialize_audio":             "SERIALIZE_AUDIO",
	"translation.failed_text":             "TRANSLATION_FAILED_TEXT",
}

// deepgramKeyEnv is applied only when deepgram is the selected provider, so
// it never leaks an unknown key into whisper settings.
const deepgramKeyEnv = "DEEPGRAM_API_KEY"

// LoadConfig reads an optional YAML file, a .env file in the working
// directory and the environment. Environment values win over the file.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_upload_bytes", 25<<20)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", true)
	v.SetDefault("transcription.provider", "whisper")
	v.SetDefault("translation.service", "libre")
	v.SetDefault("translation.breaker_threshold", 3)
	v.SetDefault("translation.breaker_cooldown", "30s")
	v.SetDefault("session.default_source_lang", "th")
	v.SetDefault("session.default_target_lang", "en")
	v.SetDefault("session.serialize_audio", false)
	v.SetDefault("session.queue_size", 4)
	v.SetDefault("websocket.path", "/ws/")
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.async_buffer", 1024)
	v.SetDefault("privacy.redact_pii", false)
	v.SetDefault("test_audio_path", "test_audio.webm")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	applyDeepgramKey(&cfg)
	expandEnvStrings(&cfg)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

// TranslationSettings returns the settings for the selected service.
func (c Config) TranslationSettings() map[string]any {
	return c.Translation.Services[normalizeName(c.Translation.Service)]
}

func applyDeepgramKey(cfg *Config) {
	key := strings.TrimSpace(os.Getenv(deepgramKeyEnv))
	if key == "" || normalizeName(cfg.Transcription.Provider) != "deepgram" {
		return
	}
	if cfg.Transcription.Settings == nil {
		cfg.Transcription.Settings = map[string]any{}
	}
	cfg.Transcription.Settings["api_key"] = key
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transcription.Settings = expandSettings(cfg.Transcription.Settings)
	for name, settings := range cfg.Translation.Services {
		cfg.Translation.Services[name] = expandSettings(settings)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.String {
			for i := 0; i < v.Len(); i++ {
				expandValue(v.Index(i))
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(v.MapIndex(key).String())))
			}
		}
	}
}
