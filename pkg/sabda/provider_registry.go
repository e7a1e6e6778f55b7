package sabda

import (
	"fmt"
	"sort"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/providers/deepgram"
	"github.com/harunnryd/sabda/pkg/providers/deepl"
	"github.com/harunnryd/sabda/pkg/providers/google"
	"github.com/harunnryd/sabda/pkg/providers/libre"
	"github.com/harunnryd/sabda/pkg/providers/mock"
	"github.com/harunnryd/sabda/pkg/providers/whisper"
)

type TranscriberFactory func(settings map[string]any) (stt.Transcriber, error)
type TranslatorFactory func(settings map[string]any) (translate.Adapter, error)

type transcriberEntry struct {
	schema  configutil.Schema
	factory TranscriberFactory
}

type translatorEntry struct {
	schema  configutil.Schema
	factory TranslatorFactory
	note    string
}

// ProviderRegistry builds backends by name after validating their settings.
type ProviderRegistry struct {
	stt         map[string]transcriberEntry
	translators map[string]translatorEntry
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:         make(map[string]transcriberEntry),
		translators: make(map[string]translatorEntry),
	}
}

// DefaultProviders registers the built-in transcription and translation backends.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterTranscriber(whisper.Name, whisper.Schema, func(settings map[string]any) (stt.Transcriber, error) {
		var cfg whisper.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return whisper.New(cfg), nil
	})
	r.RegisterTranscriber(deepgram.Name, deepgram.Schema, func(settings map[string]any) (stt.Transcriber, error) {
		var cfg deepgram.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return deepgram.New(cfg), nil
	})
	r.RegisterTranslator(libre.Name, libre.Schema, "Free and open source, self-hostable. API key optional.", func(settings map[string]any) (translate.Adapter, error) {
		var cfg libre.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return libre.New(cfg), nil
	})
	r.RegisterTranslator(google.Name, google.Schema, "Google Cloud Translation v2. Requires GOOGLE_TRANSLATE_API_KEY.", func(settings map[string]any) (translate.Adapter, error) {
		var cfg google.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return google.New(cfg), nil
	})
	r.RegisterTranslator(deepl.Name, deepl.Schema, "DeepL API (free or pro endpoint). Requires DEEPL_API_KEY.", func(settings map[string]any) (translate.Adapter, error) {
		var cfg deepl.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return deepl.New(cfg), nil
	})
	return r
}

// RegisterMockProviders adds the scripted backends used for local runs.
// They are not listed as supported translation services.
func RegisterMockProviders(r *ProviderRegistry) {
	r.RegisterTranscriber(mock.TranscriberName, mock.TranscriberSchema, func(settings map[string]any) (stt.Transcriber, error) {
		var cfg mock.STTConfig
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		return mock.NewTranscriber(cfg), nil
	})
	r.translators[mock.TranslatorName] = translatorEntry{
		schema: mock.TranslatorSchema,
		factory: func(settings map[string]any) (translate.Adapter, error) {
			var cfg mock.TranslateConfig
			if err := configutil.DecodeSettings(settings, &cfg); err != nil {
				return nil, err
			}
			return mock.NewTranslator(cfg), nil
		},
	}
}

func (r *ProviderRegistry) RegisterTranscriber(name string, schema configutil.Schema, factory TranscriberFactory) {
	r.stt[normalizeName(name)] = transcriberEntry{schema: schema, factory: factory}
}

func (r *ProviderRegistry) RegisterTranslator(name string, schema configutil.Schema, note string, factory TranslatorFactory) {
	r.translators[normalizeName(name)] = translatorEntry{schema: schema, factory: factory, note: note}
}

func (r *ProviderRegistry) BuildTranscriber(name string, settings map[string]any) (stt.Transcriber, error) {
	entry, ok := r.stt[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("transcription provider not registered: %s", name)
	}
	if err := configutil.ValidateSettings(settings, entry.schema); err != nil {
		return nil, fmt.Errorf("transcription.settings (%s): %w", name, err)
	}
	return entry.factory(settings)
}

func (r *ProviderRegistry) BuildTranslator(name string, settings map[string]any) (translate.Adapter, error) {
	entry, ok := r.translators[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported translation service: %q", name)
	}
	if err := configutil.ValidateSettings(settings, entry.schema); err != nil {
		return nil, fmt.Errorf("translation service %s is misconfigured: %w", name, err)
	}
	return entry.factory(settings)
}

// TranslationServices returns the advertised service ids in sorted order.
func (r *ProviderRegistry) TranslationServices() []string {
	var out []string
	for name, entry := range r.translators {
		if entry.note != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// TranslationNotes returns a human-readable note per advertised service.
func (r *ProviderRegistry) TranslationNotes() map[string]string {
	out := make(map[string]string)
	for name, entry := range r.translators {
		if entry.note != "" {
			out[name] = entry.note
		}
	}
	return out
}
