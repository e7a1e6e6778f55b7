// Package deepl adapts the DeepL v2 translate API.
package deepl

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/languages"
)

const Name = "deepl"

var Schema = configutil.Schema{Required: []string{"api_key"}, Optional: []string{"url", "timeout"}}

type Config struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Adapter {
	if cfg.URL == "" {
		cfg.URL = "https://api-free.deepl.com/v2/translate"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = translate.DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (a *Adapter) Name() string { return Name }

type request struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
}

type response struct {
	Translations []struct {
		Text *string `json:"text"`
	} `json:"translations"`
}

func (a *Adapter) Translate(ctx context.Context, text, src, tgt string) translate.Outcome {
	req, err := translate.NewJSONRequest(ctx, a.cfg.URL, request{
		Text:       []string{text},
		SourceLang: strings.ToUpper(languages.Base(src)),
		TargetLang: strings.ToUpper(languages.Base(tgt)),
	})
	if err != nil {
		return translate.Failed{Reason: errorsx.ReasonTranslateMisconfigured, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+a.cfg.APIKey)
	body, failed := translate.Do(a.client, req)
	if failed != nil {
		return *failed
	}
	var resp response
	if failed := translate.Decode(body, &resp); failed != nil {
		return *failed
	}
	if len(resp.Translations) == 0 || resp.Translations[0].Text == nil {
		return *translate.Malformed("missing translations[0].text")
	}
	return translate.Translated{Text: *resp.Translations[0].Text}
}

// Health queries the usage endpoint next to the configured translate URL.
func (a *Adapter) Health(ctx context.Context) error {
	usage := strings.TrimSuffix(strings.TrimRight(a.cfg.URL, "/"), "/translate") + "/usage"
	header := http.Header{"Authorization": {"DeepL-Auth-Key " + a.cfg.APIKey}}
	return translate.Check(ctx, a.client, usage, header)
}

var _ translate.Adapter = (*Adapter)(nil)
