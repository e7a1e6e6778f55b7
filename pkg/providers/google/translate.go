// Package google adapts the Cloud Translation v2 REST API.
package google

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
)

const Name = "google"

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
		cfg.URL = "https://translation.googleapis.com/language/translate/v2"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = translate.DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (a *Adapter) Name() string { return Name }

type request struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type response struct {
	Data *struct {
		Translations []struct {
			TranslatedText *string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (a *Adapter) Translate(ctx context.Context, text, src, tgt string) translate.Outcome {
	endpoint := a.cfg.URL + "?" + url.Values{"key": {a.cfg.APIKey}}.Encode()
	req, err := translate.NewJSONRequest(ctx, endpoint, request{Q: text, Source: src, Target: tgt, Format: "text"})
	if err != nil {
		return translate.Failed{Reason: errorsx.ReasonTranslateMisconfigured, Detail: err.Error()}
	}
	body, failed := translate.Do(a.client, req)
	if failed != nil {
		return *failed
	}
	var resp response
	if failed := translate.Decode(body, &resp); failed != nil {
		return *failed
	}
	if resp.Data == nil || len(resp.Data.Translations) == 0 || resp.Data.Translations[0].TranslatedText == nil {
		return *translate.Malformed("missing data.translations[0].translatedText")
	}
	return translate.Translated{Text: html.UnescapeString(*resp.Data.Translations[0].TranslatedText)}
}

func (a *Adapter) Health(ctx context.Context) error {
	endpoint := a.cfg.URL + "/languages?" + url.Values{"key": {a.cfg.APIKey}}.Encode()
	return translate.Check(ctx, a.client, endpoint, nil)
}

var _ translate.Adapter = (*Adapter)(nil)
