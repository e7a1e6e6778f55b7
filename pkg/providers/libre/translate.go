// Package libre adapts a LibreTranslate server.
package libre

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
)

const Name = "libre"

// Schema lists the accepted settings keys.
var Schema = configutil.Schema{Optional: []string{"url", "api_key", "timeout"}}

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
		cfg.URL = "http://localhost:5000"
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
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText *string `json:"translatedText"`
}

func (a *Adapter) Translate(ctx context.Context, text, src, tgt string) translate.Outcome {
	req, err := translate.NewJSONRequest(ctx, a.cfg.URL+"/translate", request{
		Q:      text,
		Source: src,
		Target: tgt,
		Format: "text",
		APIKey: a.cfg.APIKey,
	})
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
	if resp.TranslatedText == nil {
		return *translate.Malformed("missing translatedText")
	}
	return translate.Translated{Text: *resp.TranslatedText}
}

func (a *Adapter) Health(ctx context.Context) error {
	return translate.Check(ctx, a.client, a.cfg.URL+"/languages", nil)
}

var _ translate.Adapter = (*Adapter)(nil)
