package mock

import (
	"context"
	"sync/atomic"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
)

const TranslatorName = "mock"

var TranslatorSchema = configutil.Schema{Optional: []string{"prefix", "fail_reason"}}

type TranslateConfig struct {
	Prefix string `mapstructure:"prefix"`
	// FailReason forces every call to fail with this reason when set.
	FailReason string `mapstructure:"fail_reason"`
}

// Translator echoes text with a target-language prefix.
type Translator struct {
	cfg   TranslateConfig
	calls atomic.Int64
}

func NewTranslator(cfg TranslateConfig) *Translator {
	return &Translator{cfg: cfg}
}

func (t *Translator) Name() string { return TranslatorName }

func (t *Translator) Translate(_ context.Context, text, _, tgt string) translate.Outcome {
	t.calls.Add(1)
	if t.cfg.FailReason != "" {
		return translate.Failed{Reason: errorsx.ReasonCode(t.cfg.FailReason), Detail: "mock failure"}
	}
	prefix := t.cfg.Prefix
	if prefix == "" {
		prefix = "[" + tgt + "] "
	}
	return translate.Translated{Text: prefix + text}
}

func (t *Translator) Health(context.Context) error { return nil }

// Calls reports how many times Translate ran.
func (t *Translator) Calls() int64 { return t.calls.Load() }

var _ translate.Adapter = (*Translator)(nil)
