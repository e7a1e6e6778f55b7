package translate

import (
	"context"

	"github.com/harunnryd/sabda/pkg/errorsx"
)

// Adapter is one machine-translation backend. Implementations keep their
// request and response field names private and report every failure as a
// Failed outcome instead of an error.
type Adapter interface {
	// Name returns the service id (libre, google, deepl, ...).
	Name() string
	// Translate converts text from src to tgt.
	Translate(ctx context.Context, text, src, tgt string) Outcome
	// Health reports whether the backend is reachable with the configured credentials.
	Health(ctx context.Context) error
}

// Outcome is a closed union: Translated, Skipped or Failed.
type Outcome interface {
	outcome()
}

// Translated carries the translated text.
type Translated struct {
	Text string
}

// SkipReason explains why no translation was attempted.
type SkipReason string

const SkipSameLanguage SkipReason = "same_language"

// Skipped means the backend was deliberately not called.
type Skipped struct {
	Reason SkipReason
}

// Failed carries a machine-readable reason and a diagnostic detail for logs.
type Failed struct {
	Reason errorsx.ReasonCode
	Detail string
}

func (Translated) outcome() {}
func (Skipped) outcome()    {}
func (Failed) outcome()     {}

func (f Failed) Error() string {
	if f.Detail == "" {
		return string(f.Reason)
	}
	return string(f.Reason) + ": " + f.Detail
}
