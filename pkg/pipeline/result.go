package pipeline

import "github.com/harunnryd/sabda/pkg/errorsx"

// LanguagePair is the source and target language captured when a call starts.
type LanguagePair struct {
	Source string
	Target string
}

// Same reports whether translation is a no-op for this pair.
func (p LanguagePair) Same() bool { return p.Source == p.Target }

// Result is a closed union: Success or Failure.
type Result interface {
	result()
	LanguagePair() LanguagePair
}

// Success carries the transcript and its translation. TranslatedText holds
// the configured failure marker when translation degraded.
type Success struct {
	OriginalText   string
	TranslatedText string
	Pair           LanguagePair
}

// Failure carries a human-readable message and the reason behind it.
type Failure struct {
	Message string
	Reason  errorsx.ReasonCode
	Pair    LanguagePair
}

func (Success) result() {}
func (Failure) result() {}

func (s Success) LanguagePair() LanguagePair { return s.Pair }
func (f Failure) LanguagePair() LanguagePair { return f.Pair }
