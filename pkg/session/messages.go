package session

import "github.com/harunnryd/sabda/pkg/pipeline"

const (
	MsgInvalidJSON     = "Invalid JSON message"
	MsgLanguageUpdated = "Language settings updated"
)

// AudioResult is sent when an audio chunk was transcribed.
type AudioResult struct {
	Text           string `json:"text"`
	TranslatedText string `json:"translated_text"`
	SourceLang     string `json:"source_lang"`
	TargetLang     string `json:"target_lang"`
}

// ErrorReply is sent for any failed frame.
type ErrorReply struct {
	Error      string `json:"error"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
	Details    string `json:"details,omitempty"`
}

// LanguageAck confirms a language update.
type LanguageAck struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// ResultMessage converts a pipeline result into its wire shape.
func ResultMessage(res pipeline.Result) any {
	switch r := res.(type) {
	case pipeline.Success:
		return AudioResult{
			Text:           r.OriginalText,
			TranslatedText: r.TranslatedText,
			SourceLang:     r.Pair.Source,
			TargetLang:     r.Pair.Target,
		}
	case pipeline.Failure:
		return ErrorReply{Error: r.Message, SourceLang: r.Pair.Source, TargetLang: r.Pair.Target}
	default:
		return ErrorReply{Error: "unexpected error: empty pipeline result"}
	}
}
