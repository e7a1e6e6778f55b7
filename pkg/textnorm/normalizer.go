// Package textnorm cleans up transcripts before they are translated or sent.
package textnorm

import (
	"regexp"
	"strings"
)

// Normalizer collapses whitespace and applies case-insensitive glossary replacements.
type Normalizer struct {
	rules []rule
}

type rule struct {
	re *regexp.Regexp
	to string
}

// New builds a normalizer. Empty glossary keys are skipped.
func New(glossary map[string]string) *Normalizer {
	n := &Normalizer{}
	for from, to := range glossary {
		from = strings.TrimSpace(from)
		if from == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
		n.rules = append(n.rules, rule{re: re, to: to})
	}
	return n
}

// Normalize returns the cleaned text; blank input yields "".
func (n *Normalizer) Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || n == nil {
		return text
	}
	for _, r := range n.rules {
		text = r.re.ReplaceAllString(text, r.to)
	}
	return text
}
