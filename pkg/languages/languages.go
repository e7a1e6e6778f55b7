// Package languages holds the closed set of language codes the gateway accepts.
package languages

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a code/name pair as returned by /supported-languages.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var codes = []string{
	"th", "en", "zh", "ja", "ko", "fr", "de", "es", "it", "ru",
	"pt", "nl", "ar", "hi", "vi", "id", "ms", "tr", "pl", "sv",
}

var (
	index   = make(map[string]struct{}, len(codes))
	catalog = make([]Language, 0, len(codes))
)

func init() {
	namer := display.English.Languages()
	for _, code := range codes {
		index[code] = struct{}{}
		catalog = append(catalog, Language{Code: code, Name: namer.Name(language.MustParse(code))})
	}
}

// Supported returns the supported languages in display order.
func Supported() []Language {
	out := make([]Language, len(catalog))
	copy(out, catalog)
	return out
}

// Codes returns the supported codes sorted alphabetically.
func Codes() []string {
	out := append([]string(nil), codes...)
	sort.Strings(out)
	return out
}

// IsSupported reports whether code is in the supported set.
func IsSupported(code string) bool {
	_, ok := index[code]
	return ok
}

// Base reduces a BCP 47 tag such as "en-US" or "pt_BR" to its base code.
// Unparseable input is lower-cased and returned as is.
func Base(code string) string {
	code = strings.TrimSpace(code)
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
