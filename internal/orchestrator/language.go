package orchestrator

import "strings"

// Language is an ISO 639-1 code offered by the client's language selector.
type Language string

const (
	English    Language = "en"
	French     Language = "fr"
	Spanish    Language = "es"
	German     Language = "de"
	Italian    Language = "it"
	Portuguese Language = "pt"
	Russian    Language = "ru"
	Japanese   Language = "ja"
	Korean     Language = "ko"
	Chinese    Language = "zh"
	Ewe        Language = "ee"
)

var languageNames = map[Language]string{
	English:    "English",
	French:     "French",
	Spanish:    "Spanish",
	German:     "German",
	Italian:    "Italian",
	Portuguese: "Portuguese",
	Russian:    "Russian",
	Japanese:   "Japanese",
	Korean:     "Korean",
	Chinese:    "Chinese",
	Ewe:        "Ewe",
}

// Languages returns the supported languages in selector order.
func Languages() []Language {
	return []Language{English, French, Spanish, German, Italian, Portuguese, Russian, Japanese, Korean, Chinese, Ewe}
}

// Name returns the English display name, or the raw value for unknown codes.
func (l Language) Name() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return string(l)
}

// ParseLanguage accepts a code ("fr") or a display name ("French"),
// case-insensitively. Unknown input is returned verbatim so that free-form
// language names still reach the prompt; empty input means English.
func ParseLanguage(s string) Language {
	s = strings.TrimSpace(s)
	if s == "" {
		return English
	}
	for _, l := range Languages() {
		if strings.EqualFold(s, string(l)) || strings.EqualFold(s, l.Name()) {
			return l
		}
	}
	return Language(s)
}
