package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

//go:embed locales/*.json
var locales embed.FS

var DefaultLang = "en"

var Languages = []string{"en", "ko"}

// Translator resolves message keys per language with English fallback.
type Translator struct {
	translations map[string]map[string]string
}

// Load reads the embedded locale files.
func Load() (*Translator, error) {
	tr := &Translator{translations: make(map[string]map[string]string)}
	for _, lang := range Languages {
		data, err := locales.ReadFile(fmt.Sprintf("locales/%s.json", lang))
		if err != nil {
			return nil, err
		}
		var t map[string]string
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s locale: %w", lang, err)
		}
		tr.translations[lang] = t
	}
	return tr, nil
}

func (tr *Translator) T(lang, key string) string {
	if t, ok := tr.translations[lang]; ok {
		if val, ok := t[key]; ok {
			return val
		}
	}
	// Fallback to English
	if lang != DefaultLang {
		return tr.T(DefaultLang, key)
	}
	return key
}

// DetectLanguage picks the first Accept-Language entry we have a locale
// for.
func (tr *Translator) DetectLanguage(r *http.Request) string {
	accept := r.Header.Get("Accept-Language")
	if accept != "" {
		// Example: ko-KR, ko;q=0.9, en;q=0.8
		for _, part := range strings.Split(accept, ",") {
			lang := strings.TrimSpace(strings.Split(part, ";")[0])
			if len(lang) >= 2 {
				lang = strings.ToLower(lang[:2])
				if _, ok := tr.translations[lang]; ok {
					return lang
				}
			}
		}
	}
	return DefaultLang
}
