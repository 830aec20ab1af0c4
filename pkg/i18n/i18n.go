// Package i18n translates console labels and notifications.
//
// Catalogs are flat JSON objects (key → text). Placeholders are written
// as {{name}} and filled from the params passed to Translate.
// Lookup falls back to English and then to the key itself.
package i18n

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/text/language"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/logger"
)

// Params holds placeholder values for a translation.
type Params map[string]any

// TranslateFunc is a translation bound to one language.
type TranslateFunc func(key string, params Params) string

var (
	SupportedLanguages = []language.Tag{
		language.English,
		language.Spanish,
	}

	matcher = language.NewMatcher(SupportedLanguages)
)

// Bundle stores the catalogs of every loaded language.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
	logger   logger.Logger
}

func NewBundle(log logger.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		logger:   logger.OrNop(log),
	}
}

// LoadMessages parses a catalog and registers it for lang, replacing any
// catalog previously loaded for that language.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: parse catalog %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	b.logger.Debug("i18n catalog loaded", "lang", lang, "keys", len(messages))
	return nil
}

// Translate returns the text for key in lang with params substituted.
func (b *Bundle) Translate(lang, key string, params Params) string {
	return interpolate(b.lookup(lang, key), params)
}

// Func binds the bundle to a language.
func (b *Bundle) Func(lang string) TranslateFunc {
	return func(key string, params Params) string {
		return b.Translate(lang, key, params)
	}
}

// Has reports whether key exists in the catalog of lang, without fallback.
func (b *Bundle) Has(lang, key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.catalogs[lang][key]
	return ok
}

func (b *Bundle) lookup(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if lang != constants.DefaultLocale {
		if msg, ok := b.catalogs[constants.DefaultLocale][key]; ok {
			return msg
		}
	}
	return key
}

func interpolate(template string, params Params) string {
	if len(params) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{{"+name+"}}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Match picks the best supported language for a preference list such as
// an Accept-Language header or a LANG value ("es_ES.UTF-8").
func Match(preferences ...string) string {
	normalized := make([]string, 0, len(preferences))
	for _, p := range preferences {
		if !strings.Contains(p, ";") {
			p, _, _ = strings.Cut(p, ".")
		}
		normalized = append(normalized, strings.ReplaceAll(p, "_", "-"))
	}
	tag, _ := language.MatchStrings(matcher, normalized...)
	base, _ := tag.Base()
	if base.String() == "es" {
		return "es"
	}
	return constants.DefaultLocale
}

// Nop returns the key unchanged with params substituted.
func Nop(key string, params Params) string {
	return interpolate(key, params)
}
