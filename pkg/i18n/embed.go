package i18n

import (
	"embed"
	"fmt"

	"github.com/cesarabad/muffinmanager/pkg/logger"
)

//go:embed locales/*.json
var localeFS embed.FS

// Languages lists the embedded catalogs.
var Languages = []string{"en", "es"}

// Default returns a bundle with every embedded catalog loaded.
func Default() (*Bundle, error) {
	return Load(nil)
}

// Load is Default with a logger for catalog diagnostics.
func Load(log logger.Logger) (*Bundle, error) {
	b := NewBundle(log)
	for _, lang := range Languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", path, err)
		}
		if err := b.LoadMessages(lang, data); err != nil {
			return nil, err
		}
	}
	return b, nil
}
