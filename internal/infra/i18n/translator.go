package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const baseLang = "en"

// Translator renders the playground's notices and system prompt in one
// language. Keys the language lacks come from English; keys neither has are
// returned as is so a gap shows up in the UI instead of an empty string.
type Translator struct {
	lang     string
	msgs     map[string]string
	fallback map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys. A regional tag such as
// "fa-IR" falls back to "fa" when no regional file exists.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	msgs, err := loadCatalog(fsys, lang)
	if err != nil {
		base, _, regional := strings.Cut(lang, "-")
		if !regional {
			return nil, err
		}
		if msgs, err = loadCatalog(fsys, base); err != nil {
			return nil, err
		}
		lang = base
	}
	t := &Translator{lang: lang, msgs: msgs}
	if lang != baseLang {
		if en, err := loadCatalog(fsys, baseLang); err == nil {
			t.fallback = en
		}
	}
	return t, nil
}

func loadCatalog(fsys fs.FS, lang string) (map[string]string, error) {
	name := "locales/" + lang + ".yaml"
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", name, err)
	}
	return decodeCatalog(data)
}

func decodeCatalog(data []byte) (map[string]string, error) {
	var msgs map[string]string
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("i18n: decode catalog: %w", err)
	}
	return msgs, nil
}

// Lang is the language actually loaded.
func (t *Translator) Lang() string { return t.lang }

// Missing lists keys English defines that this language does not, sorted.
func (t *Translator) Missing() []string {
	var out []string
	for k := range t.fallback {
		if _, ok := t.msgs[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// T formats the message for key with args.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.msgs[key]
	if !ok {
		if format, ok = t.fallback[key]; !ok {
			return key
		}
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
