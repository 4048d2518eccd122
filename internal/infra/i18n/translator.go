package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const DefaultLanguage = "en"

type Translator struct {
	lang         string
	translations map[string]string
	fallback     map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys. Keys missing from
// that file fall back to the default language.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	if langCode == "" {
		langCode = DefaultLanguage
	}
	primary, err := readLocale(fsys, langCode)
	if err != nil {
		return nil, err
	}
	t := &Translator{lang: langCode, translations: primary}
	if langCode != DefaultLanguage {
		if fb, err := readLocale(fsys, DefaultLanguage); err == nil {
			t.fallback = fb
		}
	}
	return t, nil
}

func readLocale(fsys fs.FS, langCode string) (map[string]string, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return parseTranslations(data)
}

func parseTranslations(data []byte) (map[string]string, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	if translations == nil {
		translations = map[string]string{}
	}
	return translations, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	translations, err := parseTranslations(data)
	if err != nil {
		return nil, err
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) Language() string { return t.lang }

// T returns the translation for key, formatting args when given. Unknown
// keys come back unchanged.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		if format, ok = t.fallback[key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
