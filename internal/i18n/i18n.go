// Package i18n resolves user-facing message strings. Catalogs are
// embedded JSON keyed by message id; locale selection follows the
// explicit locale query parameter, then Accept-Language, then the
// configured default.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

//go:embed catalogs/*.json
var catalogFS embed.FS

// Translator maps message ids to localized strings.
type Translator struct {
	catalogs map[string]map[string]string
	tags     []language.Tag
	tagNames []string
	matcher  language.Matcher
	fallback string
}

// New loads the embedded catalogs. fallback names the locale used when
// negotiation fails, e.g. "en_US"; it must exist as a catalog.
func New(fallback string) (*Translator, error) {
	t := &Translator{
		catalogs: make(map[string]map[string]string),
		fallback: fallback,
	}
	entries, err := fs.ReadDir(catalogFS, "catalogs")
	if err != nil {
		return nil, fmt.Errorf("i18n: read catalogs: %w", err)
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		data, err := catalogFS.ReadFile("catalogs/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
		tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
		if err != nil {
			return nil, fmt.Errorf("i18n: catalog name %s: %w", name, err)
		}
		t.catalogs[name] = messages
		t.tags = append(t.tags, tag)
		t.tagNames = append(t.tagNames, name)
	}
	if _, ok := t.catalogs[fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback locale %s has no catalog", fallback)
	}
	t.matcher = language.NewMatcher(t.tags)
	return t, nil
}

// Locales lists the loaded catalog names.
func (t *Translator) Locales() []string {
	return append([]string(nil), t.tagNames...)
}

// Negotiate picks a catalog for the request: the locale query
// parameter wins, then Accept-Language, then the fallback.
func (t *Translator) Negotiate(r *http.Request) string {
	if loc := r.URL.Query().Get("locale"); loc != "" {
		if name, ok := t.match(loc); ok {
			return name
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if prefs, _, err := language.ParseAcceptLanguage(accept); err == nil && len(prefs) > 0 {
			_, idx, conf := t.matcher.Match(prefs...)
			if conf > language.No {
				return t.tagNames[idx]
			}
		}
	}
	return t.fallback
}

func (t *Translator) match(locale string) (string, bool) {
	// Exact catalog name first, e.g. "zh_CN".
	if _, ok := t.catalogs[locale]; ok {
		return locale, true
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "", false
	}
	_, idx, conf := t.matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return t.tagNames[idx], true
}

// Translate returns the message for key in the given locale. Unknown
// locales fall back to the default catalog; unknown keys return the
// key itself so a missing entry is visible rather than silent.
func (t *Translator) Translate(locale, key string) string {
	if msgs, ok := t.catalogs[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msgs, ok := t.catalogs[t.fallback]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	return key
}
