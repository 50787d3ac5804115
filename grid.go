package stockpulse

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewItemGrid creates one [Item] per combination of dimension values, for
// tracking product variants that share a page layout.
//
// The URL template uses Go's text/template syntax. Dimension values are
// URL-encoded before interpolation. Missing template keys cause an error.
//
// Item names default to "Base Name (v1/v2)", values ordered by sorted key.
// [WithNameTemplate] overrides this; names are not URL-encoded.
//
// Example:
//
//	items, err := stockpulse.NewItemGrid("PS5",
//	    stockpulse.WithURLTemplate("https://www.bestbuy.com/site/{{.sku}}.p"),
//	    stockpulse.WithDimensions(map[string][]string{
//	        "sku": {"6426149", "6430161"},
//	    }),
//	)
//	// 2 items, usable with WithItems(items...)
func NewItemGrid(baseName string, opts ...GridOption) ([]Item, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// missingkey=error fails fast on typos in the template
	urlTmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}
	var nameTmpl *template.Template
	if cfg.nameTemplate != "" {
		nameTmpl, err = template.New("name").Option("missingkey=error").Parse(cfg.nameTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid name template: %w", err)
		}
	}

	combinations := cartesianProduct(cfg.dimensions)
	items := make([]Item, 0, len(combinations))
	for _, combo := range combinations {
		rawURL, err := executeTemplate(urlTmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := formatItemName(baseName, combo)
		if nameTmpl != nil {
			if name, err = executeTemplate(nameTmpl, combo); err != nil {
				return nil, fmt.Errorf("name template execution failed: %w", err)
			}
		}

		item, err := NewItem(name, rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create item '%s': %w", name, err)
		}
		items = append(items, item)
	}

	return items, nil
}

// cartesianProduct expands dims into every combination of values. The last
// sorted key varies fastest, so {"x": [a b], "y": [1 2]} yields
// a/1, a/2, b/1, b/2.
func cartesianProduct(dims map[string][]string) []map[string]string {
	keys := sortedKeys(dims)
	if len(keys) == 0 {
		return nil
	}
	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	if total == 0 {
		return nil
	}

	idx := make([]int, len(keys))
	out := make([]map[string]string, 0, total)
	for n := 0; n < total; n++ {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][idx[i]]
		}
		out = append(out, combo)

		// odometer step
		for i := len(keys) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(dims[keys[i]]) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatItemName creates a name in the format "Base (v1/v2)".
func formatItemName(baseName string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}
