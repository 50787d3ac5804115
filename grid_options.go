package stockpulse

import (
	"errors"
	"fmt"
	"slices"
)

// gridConfig holds configuration during item grid construction.
type gridConfig struct {
	urlTemplate  string
	nameTemplate string
	dimensions   map[string][]string
}

// GridOption configures item grid generation for [NewItemGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the product URL template. Dimension keys are the
// template variables.
//
// Example:
//
//	WithURLTemplate("https://www.amazon.com/dp/{{.asin}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithNameTemplate sets a template for item names, replacing the default
// "Base (v1/v2)" format.
//
// Example:
//
//	WithNameTemplate("Switch OLED {{.color}}")
func WithNameTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("name template cannot be empty")
		}
		cfg.nameTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "asin": {"B0CL61F39H", "B0CL5KNB9M"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if err := validateDimensions(dims); err != nil {
			return err
		}
		cfg.dimensions = dims
		return nil
	}
}

func validateDimensions(dims map[string][]string) error {
	if len(dims) == 0 {
		return errors.New("at least one dimension required")
	}
	for _, k := range sortedKeys(dims) {
		vals := dims[k]
		if len(vals) == 0 {
			return fmt.Errorf("dimension %q has no values", k)
		}
		if i := slices.Index(vals, ""); i >= 0 {
			return fmt.Errorf("dimension %q has an empty value at index %d", k, i)
		}
	}
	return nil
}
