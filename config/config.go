// Package config provides YAML configuration parsing for StockPulse.
//
// This package enables running StockPulse as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//
//	state:
//	  backend: sqlite
//	  path: /var/lib/stockpulse/state.db
//
//	settings:
//	  interval_seconds: 120
//	  email_alerts: true
//	  email_address: me@example.com
//
//	items:
//	  - name: PS5 Slim
//	    url: https://www.amazon.com/dp/B0CL5KNB9M
//
//	grids:
//	  - name: Switch OLED
//	    url_template: "https://www.bestbuy.com/site/{{.sku}}.p"
//	    dimensions:
//	      sku: ["6470923", "6470924"]
//
//	retailers:
//	  - builtin: amazon
//	  - name: game
//	    hosts: ["*.game.co.uk"]
//	    extractor: "text:.stock-status|in stock|out of stock"
//
//	alerts:
//	  smtp:
//	    host: smtp.example.com
//	    port: 587
//	    username: stockpulse
//	    password: ${SMTP_PASSWORD}
//	    from: stockpulse@example.com
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/stockpulse/internal/fetch"
	"github.com/jpalmerr/stockpulse/internal/notify"
	"github.com/jpalmerr/stockpulse/internal/settings"
	"github.com/jpalmerr/stockpulse/internal/state"
)

const (
	defaultPort      = 8080
	defaultStatePath = "stockpulse-state.yaml"

	// minFetchTimeout keeps a misconfigured timeout from turning every
	// check into a fetch error.
	minFetchTimeout = 500 * time.Millisecond
)

// Built-in retailer names accepted by the builtin field.
const (
	BuiltinAmazon  = "amazon"
	BuiltinBestBuy = "bestbuy"
)

// Config is the root configuration structure for StockPulse.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "StockPulse" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	State StateConfig `yaml:"state"`
	Fetch FetchConfig `yaml:"fetch"`

	// Settings seeds the user settings on a fresh install. Once state has
	// been saved the saved settings win; a running service still picks up
	// edits to this block through [Watch].
	Settings *SettingsConfig `yaml:"settings"`

	Items     []ItemConfig     `yaml:"items"`
	Grids     []GridConfig     `yaml:"grids"`
	Retailers []RetailerConfig `yaml:"retailers"`
	Alerts    AlertsConfig     `yaml:"alerts"`
}

// StateConfig selects where tracked items and settings are kept.
type StateConfig struct {
	// Backend is "file" (YAML, the default) or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the state file or database. Defaults to
	// "stockpulse-state.yaml". Set disabled to run without persistence.
	Path string `yaml:"path"`

	Disabled bool `yaml:"disabled"`

	// Autosave is a cron schedule such as "@every 5m". Empty uses the
	// default; "off" disables periodic saves.
	Autosave string `yaml:"autosave"`
}

// FetchConfig tunes how retailer pages are fetched.
type FetchConfig struct {
	// Timeout bounds a single status check. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// PassDelay is the pause between fetches within a pass. Defaults to
	// 1s; "0s" disables pacing.
	PassDelay *Duration `yaml:"pass_delay"`

	UserAgent        string `yaml:"user_agent"`
	RespectRobotsTxt bool   `yaml:"respect_robots_txt"`
}

// SettingsConfig is the settings block. Fields mirror the dashboard's
// settings form.
type SettingsConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	EmailAlerts     bool   `yaml:"email_alerts"`
	EmailAddress    string `yaml:"email_address"`
}

// Settings converts the block to validated user settings.
func (s SettingsConfig) Settings() settings.Settings {
	return settings.Settings{
		IntervalSeconds: s.IntervalSeconds,
		EmailAlerts:     s.EmailAlerts,
		EmailAddress:    s.EmailAddress,
	}.Normalize()
}

// ItemConfig defines a single tracked item.
type ItemConfig struct {
	// Name is the display name shown in the dashboard.
	Name string `yaml:"name"`

	// URL is the product page.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`
}

// GridConfig defines a family of items that expands via cartesian product.
//
// For example, with dimensions {color: [white, neon]} and a URL template
// using {{.color}}, the grid expands to 2 items.
type GridConfig struct {
	// Name is the base name for generated items.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating product URLs.
	// Dimension keys are available as template variables: {{.color}}
	URLTemplate string `yaml:"url_template"`

	// NameTemplate optionally replaces the generated "Name (v1/v2)" names.
	NameTemplate string `yaml:"name_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`
}

// RetailerConfig is either a built-in retailer or a custom one.
//
// A non-empty retailers list replaces the built-in defaults; list
// "builtin: amazon" to keep one alongside custom retailers.
type RetailerConfig struct {
	// Builtin names a built-in retailer: "amazon" or "bestbuy".
	Builtin string `yaml:"builtin"`

	Name string `yaml:"name"`

	// Hosts are glob patterns such as "game.co.uk" or "*.game.co.uk".
	Hosts []string `yaml:"hosts"`

	// Extractor determines how a page is read. Defaults to json-ld.
	Extractor ExtractorConfig `yaml:"extractor"`
}

// ExtractorConfig specifies how to read a stock status from a page.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json-ld
//	extractor: "selector:#add-to-cart|#sold-out"
//	extractor: "text:#availability|in stock|unavailable"
//	extractor: "contains:add to basket|out of stock"
//
// Structured object:
//
//	extractor:
//	  type: text
//	  selector: "#availability"
//	  in_stock: in stock
//	  out_of_stock: currently unavailable
type ExtractorConfig struct {
	// Type is the extractor type: "json-ld", "selector", "text", "contains".
	Type string

	// Selector is the CSS selector read by the text extractor.
	Selector string

	// InStock and OutOfStock are selectors (selector type) or phrases
	// (text and contains types).
	InStock    string
	OutOfStock string
}

// AlertsConfig configures alert destinations beyond the dashboard and log.
type AlertsConfig struct {
	// Disabled turns off every destination except the log.
	Disabled bool `yaml:"disabled"`

	// Timeout bounds each notifier. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	SMTP     *SMTPConfig     `yaml:"smtp"`
	Telegram *TelegramConfig `yaml:"telegram"`
}

// SMTPConfig configures the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`

	// Password supports environment variable substitution.
	Password string `yaml:"password"`
	From     string `yaml:"from"`

	// TLS is "mandatory", "opportunistic" (default) or "none".
	TLS string `yaml:"tls"`

	// Template optionally replaces the built-in HTML email body.
	Template string `yaml:"template"`
}

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	// Token supports environment variable substitution.
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
	APIURL string `yaml:"api_url"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type       string `yaml:"type"`
			Selector   string `yaml:"selector"`
			InStock    string `yaml:"in_stock"`
			OutOfStock string `yaml:"out_of_stock"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Selector = raw.Selector
		e.InStock = raw.InStock
		e.OutOfStock = raw.OutOfStock
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "json-ld" → schema.org availability
//   - "selector:in|out" → which selector matches
//   - "text:selector|in|out" → phrase in the selected element's text
//   - "contains:in|out" → phrase anywhere in the visible page text
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	kind, value, found := strings.Cut(s, ":")
	if !found {
		if s != "json-ld" {
			return fmt.Errorf("unknown extractor %q (expected 'json-ld', 'selector:in|out', 'text:sel|in|out' or 'contains:in|out')", s)
		}
		e.Type = s
		return nil
	}

	parts := strings.Split(value, "|")
	e.Type = kind
	switch kind {
	case "selector", "contains":
		if len(parts) != 2 {
			return fmt.Errorf("extractor %q: expected %s:in|out", s, kind)
		}
		e.InStock, e.OutOfStock = parts[0], parts[1]
	case "text":
		if len(parts) != 3 {
			return fmt.Errorf("extractor %q: expected text:selector|in|out", s)
		}
		e.Selector, e.InStock, e.OutOfStock = parts[0], parts[1], parts[2]
	default:
		return fmt.Errorf("unknown extractor type %q", kind)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in item URLs, grid URL templates, the
// state path and notifier secrets. Validation failures are returned as
// [*settings.ConfigError] naming the offending field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = "file"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaultStatePath
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func fieldError(field, format string, args ...any) error {
	return &settings.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fieldError("port", "must be between 1 and 65535, got %d", c.Port)
	}

	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}

	if c.Settings != nil {
		if err := c.Settings.Settings().Validate(); err != nil {
			return prefixField("settings", err)
		}
	}

	seen := make(map[[2]string]bool, len(c.Items))
	for i := range c.Items {
		it := &c.Items[i]
		field := fmt.Sprintf("items[%d]", i)

		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return fieldError(field+".name", "is required")
		}
		expanded, err := expandEnvVars(strings.TrimSpace(it.URL))
		if err != nil {
			return fieldError(field+".url", "%v", err)
		}
		it.URL = expanded
		if err := validateURL(it.URL); err != nil {
			return fieldError(field+".url", "%v", err)
		}

		key := [2]string{it.Name, it.URL}
		if seen[key] {
			return fieldError(field, "duplicate item %q", it.Name)
		}
		seen[key] = true
	}

	for i := range c.Grids {
		if err := c.Grids[i].validate(fmt.Sprintf("grids[%d]", i)); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(c.Retailers))
	for i := range c.Retailers {
		r := &c.Retailers[i]
		field := fmt.Sprintf("retailers[%d]", i)
		if err := r.validate(field); err != nil {
			return err
		}
		name := r.Name
		if r.Builtin != "" {
			name = r.Builtin
		}
		if names[name] {
			return fieldError(field, "duplicate retailer %q", name)
		}
		names[name] = true
	}

	return c.Alerts.validate()
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "file", "sqlite":
	default:
		return fieldError("state.backend", "must be file or sqlite, got %q", c.State.Backend)
	}

	expanded, err := expandEnvVars(c.State.Path)
	if err != nil {
		return fieldError("state.path", "%v", err)
	}
	c.State.Path = expanded

	if c.State.Autosave != "" && c.State.Autosave != "off" {
		if err := state.ValidateSchedule(c.State.Autosave); err != nil {
			return fieldError("state.autosave", "%v", err)
		}
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Timeout != 0 && c.Fetch.Timeout.Duration() < minFetchTimeout {
		return fieldError("fetch.timeout", "must be at least %s, got %s", minFetchTimeout, c.Fetch.Timeout.Duration())
	}
	if c.Fetch.PassDelay != nil && c.Fetch.PassDelay.Duration() < 0 {
		return fieldError("fetch.pass_delay", "cannot be negative, got %s", c.Fetch.PassDelay.Duration())
	}
	return nil
}

func (g *GridConfig) validate(field string) error {
	if strings.TrimSpace(g.Name) == "" {
		return fieldError(field+".name", "is required")
	}

	if g.URLTemplate == "" {
		return fieldError(field+".url_template", "is required")
	}
	expanded, err := expandEnvVars(g.URLTemplate)
	if err != nil {
		return fieldError(field+".url_template", "%v", err)
	}
	g.URLTemplate = expanded

	// fail fast before the builder tries to use an invalid template
	if _, err := template.New("").Parse(g.URLTemplate); err != nil {
		return fieldError(field+".url_template", "invalid template: %v", err)
	}
	if g.NameTemplate != "" {
		if _, err := template.New("").Parse(g.NameTemplate); err != nil {
			return fieldError(field+".name_template", "invalid template: %v", err)
		}
	}

	if len(g.Dimensions) == 0 {
		return fieldError(field+".dimensions", "at least one dimension is required")
	}
	for dim, values := range g.Dimensions {
		if len(values) == 0 {
			return fieldError(field+".dimensions", "dimension %q has no values", dim)
		}
		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			if _, ok := seen[v]; ok {
				return fieldError(field+".dimensions", "dimension %q has duplicate value %q", dim, v)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

func (r *RetailerConfig) validate(field string) error {
	if r.Builtin != "" {
		switch r.Builtin {
		case BuiltinAmazon, BuiltinBestBuy:
		default:
			return fieldError(field+".builtin", "unknown built-in retailer %q", r.Builtin)
		}
		if r.Name != "" || len(r.Hosts) > 0 || r.Extractor.Type != "" {
			return fieldError(field, "builtin cannot be combined with name, hosts or extractor")
		}
		return nil
	}

	if strings.TrimSpace(r.Name) == "" {
		return fieldError(field+".name", "is required")
	}
	if len(r.Hosts) == 0 {
		return fieldError(field+".hosts", "at least one host pattern is required")
	}
	for _, h := range r.Hosts {
		if err := fetch.ValidateHostGlob(h); err != nil {
			return fieldError(field+".hosts", "%v", err)
		}
	}
	return r.Extractor.validate(field + ".extractor")
}

func (e *ExtractorConfig) validate(field string) error {
	switch e.Type {
	case "", "json-ld":
	case "selector", "contains":
		if e.InStock == "" {
			return fieldError(field, "%s extractor requires in_stock", e.Type)
		}
	case "text":
		if e.Selector == "" || e.InStock == "" {
			return fieldError(field, "text extractor requires selector and in_stock")
		}
	default:
		return fieldError(field, "unknown extractor type %q", e.Type)
	}
	return nil
}

func (a *AlertsConfig) validate() error {
	if a.Timeout != 0 && a.Timeout.Duration() <= 0 {
		return fieldError("alerts.timeout", "must be positive, got %s", a.Timeout.Duration())
	}

	if s := a.SMTP; s != nil {
		pw, err := expandEnvVars(s.Password)
		if err != nil {
			return fieldError("alerts.smtp.password", "%v", err)
		}
		s.Password = pw
		if strings.TrimSpace(s.Host) == "" {
			return fieldError("alerts.smtp.host", "is required")
		}
		if strings.TrimSpace(s.From) == "" {
			return fieldError("alerts.smtp.from", "is required")
		}
		switch s.TLS {
		case "", notify.TLSMandatory, notify.TLSOpportunistic, notify.TLSNone:
		default:
			return fieldError("alerts.smtp.tls", "must be mandatory, opportunistic or none, got %q", s.TLS)
		}
	}

	if tg := a.Telegram; tg != nil {
		token, err := expandEnvVars(tg.Token)
		if err != nil {
			return fieldError("alerts.telegram.token", "%v", err)
		}
		tg.Token = token
		if strings.TrimSpace(tg.Token) == "" {
			return fieldError("alerts.telegram.token", "is required")
		}
		if tg.ChatID == 0 {
			return fieldError("alerts.telegram.chat_id", "is required")
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

// prefixField qualifies a settings error with the block it came from.
func prefixField(prefix string, err error) error {
	var ce *settings.ConfigError
	if errors.As(err, &ce) {
		return &settings.ConfigError{Field: prefix + "." + ce.Field, Reason: ce.Reason}
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
