package config

import (
	"fmt"

	"github.com/jpalmerr/stockpulse"
)

// BuildOptions converts parsed configuration into tracker options.
//
// Items and expanded grids become [stockpulse.WithItems]; a non-empty
// retailers list replaces the built-in defaults. Logging and callbacks are
// left to the caller.
func BuildOptions(cfg *Config) ([]stockpulse.Option, error) {
	opts := []stockpulse.Option{stockpulse.WithPort(cfg.Port)}

	if cfg.Title != "" {
		opts = append(opts, stockpulse.WithTitle(cfg.Title))
	}

	if !cfg.State.Disabled {
		opts = append(opts, stockpulse.WithState(cfg.State.Backend, cfg.State.Path))
		switch cfg.State.Autosave {
		case "":
		case "off":
			opts = append(opts, stockpulse.WithAutosave(""))
		default:
			opts = append(opts, stockpulse.WithAutosave(cfg.State.Autosave))
		}
	}

	if cfg.Fetch.Timeout != 0 {
		opts = append(opts, stockpulse.WithFetchTimeout(cfg.Fetch.Timeout.Duration()))
	}
	if cfg.Fetch.PassDelay != nil {
		opts = append(opts, stockpulse.WithPassDelay(cfg.Fetch.PassDelay.Duration()))
	}
	if cfg.Fetch.UserAgent != "" {
		opts = append(opts, stockpulse.WithUserAgent(cfg.Fetch.UserAgent))
	}
	if cfg.Fetch.RespectRobotsTxt {
		opts = append(opts, stockpulse.WithRobotsTxt(true))
	}

	if cfg.Settings != nil {
		opts = append(opts, stockpulse.WithSettings(cfg.Settings.Settings()))
	}

	items, err := BuildItems(cfg)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		opts = append(opts, stockpulse.WithItems(items...))
	}

	retailers, err := BuildRetailers(cfg)
	if err != nil {
		return nil, err
	}
	if len(retailers) > 0 {
		opts = append(opts, stockpulse.WithRetailers(retailers...))
	}

	return append(opts, alertOptions(cfg.Alerts)...), nil
}

// BuildItems converts direct items and grids into SDK Item objects.
// Grid dimensions are expanded via cartesian product.
func BuildItems(cfg *Config) ([]stockpulse.Item, error) {
	var items []stockpulse.Item

	for _, ic := range cfg.Items {
		item, err := stockpulse.NewItem(ic.Name, ic.URL)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", ic.Name, err)
		}
		items = append(items, item)
	}

	for _, gc := range cfg.Grids {
		gridOpts := []stockpulse.GridOption{
			stockpulse.WithURLTemplate(gc.URLTemplate),
			stockpulse.WithDimensions(gc.Dimensions),
		}
		if gc.NameTemplate != "" {
			gridOpts = append(gridOpts, stockpulse.WithNameTemplate(gc.NameTemplate))
		}
		gridItems, err := stockpulse.NewItemGrid(gc.Name, gridOpts...)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", gc.Name, err)
		}
		items = append(items, gridItems...)
	}

	return items, nil
}

// BuildRetailers converts the retailers list. An empty list returns nil so
// the tracker falls back to [stockpulse.DefaultRetailers].
func BuildRetailers(cfg *Config) ([]stockpulse.Retailer, error) {
	retailers := make([]stockpulse.Retailer, 0, len(cfg.Retailers))
	for _, rc := range cfg.Retailers {
		switch rc.Builtin {
		case BuiltinAmazon:
			retailers = append(retailers, stockpulse.Amazon())
			continue
		case BuiltinBestBuy:
			retailers = append(retailers, stockpulse.BestBuy())
			continue
		}

		r, err := stockpulse.NewRetailer(rc.Name, buildExtractor(rc.Extractor), rc.Hosts...)
		if err != nil {
			return nil, fmt.Errorf("retailer %q: %w", rc.Name, err)
		}
		retailers = append(retailers, r)
	}
	if len(retailers) == 0 {
		return nil, nil
	}
	return retailers, nil
}

// buildExtractor converts ExtractorConfig to an Extractor.
// Returns nil for json-ld/empty extractors (SDK uses DefaultExtractor).
func buildExtractor(ec ExtractorConfig) stockpulse.Extractor {
	switch ec.Type {
	case "selector":
		return stockpulse.SelectorExtractor(ec.InStock, ec.OutOfStock)
	case "text":
		return stockpulse.TextExtractor(ec.Selector, ec.InStock, ec.OutOfStock)
	case "contains":
		return stockpulse.ContainsExtractor(ec.InStock, ec.OutOfStock)
	default:
		return nil
	}
}

func alertOptions(ac AlertsConfig) []stockpulse.Option {
	if ac.Disabled {
		return []stockpulse.Option{stockpulse.WithAlertsDisabled()}
	}

	var opts []stockpulse.Option
	if ac.Timeout != 0 {
		opts = append(opts, stockpulse.WithNotifyTimeout(ac.Timeout.Duration()))
	}
	if s := ac.SMTP; s != nil {
		opts = append(opts, stockpulse.WithSMTP(stockpulse.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			From:     s.From,
			TLS:      s.TLS,
			Template: s.Template,
		}))
	}
	if tg := ac.Telegram; tg != nil {
		opts = append(opts, stockpulse.WithTelegram(stockpulse.TelegramConfig{
			Token:  tg.Token,
			ChatID: tg.ChatID,
			APIURL: tg.APIURL,
		}))
	}
	return opts
}
