package stockpulse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/stockpulse/internal/fetch"
)

// CheckFunc resolves the status of a product URL directly, for retailers
// whose availability comes from an API rather than a product page.
//
// A non-nil error records [StatusFetchError] regardless of the returned status.
type CheckFunc func(ctx context.Context, rawURL string) (Status, error)

// Retailer teaches the tracker how to read availability for a set of hosts.
//
// Retailer is immutable after creation via [NewRetailer] or
// [NewRetailerFunc]. Retailers are consulted in registration order and the
// first whose host patterns match a URL handles it; URLs no retailer matches
// are recorded as [StatusFetchError].
type Retailer struct {
	name      string
	hosts     []string
	extractor Extractor
	check     CheckFunc
}

// Name returns the retailer name used in logs.
func (r Retailer) Name() string {
	return r.name
}

// Hosts returns a copy of the retailer's host patterns.
func (r Retailer) Hosts() []string {
	return append([]string(nil), r.hosts...)
}

// NewRetailer creates a page-reading [Retailer].
//
// Host patterns are case-insensitive globs ("bestbuy.com", "*.bestbuy.com",
// "amazon.*", "{www,m}.target.com"). A nil extractor uses [DefaultExtractor].
//
// Example:
//
//	shop, err := stockpulse.NewRetailer("Game",
//	    stockpulse.TextExtractor(".stock-message", "in stock", "out of stock"),
//	    "game.co.uk", "*.game.co.uk",
//	)
func NewRetailer(name string, extractor Extractor, hostPatterns ...string) (Retailer, error) {
	if err := validateRetailer(name, hostPatterns); err != nil {
		return Retailer{}, err
	}
	if extractor == nil {
		extractor = DefaultExtractor
	}
	return Retailer{name: name, hosts: append([]string(nil), hostPatterns...), extractor: extractor}, nil
}

// NewRetailerFunc creates a [Retailer] backed by a [CheckFunc].
//
// Returns an error if check is nil or any host pattern is invalid.
func NewRetailerFunc(name string, check CheckFunc, hostPatterns ...string) (Retailer, error) {
	if check == nil {
		return Retailer{}, errors.New("retailer check function cannot be nil")
	}
	if err := validateRetailer(name, hostPatterns); err != nil {
		return Retailer{}, err
	}
	return Retailer{name: name, hosts: append([]string(nil), hostPatterns...), check: check}, nil
}

func validateRetailer(name string, hostPatterns []string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("retailer name cannot be empty")
	}
	if len(hostPatterns) == 0 {
		return fmt.Errorf("retailer %q: at least one host pattern is required", name)
	}
	for _, p := range hostPatterns {
		if err := fetch.ValidateHostGlob(p); err != nil {
			return fmt.Errorf("retailer %q: %w", name, err)
		}
	}
	return nil
}

// registration converts the retailer for the fetch dispatcher.
func (r Retailer) registration(client *fetch.Client) fetch.Registration {
	var capability fetch.Capability
	if r.check != nil {
		capability = fetch.CapabilityFunc(r.check)
	} else {
		capability = fetch.NewPageCapability(client, fetch.Extractor(r.extractor))
	}
	return fetch.Registration{
		Name:       r.name,
		Match:      fetch.HostGlob(r.hosts...),
		Capability: capability,
	}
}

// Amazon returns the built-in Amazon retailer, covering every Amazon
// storefront domain.
func Amazon() Retailer {
	return Retailer{
		name:  "amazon",
		hosts: []string{"amazon.*", "*.amazon.*"},
		extractor: FirstMatch(
			TextExtractor("#availability", "in stock", "currently unavailable"),
			SelectorExtractor("#add-to-cart-button", "#outOfStock"),
		),
	}
}

// BestBuy returns the built-in Best Buy retailer (US and Canada).
func BestBuy() Retailer {
	return Retailer{
		name:  "bestbuy",
		hosts: []string{"bestbuy.com", "*.bestbuy.com", "bestbuy.ca", "*.bestbuy.ca"},
		extractor: FirstMatch(
			JSONLDExtractor,
			SelectorExtractor(
				`button.add-to-cart-button[data-button-state="ADD_TO_CART"]`,
				`button.add-to-cart-button[data-button-state="SOLD_OUT"]`,
			),
		),
	}
}

// DefaultRetailers returns the retailers registered when none are
// configured with [WithRetailer].
func DefaultRetailers() []Retailer {
	return []Retailer{Amazon(), BestBuy()}
}
