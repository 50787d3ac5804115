package stockpulse

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Item is a product to track: a display name and the retailer page that
// shows its availability.
//
// Item is immutable after creation via [NewItem]. The (name, URL) pair is
// the item's identity; the same URL may be tracked under several names.
type Item struct {
	name string
	url  string
}

// Name returns the item's display name.
func (i Item) Name() string {
	return i.name
}

// URL returns the product page URL.
func (i Item) URL() string {
	return i.url
}

// NewItem creates an [Item] with the given name and product URL.
//
// Surrounding whitespace is trimmed from both. The URL must be an absolute
// http or https link.
//
// Example:
//
//	ps5, err := stockpulse.NewItem("PS5", "https://www.amazon.com/dp/B0CL61F39H")
func NewItem(name, rawURL string) (Item, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	if name == "" {
		return Item{}, errors.New("item name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Item{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Item{}, errors.New("URL must have an http:// or https:// scheme")
	}
	if parsedURL.Host == "" {
		return Item{}, errors.New("URL must have a host")
	}

	return Item{name: name, url: rawURL}, nil
}

// ItemStatus is a point-in-time view of a tracked item.
type ItemStatus struct {
	Name     string
	URL      string
	Status   Status
	Previous Status

	// CheckedAt is zero until the first pass has checked the item.
	CheckedAt time.Time
}
