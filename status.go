package stockpulse

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/stockpulse/internal/stock"
)

// Status is the availability of a tracked item.
//
// Status is a string type holding one of four values: [StatusUnknown],
// [StatusInStock], [StatusOutOfStock] or [StatusFetchError].
type Status = stock.Status

const (
	// StatusUnknown is the status of an item that has not been checked yet.
	StatusUnknown = stock.Unknown

	// StatusInStock means the retailer page offers the item for purchase.
	StatusInStock = stock.InStock

	// StatusOutOfStock means the page was read and the item is unavailable.
	StatusOutOfStock = stock.OutOfStock

	// StatusFetchError means the page could not be fetched or interpreted,
	// or no retailer is registered for the URL's host.
	StatusFetchError = stock.FetchError
)

// Extractor decides the [Status] of an item from its parsed product page.
//
// Parameters:
//   - doc: the page parsed by goquery
//   - statusCode: the HTTP status code, always 2xx; other codes never reach
//     an extractor
//
// An extractor that cannot decide returns [StatusUnknown], which the tracker
// records as [StatusFetchError]. Extractors are called within a panic
// recovery boundary.
//
// Built-in extractors: [SelectorExtractor], [TextExtractor],
// [ContainsExtractor], [JSONLDExtractor] and [FirstMatch] for composition.
type Extractor func(doc *goquery.Document, statusCode int) Status

// StatusChange describes one status update made by a pass.
//
// StatusChange is passed to callbacks registered with [WithStatusCallback].
type StatusChange struct {
	// Name is the item name.
	Name string

	// URL is the product page that was checked.
	URL string

	// Previous is the status before this update.
	Previous Status

	// Current is the status just recorded.
	Current Status

	// CheckedAt is when the update was recorded.
	CheckedAt time.Time
}

// Restocked reports whether this change should raise a restock alert.
func (c StatusChange) Restocked() bool {
	return c.Previous != StatusInStock && c.Current == StatusInStock
}
