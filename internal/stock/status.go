// Package stock defines the availability status shared by every stockpulse
// component.
//
// It lives in its own package so that the store, the fetch dispatcher, the
// poller and the alert coordinator can agree on one type without importing
// each other or the root stockpulse package.
package stock

import "strings"

// Status is the normalized availability of a tracked item.
type Status string

const (
	// Unknown is the initial status of a newly tracked item.
	Unknown Status = "unknown"

	// InStock means the retailer page offers the item for purchase.
	InStock Status = "in_stock"

	// OutOfStock means the retailer page was read and the item is unavailable.
	OutOfStock Status = "out_of_stock"

	// FetchError means the page could not be fetched or interpreted, or no
	// capability is registered for the retailer.
	FetchError Status = "fetch_error"
)

// String returns the wire representation of the status.
func (s Status) String() string {
	return string(s)
}

// Label returns the human readable form used by notifications and the dashboard.
func (s Status) Label() string {
	switch s {
	case InStock:
		return "In Stock"
	case OutOfStock:
		return "Out of Stock"
	case FetchError:
		return "Fetch Error"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case Unknown, InStock, OutOfStock, FetchError:
		return true
	}
	return false
}

// Parse maps a wire value or a label back to a Status.
// Unrecognised input yields Unknown.
func Parse(s string) Status {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Status(norm) {
	case InStock, OutOfStock, FetchError:
		return Status(norm)
	}
	return Unknown
}
