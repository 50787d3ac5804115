package store

import (
	"errors"
	"time"

	"github.com/jpalmerr/stockpulse/internal/stock"
)

var (
	// ErrNotFound is returned by [Store.Edit] when the original key is not tracked.
	ErrNotFound = errors.New("item not found")

	// ErrDuplicate is returned by [Store.Edit] when the new key already belongs
	// to another item.
	ErrDuplicate = errors.New("item already tracked")
)

// Key identifies a tracked item. Two items are the same item iff both the
// name and the URL match.
type Key struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Item is a snapshot of a tracked item as held by the store.
type Item struct {
	// Name is the user supplied display name.
	Name string `json:"name"`

	// URL is the retailer product page.
	URL string `json:"url"`

	// Status is the most recently recorded availability.
	Status stock.Status `json:"status"`

	// PreviousStatus is the availability immediately before Status was recorded.
	PreviousStatus stock.Status `json:"previous_status"`

	// CheckedAt is when Status was last recorded. Zero until the first pass.
	CheckedAt time.Time `json:"checked_at"`

	// Removed is set only on items sent to subscribers, when the item has
	// left the store (deleted, or renamed by Edit).
	Removed bool `json:"removed,omitempty"`
}

// Key returns the identity key of the item.
func (i Item) Key() Key {
	return Key{Name: i.Name, URL: i.URL}
}

// Transition is the outcome of a single [Store.SetStatus] call.
type Transition struct {
	Name     string
	URL      string
	Previous stock.Status
	Current  stock.Status
}

// Restocked reports whether the transition entered InStock from any other status.
func (t Transition) Restocked() bool {
	return t.Previous != stock.InStock && t.Current == stock.InStock
}

// Store defines the tracked item storage used by the poller, the alert
// coordinator and the dashboard.
//
// Implementations must be safe for concurrent access. Callers never need
// external locking.
type Store interface {
	// Upsert tracks a new item with Unknown status and returns true.
	// If the key is already tracked the call is a no-op and returns false.
	Upsert(name, url string) bool

	// Remove stops tracking an item. Removing an unknown key is a no-op.
	Remove(name, url string)

	// Edit renames an item in place, keeping its list position.
	// Statuses are reset to Unknown when the URL changes.
	Edit(old Key, name, url string) error

	// SetStatus records a new status, moving the current status into
	// PreviousStatus within the same critical section. It returns false when
	// the key is no longer tracked.
	SetStatus(name, url string, status stock.Status) (Transition, bool)

	// Get returns a snapshot of a single item.
	Get(name, url string) (Item, bool)

	// List returns a snapshot of all items in insertion order.
	List() []Item

	// Subscribe returns a channel that receives every item change, including
	// removals marked with [Item.Removed]. Slow consumers may miss updates.
	Subscribe() <-chan Item

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan Item)
}
