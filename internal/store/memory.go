package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/jpalmerr/stockpulse/internal/stock"
)

// subscriberBuffer is the channel buffer handed out by Subscribe.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Items are kept in a slice to preserve insertion order, with a key index for
// O(1) lookups. Every read returns copies, so a caller can never observe an
// item while another goroutine is half way through updating it.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the poller.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Item
	index map[Key]int

	subMu       sync.RWMutex
	subscribers map[chan Item]struct{}

	now func() time.Time
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:       make(map[Key]int),
		subscribers: make(map[chan Item]struct{}),
		now:         time.Now,
	}
}

// Upsert implements [Store].
func (m *MemoryStore) Upsert(name, url string) bool {
	key := Key{Name: name, URL: url}

	m.mu.Lock()
	if _, exists := m.index[key]; exists {
		m.mu.Unlock()
		return false
	}
	item := Item{
		Name:           name,
		URL:            url,
		Status:         stock.Unknown,
		PreviousStatus: stock.Unknown,
	}
	m.index[key] = len(m.items)
	m.items = append(m.items, item)
	m.mu.Unlock()

	m.notifySubscribers(item)
	return true
}

// Remove implements [Store].
func (m *MemoryStore) Remove(name, url string) {
	key := Key{Name: name, URL: url}

	m.mu.Lock()
	pos, exists := m.index[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	removed := m.items[pos]
	m.items = append(m.items[:pos], m.items[pos+1:]...)
	delete(m.index, key)
	for i := pos; i < len(m.items); i++ {
		m.index[m.items[i].Key()] = i
	}
	m.mu.Unlock()

	removed.Removed = true
	m.notifySubscribers(removed)
}

// Edit implements [Store].
func (m *MemoryStore) Edit(old Key, name, url string) error {
	next := Key{Name: name, URL: url}

	m.mu.Lock()
	pos, exists := m.index[old]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("edit %q: %w", old.Name, ErrNotFound)
	}
	if next == old {
		m.mu.Unlock()
		return nil
	}
	if _, taken := m.index[next]; taken {
		m.mu.Unlock()
		return fmt.Errorf("edit %q: %w", old.Name, ErrDuplicate)
	}

	item := m.items[pos]
	gone := item
	gone.Removed = true
	if item.URL != url {
		// a different page says nothing about the old status
		item.Status = stock.Unknown
		item.PreviousStatus = stock.Unknown
		item.CheckedAt = time.Time{}
	}
	item.Name = name
	item.URL = url
	m.items[pos] = item
	delete(m.index, old)
	m.index[next] = pos
	m.mu.Unlock()

	m.notifySubscribers(gone)
	m.notifySubscribers(item)
	return nil
}

// SetStatus implements [Store].
func (m *MemoryStore) SetStatus(name, url string, status stock.Status) (Transition, bool) {
	key := Key{Name: name, URL: url}

	m.mu.Lock()
	pos, exists := m.index[key]
	if !exists {
		m.mu.Unlock()
		return Transition{}, false
	}
	item := m.items[pos]
	item.PreviousStatus = item.Status
	item.Status = status
	item.CheckedAt = m.now()
	m.items[pos] = item
	m.mu.Unlock()

	m.notifySubscribers(item)

	return Transition{
		Name:     name,
		URL:      url,
		Previous: item.PreviousStatus,
		Current:  item.Status,
	}, true
}

// Get implements [Store].
func (m *MemoryStore) Get(name, url string) (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, exists := m.index[Key{Name: name, URL: url}]
	if !exists {
		return Item{}, false
	}
	return m.items[pos], true
}

// List implements [Store].
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) List() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Item, len(m.items))
	copy(items, m.items)
	return items
}

// Len returns the number of tracked items.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Subscribe implements [Store].
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Item {
	ch := make(chan Item, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe implements [Store].
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Item) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the item to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(item Item) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- item:
		default:
			// subscriber is slow, drop the message
		}
	}
}
