package alert

import (
	"context"
	"sync"
)

const feedBufferSize = 16

// Feed is a [Notifier] that republishes alerts to in-process subscribers,
// such as dashboard SSE connections.
//
// Delivery is non-blocking: a subscriber that is not keeping up misses alerts.
type Feed struct {
	mu   sync.Mutex
	subs map[chan Alert]struct{}
}

// NewFeed creates an empty [Feed].
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Alert]struct{})}
}

// Name implements [Notifier].
func (f *Feed) Name() string { return "dashboard" }

// Notify implements [Notifier].
func (f *Feed) Notify(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- a:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives every alert published after the
// call. Call [Feed.Unsubscribe] to release it.
func (f *Feed) Subscribe() <-chan Alert {
	ch := make(chan Alert, feedBufferSize)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (f *Feed) Unsubscribe(ch <-chan Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub == ch {
			delete(f.subs, sub)
			close(sub)
			return
		}
	}
}
