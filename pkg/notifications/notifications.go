// Package notifications fans critical alerts out to dashboard listeners.
//
// The pipeline publishes alerts as they are raised; API handlers
// subscribe and forward them over SSE. Publishing never blocks: a slow
// listener loses its oldest undelivered alerts rather than stalling a
// request stream.
package notifications

import (
	"context"
	"sync"

	"github.com/kadirpekel/codegate/pkg/models"
)

// subscriberBuffer is how many undelivered alerts a listener may lag
// behind before its oldest are dropped.
const subscriberBuffer = 100

// Broadcaster delivers every published alert to every subscriber.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan models.Alert]struct{}
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan models.Alert]struct{}),
	}
}

// Publish delivers the alert to all current subscribers without
// blocking. A subscriber with a full buffer loses its oldest alert to
// make room for the new one.
func (b *Broadcaster) Publish(alert models.Alert) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for ch := range b.subscribers {
		select {
		case ch <- alert:
			continue
		default:
		}

		// Full buffer: evict the oldest entry. The subscriber may have
		// drained concurrently, so the final send stays non-blocking.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- alert:
		default:
		}
	}
}

// Subscribe registers a listener. The channel closes when ctx is done
// or the broadcaster shuts down.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan models.Alert {
	ch := make(chan models.Alert, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()

	return ch
}

// Close shuts the broadcaster down and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

func (b *Broadcaster) unsubscribe(ch chan models.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}
