// Package diag is the in-process warning broker, adapted from the
// teacher's cluster event broker (pkg/events): same subscriber-channel
// fan-out, repurposed from lifecycle events ("node joined", "service
// created") to the composition-time warnings the error-handling design
// calls for — warnings are not errors and never abort a composition.
package diag

import (
	"fmt"
	"sync"
	"time"
)

// WarnKind classifies a warning; the three kinds named by the
// error-handling design each have a constant here.
type WarnKind string

const (
	WarnLeftoverXattr         WarnKind = "leftover-ostreemeta-xattr"
	WarnSpecialFileSkipped    WarnKind = "special-file-skipped"
	WarnPackageAlreadyLayered WarnKind = "package-already-layered"
)

// Warning is one diagnostic emitted during composition.
type Warning struct {
	Kind      WarnKind
	Timestamp time.Time
	Message   string
}

// Subscriber is a channel that receives warnings.
type Subscriber chan *Warning

// Broker manages warning subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	warnCh      chan *Warning
	stopCh      chan struct{}
}

// NewBroker creates a new warning broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		warnCh:      make(chan *Warning, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes a warning to all subscribers.
func (b *Broker) Publish(w *Warning) {
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now()
	}

	select {
	case b.warnCh <- w:
	case <-b.stopCh:
	}
}

// Warnf is a convenience wrapper that builds and publishes a Warning. If
// b is nil, the warning is silently dropped — normalization and
// encapsulation helpers accept a nil broker so they can run without one.
func (b *Broker) Warnf(kind WarnKind, format string, args ...any) {
	if b == nil {
		return
	}
	b.Publish(&Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func (b *Broker) run() {
	for {
		select {
		case w := <-b.warnCh:
			b.broadcast(w)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(w *Warning) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- w:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
