// Package events delivers timeline controller notifications to view layers.
package events

import (
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// Handler is invoked when a notification matches a subscription.
type Handler func(event models.ViewEvent)

// Filter defines criteria for matching notifications.
type Filter struct {
	// Types filters by notification type (nil = all types).
	Types []models.ViewEventType

	// RoomID filters to one room (empty = all).
	RoomID id.RoomID

	// ThreadID filters to one thread (empty = any).
	ThreadID id.EventID
}

// Matches returns true if the notification matches the filter criteria.
func (f Filter) Matches(event models.ViewEvent) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.RoomID != "" && event.RoomID != f.RoomID {
		return false
	}
	if f.ThreadID != "" && event.ThreadID != f.ThreadID {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Publisher fans notifications out to subscribers.
type Publisher interface {
	// Publish sends a notification to all matching subscribers.
	Publish(event models.ViewEvent)

	// Subscribe registers a handler. The returned function unsubscribes.
	Subscribe(id string, filter Filter, handler Handler) (func(), error)

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// Bus is an in-process Publisher. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	order         []string
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscriptions: make(map[string]*subscription)}
}

// Publish sends a notification to all matching subscribers.
func (b *Bus) Publish(event models.ViewEvent) {
	b.mu.RLock()
	var handlers []Handler
	for _, subID := range b.order {
		sub := b.subscriptions[subID]
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	// Invoke handlers outside the lock so they may (un)subscribe.
	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers a handler to receive notifications matching the filter.
func (b *Bus) Subscribe(subID string, filter Filter, handler Handler) (func(), error) {
	if subID == "" {
		return nil, ErrInvalidSubscriptionID
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[subID]; exists {
		return nil, ErrSubscriptionExists
	}
	b.subscriptions[subID] = &subscription{id: subID, filter: filter, handler: handler}
	b.order = append(b.order, subID)

	return func() { _ = b.Unsubscribe(subID) }, nil
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(subID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[subID]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(b.subscriptions, subID)
	for i, existing := range b.order {
		if existing == subID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
	b.order = nil
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
