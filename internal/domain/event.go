package domain

import (
	"context"
	"sync"
)

//go:generate mockgen -destination mocks/mock_event_bus.go -package mocks github.com/viaforteexpress/campaign-engine/internal/domain EventBus

// EventType defines the type of an event
type EventType string

const (
	EventCampaignCreated   EventType = "campaign.created"
	EventCampaignProgress  EventType = "campaign.progress"
	EventCampaignPaused    EventType = "campaign.paused"
	EventCampaignResumed   EventType = "campaign.resumed"
	EventCampaignCompleted EventType = "campaign.completed"
	EventCampaignFailed    EventType = "campaign.failed"
	EventCampaignCancelled EventType = "campaign.cancelled"
)

// EventPayload represents the data associated with an event
type EventPayload struct {
	Type       EventType         `json:"type"`
	CampaignID string            `json:"campaign_id"`
	Progress   *CampaignProgress `json:"progress,omitempty"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, payload EventPayload)

// EventBus provides a way for the worker pool and campaign service to publish
// state changes, and for the progress broadcaster to observe them
type EventBus interface {
	// Publish sends an event to all subscribers of its type
	Publish(ctx context.Context, event EventPayload)

	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler)

	// SubscribeAll registers a handler for every event type
	SubscribeAll(handler EventHandler)
}

// InMemoryEventBus is a simple in-memory implementation of the EventBus
type InMemoryEventBus struct {
	subscribers map[EventType][]EventHandler
	catchAll    []EventHandler
	mu          sync.RWMutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[EventType][]EventHandler),
	}
}

// Publish sends an event to all subscribers. Handlers run synchronously in
// publish order; a panicking handler is recovered so it cannot take down the
// publishing worker.
func (b *InMemoryEventBus) Publish(ctx context.Context, event EventPayload) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.catchAll))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.catchAll...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		func(h EventHandler) {
			defer func() {
				_ = recover()
			}()
			h(ctx, event)
		}(handler)
	}
}

// Subscribe registers a handler for a specific event type
func (b *InMemoryEventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type
func (b *InMemoryEventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catchAll = append(b.catchAll, handler)
}
