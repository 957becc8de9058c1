// Package events is the in-process event bus the bounded contexts talk
// over: the rotation engine announces distributions and membership changes,
// and the CRM and notification adapters react without importing it. Event
// types themselves live with the domains in internal/events; this package
// carries only the machinery.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type; subscriptions key on it.
	EventName() string
	// OccurredAt is the moment the event was raised.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp every event carries. Embed it and the
// event only needs its own EventName.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the moment the event was raised.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a BaseEvent with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes published events to their subscribers.
type Bus interface {
	// Publish hands the event to every subscriber of its name. Handlers
	// run asynchronously; a slow subscriber never blocks the publisher.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and returns their first error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name the event reports
	// from EventName.
	Subscribe(eventName string, handler Handler)
}
