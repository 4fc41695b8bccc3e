package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"cablepark/internal/models"

	"github.com/rs/zerolog"
)

// BookingEventPayload describes a booking for event consumers.
type BookingEventPayload struct {
	Reference    string    `json:"reference"`
	CustomerName string    `json:"customer_name"`
	SlotCount    int       `json:"slot_count"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	// Mode is "release" or "delete" on cancellation.
	Mode string `json:"mode,omitempty"`
}

// SlotEventPayload describes an admin bulk change. Start and End span the
// affected slots.
type SlotEventPayload struct {
	Action    string    `json:"action"`
	SlotIDs   []int64   `json:"slot_ids"`
	Reference string    `json:"reference,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Revision  int64     `json:"revision"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	At        time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs every handler for the event type synchronously and returns
// their errors joined. A failing handler does not stop the others.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// AllTypes lists every event the schedule publishes.
var AllTypes = []string{
	models.EventBookingCreated,
	models.EventBookingCanceled,
	models.EventSlotsBlocked,
	models.EventSlotsReleased,
	models.EventSlotsCleared,
	models.EventSlotsBooked,
}

// LogSubscriber writes every schedule event to the audit log.
func LogSubscriber(bus *EventBus, logger *zerolog.Logger) {
	bus.Subscribe(func(event *Event) error {
		logger.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Time("at", event.CreatedAt).
			Msg("Schedule event")
		return nil
	}, AllTypes...)
}
