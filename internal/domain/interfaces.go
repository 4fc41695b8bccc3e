package domain

import (
	"context"
	"time"

	"cablepark/internal/models"
)

// SlotReader is the read side of the persistence collaborator.
type SlotReader interface {
	// SlotsInRange returns persisted slots starting in [from, to), ordered by start.
	SlotsInRange(ctx context.Context, from, to time.Time) ([]models.Slot, error)
	SlotsByIDs(ctx context.Context, ids []int64) ([]models.Slot, error)
	SlotsByReference(ctx context.Context, reference string) ([]models.Slot, error)
	BookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	Revision(ctx context.Context) (int64, error)
}

// SlotTx is a unit of work. Reads made through it observe the same snapshot
// the writes are applied to.
type SlotTx interface {
	SlotReader
	InsertSlot(ctx context.Context, slot *models.Slot) error
	UpdateSlot(ctx context.Context, slot *models.Slot) error
	DeleteSlots(ctx context.Context, ids []int64) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	DeleteBooking(ctx context.Context, reference string) error
	// NextReference allocates the next booking reference for the month of at.
	NextReference(ctx context.Context, prefix string, at time.Time) (string, error)
}

// SlotStore is the persistence collaborator. Atomically runs fn in a single
// write transaction: either every change fn made is committed or none is.
type SlotStore interface {
	SlotReader
	Atomically(ctx context.Context, fn func(tx SlotTx) error) error
}

// HoursProvider supplies operating hours per canonical local weekday.
type HoursProvider interface {
	OperatingHours(ctx context.Context) (models.OperatingHours, error)
}

// GridCache stores serialized week views keyed by week start and revision.
type GridCache interface {
	GetWeek(ctx context.Context, weekStart time.Time, revision int64) ([]byte, bool, error)
	SetWeek(ctx context.Context, weekStart time.Time, revision int64, payload []byte) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
