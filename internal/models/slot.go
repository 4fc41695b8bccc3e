package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Slot is a 30-minute unit of facility time. Persisted rows carry a positive
// ID; grid cells without a row carry a negative sentinel ID; drafts that have
// not been written yet carry zero.
type Slot struct {
	ID               int64           `json:"id"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	Price            decimal.Decimal `json:"price"`
	Status           SlotStatus      `json:"status"`
	BookingReference string          `json:"booking_reference,omitempty"`
	BlockReason      string          `json:"block_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty"`
}

func (s Slot) IsEphemeral() bool { return s.ID < 0 }

func (s Slot) IsPersisted() bool { return s.ID > 0 }

func (s Slot) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// Overlaps reports half-open interval overlap with [start, end).
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && r.End.After(o.Start)
}

func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}
