// Package grid builds slot drafts for booking windows and the week-aligned
// grid shown to guests and operators.
package grid

import (
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/localtime"
	"cablepark/internal/models"

	"github.com/shopspring/decimal"
)

type Generator struct {
	zone  *localtime.Zone
	hours models.OperatingHours
	price decimal.Decimal
}

// New returns a generator. price is attached to drafts and ephemeral cells.
func New(zone *localtime.Zone, hours models.OperatingHours, price decimal.Decimal) *Generator {
	return &Generator{zone: zone, hours: hours, price: price}
}

func (g *Generator) Zone() *localtime.Zone { return g.zone }

func (g *Generator) Hours() models.OperatingHours { return g.hours }

// WindowRequest asks for slots starting at Start on Date. Exactly one of End
// and DurationMinutes must be set. An End that is not after Start means the
// window runs past midnight into the next day.
type WindowRequest struct {
	Date            localtime.Date    `json:"date"`
	Start           models.ClockTime  `json:"start"`
	End             *models.ClockTime `json:"end,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
}

// Minutes returns the requested length and whether the window crosses midnight.
func (r WindowRequest) Minutes() (minutes int, rolls bool, err error) {
	switch {
	case r.End != nil && r.DurationMinutes != 0:
		return 0, false, domain.NewValidationError("end", "give either an end time or a duration, not both")
	case r.End != nil:
		if *r.End > r.Start {
			return int(*r.End - r.Start), false, nil
		}
		return int(*r.End) + models.MinutesPerDay - int(r.Start), true, nil
	case r.DurationMinutes > 0:
		return r.DurationMinutes, int(r.Start)+r.DurationMinutes > models.MinutesPerDay, nil
	default:
		return 0, false, domain.NewValidationError("duration_minutes", "must be positive")
	}
}

// SlotCount is ceil(minutes / 30).
func SlotCount(minutes int) int {
	return (minutes + models.SlotMinutes - 1) / models.SlotMinutes
}

// Window returns consecutive 30-minute drafts covering the request. Each
// draft starts where the previous one ended; drafts carry ID 0.
func (g *Generator) Window(req WindowRequest) ([]models.Slot, error) {
	if req.Date.IsZero() {
		return nil, domain.NewValidationError("date", "is required")
	}
	if req.Start < 0 || req.Start >= models.MinutesPerDay {
		return nil, domain.NewValidationError("start", "must be within the day")
	}
	if !req.Start.Aligned() {
		return nil, domain.NewValidationError("start", "%s is not aligned to %d minutes", req.Start, models.SlotMinutes)
	}
	minutes, _, err := req.Minutes()
	if err != nil {
		return nil, err
	}

	day := g.hours.Day(req.Date.Weekday())
	if day.Closed {
		return nil, domain.NewValidationError("date", "the facility is closed on %s", req.Date.Weekday())
	}
	if req.Start < day.Open {
		return nil, domain.NewValidationError("start", "%s is before opening time %s", req.Start, day.Open)
	}
	count := SlotCount(minutes)
	if err := g.checkClosing(req.Date, day, int(req.Start)+count*models.SlotMinutes); err != nil {
		return nil, err
	}
	if !g.zone.Exists(req.Date, req.Start) {
		return nil, domain.NewValidationError("start", "%s does not exist on %s", req.Start, req.Date)
	}

	drafts := make([]models.Slot, 0, count)
	start := g.zone.Wall(req.Date, req.Start)
	for i := 0; i < count; i++ {
		end := start.Add(models.SlotDuration)
		drafts = append(drafts, models.Slot{
			StartTime: start,
			EndTime:   end,
			Price:     g.price,
			Status:    models.StatusUnallocated,
		})
		start = end
	}
	return drafts, nil
}

// checkClosing rejects a window ending after the anchor day's close. A window
// may cross midnight only when the day closes at 24:00 and the next day opens
// at 00:00 and is still open when the window ends.
func (g *Generator) checkClosing(date localtime.Date, day models.DayHours, end int) error {
	if end <= int(day.Close) {
		return nil
	}
	if day.Close < models.MinutesPerDay {
		return domain.NewValidationError("end", "window runs past closing time %s", day.Close)
	}
	nextDate := date.AddDays(1)
	next := g.hours.Day(nextDate.Weekday())
	if next.Closed || next.Open > 0 || end-models.MinutesPerDay > int(next.Close) {
		return domain.NewValidationError("end", "window runs past the operating hours of %s", nextDate)
	}
	return nil
}

// Bounds returns [first.start, last.end) of a run of drafts.
func Bounds(slots []models.Slot) (time.Time, time.Time) {
	if len(slots) == 0 {
		return time.Time{}, time.Time{}
	}
	return slots[0].StartTime, slots[len(slots)-1].EndTime
}
