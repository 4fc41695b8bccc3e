package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cablepark/internal/config"
	"cablepark/internal/conflict"
	"cablepark/internal/domain"
	"cablepark/internal/grid"
	"cablepark/internal/localtime"
	"cablepark/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Facility bundles the per-facility settings every service needs.
type Facility struct {
	Zone  *localtime.Zone
	Hours domain.HoursProvider

	ReferencePrefix   string
	MinPrice          decimal.Decimal
	DefaultPrice      decimal.Decimal
	MaxBookingDays    int
	MinBookingAdvance time.Duration

	// Now is replaced in tests.
	Now func() time.Time
}

// NewFacility builds the facility from configuration.
func NewFacility(cfg config.FacilityConfig, hours domain.HoursProvider) (*Facility, error) {
	zone, err := localtime.Load(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Facility{
		Zone:              zone,
		Hours:             hours,
		ReferencePrefix:   cfg.ReferencePrefix,
		MinPrice:          cfg.MinPrice,
		DefaultPrice:      cfg.DefaultPrice,
		MaxBookingDays:    cfg.MaxBookingDays,
		MinBookingAdvance: time.Duration(cfg.MinBookingAdvance) * time.Minute,
		Now:               time.Now,
	}, nil
}

func (f *Facility) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// Generator returns a grid generator for the current operating hours.
func (f *Facility) Generator(ctx context.Context) (*grid.Generator, error) {
	hours, err := f.Hours.OperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load operating hours: %w", err)
	}
	return grid.New(f.Zone, hours, f.DefaultPrice), nil
}

// EphemeralSlot is the unallocated cell a persisted slot turns back into
// once it is cleared.
func (f *Facility) EphemeralSlot(start time.Time) models.Slot {
	return models.Slot{
		ID:        grid.EphemeralID(f.Zone.DayIndex(start), f.Zone.ClockOf(start)),
		StartTime: start,
		EndTime:   start.Add(models.SlotDuration),
		Price:     f.DefaultPrice,
		Status:    models.StatusUnallocated,
	}
}

// ValidateBookingWindow checks that [start, ...) is bookable by guests: not in
// the past, not inside the advance cutoff and not beyond the booking horizon.
func (f *Facility) ValidateBookingWindow(start time.Time) error {
	now := f.now()
	if start.Before(now.Add(f.MinBookingAdvance)) {
		if start.Before(now) {
			return domain.NewValidationError("start", "cannot book a time in the past")
		}
		return domain.NewValidationError("start", "bookings close %s before the slot starts", f.MinBookingAdvance)
	}
	if f.MaxBookingDays > 0 {
		today := f.Zone.DateOf(now)
		if today.DaysUntil(f.Zone.DateOf(start)) > f.MaxBookingDays {
			return domain.NewValidationError("date", "bookings open at most %d days ahead", f.MaxBookingDays)
		}
	}
	return nil
}

// loadAround returns persisted rows that may overlap any of windows. Rows are
// aligned to the slot length, so starting one slot early is enough.
func loadAround(ctx context.Context, r domain.SlotReader, windows []models.TimeRange) ([]models.Slot, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	from, to := conflict.Span(windows)
	return r.SlotsInRange(ctx, from.Add(-models.SlotDuration+time.Second), to)
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validationError turns validator output into a domain validation error
// naming the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Namespace(), "failed %q check", fe.Tag())
	}
	return domain.NewValidationError("", "%v", err)
}
