package service

import (
	"context"
	"errors"
	"strings"

	"cablepark/internal/conflict"
	"cablepark/internal/domain"
	"cablepark/internal/events"
	"cablepark/internal/grid"
	"cablepark/internal/grouping"
	"cablepark/internal/lifecycle"
	"cablepark/internal/localtime"
	"cablepark/internal/metrics"
	"cablepark/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BookingRequest is a guest booking for one consecutive window.
type BookingRequest struct {
	Date            localtime.Date    `json:"date"`
	Start           models.ClockTime  `json:"start"`
	End             *models.ClockTime `json:"end,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty" validate:"gte=0,lte=1440"`
	Customer        models.Customer   `json:"customer"`
}

func (r BookingRequest) window() grid.WindowRequest {
	return grid.WindowRequest{Date: r.Date, Start: r.Start, End: r.End, DurationMinutes: r.DurationMinutes}
}

// Preview is the advisory answer to "can I book this?". It may be stale by
// the time the booking is submitted.
type Preview struct {
	Slots       []models.Slot     `json:"slots"`
	Conflicts   []domain.Conflict `json:"conflicts"`
	Unavailable []models.Slot     `json:"unavailable"`
	Bookable    bool              `json:"bookable"`
}

type BookingResult struct {
	Booking *models.Booking `json:"booking"`
	Slots   []models.Slot   `json:"slots"`
}

// CancelMode decides what happens to a cancelled booking's slots.
type CancelMode string

const (
	// CancelRelease returns the slots to available.
	CancelRelease CancelMode = "release"
	// CancelDelete removes the slot rows; the cells become unallocated.
	CancelDelete CancelMode = "delete"
)

func ParseCancelMode(raw string) (CancelMode, error) {
	switch CancelMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CancelRelease:
		return CancelRelease, nil
	case CancelDelete:
		return CancelDelete, nil
	}
	return "", domain.NewValidationError("mode", "unknown cancel mode %q", raw)
}

type CancelResult struct {
	Reference string        `json:"reference"`
	Mode      CancelMode    `json:"mode"`
	Slots     []models.Slot `json:"slots"`
}

type BookingView struct {
	Booking *models.Booking    `json:"booking"`
	Slots   []models.Slot      `json:"slots"`
	Groups  []grouping.Summary `json:"groups"`
}

type BookingService struct {
	store    domain.SlotStore
	facility *Facility
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewBookingService(store domain.SlotStore, facility *Facility, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:    store,
		facility: facility,
		eventBus: eventBus,
		validate: newValidator(),
		logger:   logger,
	}
}

// PreviewConflicts reports overlaps with existing bookings without writing
// anything. Customer details are not required.
func (s *BookingService) PreviewConflicts(ctx context.Context, req grid.WindowRequest) (*Preview, error) {
	gen, err := s.facility.Generator(ctx)
	if err != nil {
		return nil, err
	}
	drafts, err := gen.Window(req)
	if err != nil {
		return nil, err
	}

	windows := conflict.Ranges(drafts)
	existing, err := loadAround(ctx, s.store, windows)
	if err != nil {
		return nil, err
	}

	p := &Preview{Slots: drafts, Conflicts: conflict.Advisory(windows, existing)}
	for _, row := range existing {
		if row.Status == models.StatusBlocked && overlapsAny(row, windows) {
			p.Unavailable = append(p.Unavailable, row)
		}
	}
	if p.Conflicts == nil {
		p.Conflicts = []domain.Conflict{}
	}
	p.Bookable = len(p.Conflicts) == 0 && len(p.Unavailable) == 0 && s.facility.ValidateBookingWindow(drafts[0].StartTime) == nil
	metrics.AddConflicts("advisory", len(p.Conflicts))
	return p, nil
}

// CreateBooking books the requested window. The conflict check, the
// lifecycle check and every write happen in one transaction; if any slot
// was booked in the meantime the whole request fails with a ConflictError.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		metrics.IncBooking("invalid")
		return nil, validationError(err)
	}

	gen, err := s.facility.Generator(ctx)
	if err != nil {
		return nil, err
	}
	drafts, err := gen.Window(req.window())
	if err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}
	if err := s.facility.ValidateBookingWindow(drafts[0].StartTime); err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}

	booking := req.Customer.Booking()
	var slots []models.Slot
	err = s.store.Atomically(ctx, func(tx domain.SlotTx) error {
		var err error
		slots, err = bookSlots(ctx, tx, s.facility, drafts, &booking)
		return err
	})
	if err != nil {
		var ce *domain.ConflictError
		if errors.As(err, &ce) {
			metrics.AddConflicts("commit", len(ce.Conflicts))
			metrics.IncBooking("conflict")
		} else {
			metrics.IncBooking("failed")
		}
		return nil, err
	}

	metrics.IncBooking("created")
	s.logger.Info().
		Str("reference", booking.Reference).
		Int("slots", len(slots)).
		Time("start", slots[0].StartTime).
		Msg("Booking created")
	s.publish(models.EventBookingCreated, events.BookingEventPayload{
		Reference:    booking.Reference,
		CustomerName: booking.CustomerName,
		SlotCount:    len(slots),
		Start:        slots[0].StartTime,
		End:          slots[len(slots)-1].EndTime,
	})

	return &BookingResult{Booking: &booking, Slots: slots}, nil
}

// bookSlots books targets for a new booking inside tx. targets may be drafts
// (ID 0), ephemeral cells or persisted rows; existing rows at the same start
// are reused. booking receives its generated reference.
func bookSlots(ctx context.Context, tx domain.SlotTx, f *Facility, targets []models.Slot, booking *models.Booking) ([]models.Slot, error) {
	windows := conflict.Ranges(targets)
	existing, err := loadAround(ctx, tx, windows)
	if err != nil {
		return nil, err
	}
	if err := conflict.Authoritative(windows, existing); err != nil {
		return nil, err
	}

	rows := make(map[int64]models.Slot, len(existing))
	for _, row := range existing {
		rows[row.StartTime.Unix()] = row
	}
	resolved := make([]models.Slot, len(targets))
	for i, t := range targets {
		if row, ok := rows[t.StartTime.Unix()]; ok {
			resolved[i] = row
		} else {
			resolved[i] = t
			resolved[i].Status = models.StatusUnallocated
		}
		if err := lifecycle.Check(resolved[i], lifecycle.Book, lifecycle.Params{Reference: "pending"}); err != nil {
			return nil, err
		}
	}

	ref, err := tx.NextReference(ctx, f.ReferencePrefix, f.Zone.Local(f.now()))
	if err != nil {
		return nil, err
	}
	booking.Reference = ref
	if err := tx.InsertBooking(ctx, booking); err != nil {
		return nil, err
	}

	out := make([]models.Slot, 0, len(resolved))
	for _, slot := range resolved {
		booked, err := lifecycle.Apply(slot, lifecycle.Book, lifecycle.Params{Reference: ref})
		if err != nil {
			return nil, err
		}
		if booked.IsPersisted() {
			err = tx.UpdateSlot(ctx, &booked)
		} else {
			booked.ID = 0
			err = tx.InsertSlot(ctx, &booked)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, booked)
	}
	return out, nil
}

// CancelBooking removes a booking and releases or deletes all of its slots in
// the same transaction.
func (s *BookingService) CancelBooking(ctx context.Context, reference string, mode CancelMode) (*CancelResult, error) {
	result := &CancelResult{Reference: reference, Mode: mode}
	var start, end models.Slot

	err := s.store.Atomically(ctx, func(tx domain.SlotTx) error {
		if _, err := tx.BookingByReference(ctx, reference); err != nil {
			return notFound(err, "booking", reference)
		}
		slots, err := tx.SlotsByReference(ctx, reference)
		if err != nil {
			return err
		}

		var deleted []int64
		for _, slot := range slots {
			switch mode {
			case CancelDelete:
				cleared, err := lifecycle.Apply(slot, lifecycle.Clear, lifecycle.Params{})
				if err != nil {
					return err
				}
				deleted = append(deleted, cleared.ID)
				result.Slots = append(result.Slots, s.facility.EphemeralSlot(cleared.StartTime))
			default:
				released, err := lifecycle.Apply(slot, lifecycle.Cancel, lifecycle.Params{})
				if err != nil {
					return err
				}
				if err := tx.UpdateSlot(ctx, &released); err != nil {
					return err
				}
				result.Slots = append(result.Slots, released)
			}
		}
		if err := tx.DeleteSlots(ctx, deleted); err != nil {
			return err
		}
		if len(slots) > 0 {
			start, end = slots[0], slots[len(slots)-1]
		}
		return tx.DeleteBooking(ctx, reference)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("reference", reference).Str("mode", string(mode)).Int("slots", len(result.Slots)).Msg("Booking cancelled")
	s.publish(models.EventBookingCanceled, events.BookingEventPayload{
		Reference: reference,
		SlotCount: len(result.Slots),
		Start:     start.StartTime,
		End:       end.EndTime,
		Mode:      string(mode),
	})
	return result, nil
}

// GetBooking returns a booking with its slots and their consecutive groups.
func (s *BookingService) GetBooking(ctx context.Context, reference string) (*BookingView, error) {
	booking, err := s.store.BookingByReference(ctx, reference)
	if err != nil {
		return nil, notFound(err, "booking", reference)
	}
	slots, err := s.store.SlotsByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	view := &BookingView{Booking: booking, Slots: slots, Groups: []grouping.Summary{}}
	for _, g := range grouping.Build(slots).Groups(reference) {
		view.Groups = append(view.Groups, g.Summary())
	}
	return view, nil
}

func (s *BookingService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func overlapsAny(s models.Slot, windows []models.TimeRange) bool {
	for _, w := range windows {
		if s.Overlaps(w.Start, w.End) {
			return true
		}
	}
	return false
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewNotFound(resource, id)
	}
	return err
}
