package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"cablepark/internal/conflict"
	"cablepark/internal/domain"
	"cablepark/internal/events"
	"cablepark/internal/grid"
	"cablepark/internal/lifecycle"
	"cablepark/internal/metrics"
	"cablepark/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Target addresses one grid cell. Persisted slots are named by their
// positive ID; ephemeral cells carry their sentinel ID and their own bounds.
type Target struct {
	ID    int64     `json:"id"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// BulkRequest applies one action to every target, all or nothing.
type BulkRequest struct {
	Action  lifecycle.Action `json:"action"`
	Targets []Target         `json:"targets"`
	// Reason is required for block.
	Reason string `json:"reason,omitempty"`
	// Price is required for make-available.
	Price *decimal.Decimal `json:"price,omitempty"`
	// Customer is required for book.
	Customer *models.Customer `json:"customer,omitempty"`
}

type BulkResult struct {
	Action    lifecycle.Action `json:"action"`
	Reference string           `json:"reference,omitempty"`
	Slots     []models.Slot    `json:"slots"`
	Revision  int64            `json:"revision"`
}

// HoursWriter replaces the weekly operating hours.
type HoursWriter interface {
	ReplaceOperatingHours(ctx context.Context, hours models.OperatingHours) error
}

type AdminService struct {
	store    domain.SlotStore
	hours    HoursWriter
	facility *Facility
	eventBus domain.EventPublisher
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewAdminService(store domain.SlotStore, hours HoursWriter, facility *Facility, eventBus domain.EventPublisher, logger *zerolog.Logger) *AdminService {
	return &AdminService{
		store:    store,
		hours:    hours,
		facility: facility,
		eventBus: eventBus,
		validate: newValidator(),
		logger:   logger,
	}
}

// ApplyBulk validates every target before writing anything. Any invalid
// target, illegal transition or booking overlap rejects the whole request.
func (s *AdminService) ApplyBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	result, err := s.applyBulk(ctx, req)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrState):
		outcome = "state"
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	case errors.Is(err, domain.ErrValidation):
		outcome = "invalid"
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "failed"
	}
	metrics.IncBulkAction(req.Action.String(), outcome)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("action", req.Action.String()).
		Int("slots", len(result.Slots)).
		Str("reference", result.Reference).
		Int64("revision", result.Revision).
		Msg("Bulk action applied")
	s.publish(req, result)
	return result, nil
}

func (s *AdminService) applyBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	result := &BulkResult{Action: req.Action, Slots: []models.Slot{}}
	err := s.store.Atomically(ctx, func(tx domain.SlotTx) error {
		slots, err := s.resolve(ctx, tx, req.Targets)
		if err != nil {
			return err
		}

		switch req.Action {
		case lifecycle.Book:
			booking := req.Customer.Booking()
			booked, err := bookSlots(ctx, tx, s.facility, slots, &booking)
			if err != nil {
				return err
			}
			result.Reference = booking.Reference
			result.Slots = booked
		case lifecycle.Clear:
			cleared, err := s.clear(ctx, tx, slots)
			if err != nil {
				return err
			}
			result.Slots = cleared
		default:
			changed, err := s.transition(ctx, tx, req, slots)
			if err != nil {
				return err
			}
			result.Slots = changed
		}

		result.Revision, err = tx.Revision(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	// the revision bump happens at commit
	result.Revision++
	return result, nil
}

func (s *AdminService) validateRequest(ctx context.Context, req BulkRequest) error {
	switch req.Action {
	case lifecycle.Block, lifecycle.MakeAvailable, lifecycle.Clear, lifecycle.Book:
	case lifecycle.Cancel:
		return domain.NewValidationError("action", "cancel bookings by reference instead")
	default:
		return domain.NewValidationError("action", "is required")
	}
	if len(req.Targets) == 0 {
		return domain.NewValidationError("targets", "at least one slot must be selected")
	}

	seen := make(map[int64]bool, len(req.Targets))
	for _, t := range req.Targets {
		if t.ID == 0 {
			return domain.NewValidationError("targets", "slot id 0 is not valid")
		}
		if seen[t.ID] {
			return domain.NewValidationError("targets", "slot %d is selected twice", t.ID)
		}
		seen[t.ID] = true

		if grid.IsEphemeral(t.ID) {
			if err := s.validateEphemeral(t); err != nil {
				return err
			}
		}
	}

	if req.Action == lifecycle.Book {
		if req.Customer == nil {
			return domain.NewValidationError("customer", "is required to book")
		}
		if err := s.validate.StructCtx(ctx, req.Customer); err != nil {
			return validationError(err)
		}
	}
	if req.Action == lifecycle.Block && req.Reason == "" {
		return domain.NewValidationError("reason", "is required to block")
	}
	if req.Action == lifecycle.MakeAvailable && req.Price == nil {
		return domain.NewValidationError("price", "is required to make slots available")
	}
	return nil
}

// validateEphemeral checks that an unallocated target's bounds are one slot
// long and match the cell its sentinel ID names.
func (s *AdminService) validateEphemeral(t Target) error {
	if t.Start.IsZero() || t.End.Sub(t.Start) != models.SlotDuration {
		return domain.NewValidationError("targets", "unallocated slot %d needs a %s start and end", t.ID, models.SlotDuration)
	}
	zone := s.facility.Zone
	if want := grid.EphemeralID(zone.DayIndex(t.Start), zone.ClockOf(t.Start)); want != t.ID {
		return domain.NewValidationError("targets", "slot %d does not match its start time %s", t.ID, t.Start.UTC().Format(time.RFC3339))
	}
	if !zone.ClockOf(t.Start).Aligned() {
		return domain.NewValidationError("targets", "slot %d is not aligned to %d minutes", t.ID, models.SlotMinutes)
	}
	return nil
}

// resolve loads persisted targets and turns ephemeral targets into
// unallocated drafts. An ephemeral target whose cell has been materialized
// since the grid was rendered resolves to the stored row.
func (s *AdminService) resolve(ctx context.Context, tx domain.SlotTx, targets []Target) ([]models.Slot, error) {
	var ids []int64
	var ephemeral []Target
	for _, t := range targets {
		if grid.IsEphemeral(t.ID) {
			ephemeral = append(ephemeral, t)
		} else {
			ids = append(ids, t.ID)
		}
	}

	rows, err := tx.SlotsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Slot, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domain.NewNotFound("slot", id)
		}
	}

	byStart := make(map[int64]models.Slot)
	if len(ephemeral) > 0 {
		windows := make([]models.TimeRange, len(ephemeral))
		for i, t := range ephemeral {
			windows[i] = models.TimeRange{Start: t.Start, End: t.End}
		}
		from, to := conflict.Span(windows)
		stored, err := tx.SlotsInRange(ctx, from, to)
		if err != nil {
			return nil, err
		}
		for _, r := range stored {
			byStart[r.StartTime.Unix()] = r
		}
	}

	out := make([]models.Slot, 0, len(targets))
	seen := make(map[int64]bool, len(targets))
	for _, t := range targets {
		var slot models.Slot
		switch {
		case !grid.IsEphemeral(t.ID):
			slot = byID[t.ID]
		default:
			if row, ok := byStart[t.Start.Unix()]; ok {
				slot = row
			} else {
				slot = s.facility.EphemeralSlot(t.Start)
			}
		}
		if seen[slot.StartTime.Unix()] {
			return nil, domain.NewValidationError("targets", "slot %d is selected twice", t.ID)
		}
		seen[slot.StartTime.Unix()] = true
		out = append(out, slot)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// transition handles block and make-available.
func (s *AdminService) transition(ctx context.Context, tx domain.SlotTx, req BulkRequest, slots []models.Slot) ([]models.Slot, error) {
	params := lifecycle.Params{Reason: req.Reason, Price: req.Price, MinPrice: s.facility.MinPrice}

	next := make([]models.Slot, len(slots))
	for i, slot := range slots {
		from := slot
		// blocking an unallocated cell materializes it as available first
		if req.Action == lifecycle.Block && from.Status == models.StatusUnallocated {
			from.Status = models.StatusAvailable
		}
		changed, err := lifecycle.Apply(from, req.Action, params)
		if err != nil {
			return nil, err
		}
		next[i] = changed
	}

	for i := range next {
		var err error
		if next[i].IsPersisted() {
			err = tx.UpdateSlot(ctx, &next[i])
		} else {
			next[i].ID = 0
			err = tx.InsertSlot(ctx, &next[i])
		}
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

// clear deletes the selected rows. Clearing any slot of a booking deletes
// the booking together with all of its slots.
func (s *AdminService) clear(ctx context.Context, tx domain.SlotTx, slots []models.Slot) ([]models.Slot, error) {
	for _, slot := range slots {
		if err := lifecycle.Check(slot, lifecycle.Clear, lifecycle.Params{}); err != nil {
			return nil, err
		}
	}

	deleting := make(map[int64]models.Slot)
	var references []string
	for _, slot := range slots {
		deleting[slot.ID] = slot
		if slot.BookingReference != "" && !contains(references, slot.BookingReference) {
			references = append(references, slot.BookingReference)
		}
	}
	for _, ref := range references {
		siblings, err := tx.SlotsByReference(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			deleting[sib.ID] = sib
		}
	}

	ids := make([]int64, 0, len(deleting))
	out := make([]models.Slot, 0, len(deleting))
	for id, slot := range deleting {
		ids = append(ids, id)
		out = append(out, s.facility.EphemeralSlot(slot.StartTime))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })

	if err := tx.DeleteSlots(ctx, ids); err != nil {
		return nil, err
	}
	for _, ref := range references {
		if err := tx.DeleteBooking(ctx, ref); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReplaceHours validates and stores new operating hours.
func (s *AdminService) ReplaceHours(ctx context.Context, list []models.DayHours) (models.OperatingHours, error) {
	hours, err := models.HoursFromList(list)
	if err != nil {
		return hours, domain.NewValidationError("operating_hours", "%v", err)
	}
	if err := s.hours.ReplaceOperatingHours(ctx, hours); err != nil {
		return hours, err
	}
	s.logger.Info().Msg("Operating hours updated")
	return hours, nil
}

func (s *AdminService) publish(req BulkRequest, result *BulkResult) {
	if s.eventBus == nil {
		return
	}
	eventType := map[lifecycle.Action]string{
		lifecycle.Block:         models.EventSlotsBlocked,
		lifecycle.MakeAvailable: models.EventSlotsReleased,
		lifecycle.Clear:         models.EventSlotsCleared,
		lifecycle.Book:          models.EventSlotsBooked,
	}[req.Action]

	ids := make([]int64, len(result.Slots))
	for i, slot := range result.Slots {
		ids[i] = slot.ID
	}
	start, end := conflict.Span(conflict.Ranges(result.Slots))
	payload := events.SlotEventPayload{
		Action:    req.Action.String(),
		SlotIDs:   ids,
		Reference: result.Reference,
		Reason:    req.Reason,
		Revision:  result.Revision,
		Start:     start,
		End:       end,
		At:        s.facility.now(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
