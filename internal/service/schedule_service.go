package service

import (
	"context"
	"encoding/json"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/grid"
	"cablepark/internal/grouping"
	"cablepark/internal/localtime"
	"cablepark/internal/metrics"
	"cablepark/internal/models"

	"github.com/rs/zerolog"
)

// groupMargin is how far past each week bound slots are loaded for grouping.
// No booking outlasts a day.
const groupMargin = 24 * time.Hour

// BookingSource loads several bookings by reference in one round trip.
type BookingSource interface {
	BookingsByReferences(ctx context.Context, references []string) (map[string]*models.Booking, error)
}

// BookingLookup caches booking details for the lifetime of one request.
// It is never shared between requests, so it cannot go stale.
type BookingLookup struct {
	source BookingSource
	cache  map[string]*models.Booking
	loads  int
}

func NewBookingLookup(source BookingSource) *BookingLookup {
	return &BookingLookup{source: source, cache: make(map[string]*models.Booking)}
}

// Prefetch loads every reference not already cached.
func (l *BookingLookup) Prefetch(ctx context.Context, references []string) error {
	var missing []string
	seen := make(map[string]bool, len(references))
	for _, r := range references {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		if _, ok := l.cache[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := l.source.BookingsByReferences(ctx, missing)
	if err != nil {
		return err
	}
	l.loads++
	for _, r := range missing {
		l.cache[r] = found[r]
	}
	return nil
}

// Get returns a prefetched booking or nil.
func (l *BookingLookup) Get(reference string) *models.Booking {
	return l.cache[reference]
}

// BookingSummary is what the grid shows about the booking owning a cell.
type BookingSummary struct {
	Reference       string `json:"reference"`
	CustomerName    string `json:"customer_name"`
	EquipmentRental bool   `json:"equipment_rental"`
}

type CellView struct {
	grid.Cell
	Position grouping.Position `json:"position"`
	Booking  *BookingSummary   `json:"booking,omitempty"`
}

type WeekView struct {
	Monday   localtime.Date     `json:"monday"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Timezone string             `json:"timezone"`
	Revision int64              `json:"revision"`
	Cells    []CellView         `json:"cells"`
	Groups   []grouping.Summary `json:"groups"`
}

// Cell finds a cell by local day and wall-clock time.
func (w *WeekView) Cell(day models.Weekday, hour, minute int) (CellView, bool) {
	for _, c := range w.Cells {
		if c.Key.Day == day && c.Key.Hour == hour && c.Key.Minute == minute {
			return c, true
		}
	}
	return CellView{}, false
}

type ScheduleService struct {
	store    domain.SlotStore
	bookings BookingSource
	facility *Facility
	cache    domain.GridCache
	memo     *grouping.Memo
	logger   *zerolog.Logger
}

// NewScheduleService wires the week view. cache may be nil.
func NewScheduleService(store domain.SlotStore, bookings BookingSource, facility *Facility, cache domain.GridCache, logger *zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		store:    store,
		bookings: bookings,
		facility: facility,
		cache:    cache,
		memo:     grouping.NewMemo(),
		logger:   logger,
	}
}

// Week returns the grid for the local week containing anchor, labelled with
// group positions and booking details.
func (s *ScheduleService) Week(ctx context.Context, anchor time.Time) (*WeekView, error) {
	revision, err := s.store.Revision(ctx)
	if err != nil {
		return nil, err
	}
	weekStart := s.facility.Zone.WeekStart(anchor)

	if view, ok := s.cached(ctx, weekStart, revision); ok {
		return view, nil
	}

	started := time.Now()
	view, err := s.build(ctx, anchor, revision)
	if err != nil {
		return nil, err
	}
	metrics.ObserveWeekBuild(time.Since(started).Seconds())

	if s.cache != nil {
		payload, err := json.Marshal(view)
		if err == nil {
			err = s.cache.SetWeek(ctx, weekStart, revision, payload)
		}
		if err != nil {
			s.logger.Warn().Err(err).Time("week", weekStart).Msg("Failed to cache week view")
		}
	}
	return view, nil
}

func (s *ScheduleService) cached(ctx context.Context, weekStart time.Time, revision int64) (*WeekView, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, ok, err := s.cache.GetWeek(ctx, weekStart, revision)
	if err != nil {
		metrics.IncGridCache("error")
		s.logger.Warn().Err(err).Time("week", weekStart).Msg("Grid cache lookup failed")
		return nil, false
	}
	if !ok {
		metrics.IncGridCache("miss")
		return nil, false
	}
	var view WeekView
	if err := json.Unmarshal(payload, &view); err != nil {
		metrics.IncGridCache("error")
		s.logger.Warn().Err(err).Time("week", weekStart).Msg("Discarding unreadable cached week")
		return nil, false
	}
	metrics.IncGridCache("hit")
	return &view, true
}

func (s *ScheduleService) build(ctx context.Context, anchor time.Time, revision int64) (*WeekView, error) {
	gen, err := s.facility.Generator(ctx)
	if err != nil {
		return nil, err
	}
	weekStart, weekEnd := s.facility.Zone.WeekBounds(anchor)
	// bookings rolling over Sunday midnight are grouped with their
	// neighbours in the adjacent week
	persisted, err := s.store.SlotsInRange(ctx, weekStart.Add(-groupMargin), weekEnd.Add(groupMargin))
	if err != nil {
		return nil, err
	}

	week := gen.Week(anchor, persisted)
	idx := s.memo.Get(week.Monday.String(), revision, func() []models.Slot { return persisted })

	lookup := NewBookingLookup(s.bookings)
	var refs []string
	for _, c := range week.Cells {
		refs = append(refs, c.Slot.BookingReference)
	}
	if err := lookup.Prefetch(ctx, refs); err != nil {
		return nil, err
	}

	view := &WeekView{
		Monday:   week.Monday,
		Start:    week.Start,
		End:      week.End,
		Timezone: s.facility.Zone.Name(),
		Revision: revision,
		Cells:    make([]CellView, 0, len(week.Cells)),
		Groups:   []grouping.Summary{},
	}
	for _, c := range week.Cells {
		cv := CellView{Cell: c, Position: idx.Position(c.Slot.ID)}
		if b := lookup.Get(c.Slot.BookingReference); b != nil {
			cv.Booking = &BookingSummary{Reference: b.Reference, CustomerName: b.CustomerName, EquipmentRental: b.EquipmentRental}
		}
		view.Cells = append(view.Cells, cv)
	}
	for _, g := range idx.All() {
		sum := g.Summary()
		if sum.End.After(week.Start) && sum.Start.Before(week.End) {
			view.Groups = append(view.Groups, sum)
		}
	}
	return view, nil
}

// InvalidateGroups drops memoized grouping indexes.
func (s *ScheduleService) InvalidateGroups() { s.memo.Invalidate() }
