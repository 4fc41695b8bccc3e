package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cablepark/internal/database"
	"cablepark/internal/events"
	"cablepark/internal/grid"
	"cablepark/internal/localtime"
	"cablepark/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var berlin = localtime.MustLoad("Europe/Berlin")

// Tuesday 2025-05-20 08:00 in Berlin.
var testNow = time.Date(2025, 5, 20, 6, 0, 0, 0, time.UTC)

var wednesday = localtime.Date{Year: 2025, Month: time.May, Day: 21}

type testEnv struct {
	db       *database.DB
	facility *Facility
	bus      *events.EventBus
	bookings *BookingService
	schedule *ScheduleService
	admin    *AdminService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "schedule.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var list []models.DayHours
	for d := models.Monday; d <= models.Sunday; d++ {
		list = append(list, models.DayHours{Day: d, Open: models.NewClockTime(9, 0), Close: models.NewClockTime(21, 0)})
	}
	hours, err := models.HoursFromList(list)
	require.NoError(t, err)
	require.NoError(t, db.ReplaceOperatingHours(context.Background(), hours))

	f := &Facility{
		Zone:              berlin,
		Hours:             db,
		ReferencePrefix:   "WB",
		MinPrice:          decimal.NewFromInt(10),
		DefaultPrice:      decimal.NewFromInt(25),
		MaxBookingDays:    90,
		MinBookingAdvance: 2 * time.Hour,
		Now:               func() time.Time { return testNow },
	}
	bus := events.NewEventBus()
	return &testEnv{
		db:       db,
		facility: f,
		bus:      bus,
		bookings: NewBookingService(db, f, bus, &logger),
		schedule: NewScheduleService(db, db, f, nil, &logger),
		admin:    NewAdminService(db, db, f, bus, &logger),
	}
}

func clock(h, m int) models.ClockTime { return models.NewClockTime(h, m) }

func customer() models.Customer {
	return models.Customer{Name: "Lena Vogel", Email: "lena@example.com", Phone: "+4915112345678"}
}

func book(t *testing.T, env *testEnv, date localtime.Date, start models.ClockTime, minutes int) *BookingResult {
	t.Helper()
	res, err := env.bookings.CreateBooking(context.Background(), BookingRequest{
		Date:            date,
		Start:           start,
		DurationMinutes: minutes,
		Customer:        customer(),
	})
	require.NoError(t, err)
	return res
}

// cellTarget addresses the unallocated cell at date/clock.
func cellTarget(date localtime.Date, c models.ClockTime) Target {
	start := berlin.Wall(date, c)
	return Target{
		ID:    grid.EphemeralID(berlin.DayIndex(start), berlin.ClockOf(start)),
		Start: start,
		End:   start.Add(models.SlotDuration),
	}
}

func slotTarget(s models.Slot) Target { return Target{ID: s.ID} }
