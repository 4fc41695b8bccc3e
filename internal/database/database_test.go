package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "schedule.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var day = time.Date(2025, 6, 6, 8, 0, 0, 0, time.UTC)

func newSlot(offset int, status models.SlotStatus, ref string) *models.Slot {
	start := day.Add(time.Duration(offset) * models.SlotDuration)
	return &models.Slot{
		StartTime:        start,
		EndTime:          start.Add(models.SlotDuration),
		Price:            decimal.RequireFromString("17.50"),
		Status:           status,
		BookingReference: ref,
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestNewDB_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	rev, err := db.Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)
}

func TestAtomically_InsertAndRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	err := db.Atomically(ctx, func(tx domain.SlotTx) error {
		for i := 0; i < 3; i++ {
			s := newSlot(i, models.StatusAvailable, "")
			if err := tx.InsertSlot(ctx, s); err != nil {
				return err
			}
			ids = append(ids, s.ID)
		}
		return nil
	})
	require.NoError(t, err)

	slots, err := db.SlotsInRange(ctx, day, day.Add(2*models.SlotDuration))
	require.NoError(t, err)
	require.Len(t, slots, 2, "range end is exclusive")
	assert.True(t, slots[0].Price.Equal(decimal.RequireFromString("17.5")))
	assert.Equal(t, models.StatusAvailable, slots[0].Status)
	assert.Equal(t, day, slots[0].StartTime)

	byID, err := db.SlotsByIDs(ctx, []int64{ids[2], ids[0]})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, ids[0], byID[0].ID)

	rev, err := db.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
}

func TestAtomically_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Atomically(ctx, func(tx domain.SlotTx) error {
		if err := tx.InsertSlot(ctx, newSlot(0, models.StatusAvailable, "")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	slots, err := db.SlotsInRange(ctx, day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, slots)

	rev, err := db.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)
}

func TestAtomically_ReadOnlyKeepsRevision(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Atomically(ctx, func(tx domain.SlotTx) error {
		_, err := tx.SlotsInRange(ctx, day, day.Add(time.Hour))
		return err
	}))
	rev, err := db.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rev)
}

func TestInsertSlot_Invariants(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("WrongLength", func(t *testing.T) {
		s := newSlot(0, models.StatusAvailable, "")
		s.EndTime = s.StartTime.Add(time.Hour)
		err := db.Atomically(ctx, func(tx domain.SlotTx) error { return tx.InsertSlot(ctx, s) })
		assert.ErrorIs(t, err, ErrInvalidSlot)
	})

	t.Run("Unallocated", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error {
			return tx.InsertSlot(ctx, newSlot(0, models.StatusUnallocated, ""))
		})
		assert.ErrorIs(t, err, ErrInvalidSlot)
	})

	t.Run("BookedWithoutReference", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error {
			return tx.InsertSlot(ctx, newSlot(0, models.StatusBooked, ""))
		})
		assert.ErrorIs(t, err, ErrInvalidSlot)
	})

	t.Run("SameStartTwice", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error {
			if err := tx.InsertSlot(ctx, newSlot(4, models.StatusAvailable, "")); err != nil {
				return err
			}
			return tx.InsertSlot(ctx, newSlot(4, models.StatusBlocked, ""))
		})
		assert.ErrorIs(t, err, ErrSlotExists)
	})
}

func TestBookingLifecycleRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

	var ref string
	err := db.Atomically(ctx, func(tx domain.SlotTx) error {
		var err error
		ref, err = tx.NextReference(ctx, "WB", at)
		if err != nil {
			return err
		}
		b := &models.Booking{Reference: ref, CustomerName: "Ana", CustomerEmail: "ana@example.com"}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if err := tx.InsertSlot(ctx, newSlot(i, models.StatusBooked, ref)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "WB-2505-0001", ref)

	booking, err := db.BookingByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Ana", booking.CustomerName)

	slots, err := db.SlotsByReference(ctx, ref)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	t.Run("BookingStillReferenced", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error { return tx.DeleteBooking(ctx, ref) })
		assert.Error(t, err)
	})

	t.Run("ReleaseThenDelete", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error {
			for i := range slots {
				slots[i].Status = models.StatusAvailable
				slots[i].BookingReference = ""
				if err := tx.UpdateSlot(ctx, &slots[i]); err != nil {
					return err
				}
			}
			return tx.DeleteBooking(ctx, ref)
		})
		require.NoError(t, err)

		_, err = db.BookingByReference(ctx, ref)
		assert.ErrorIs(t, err, ErrBookingNotFound)

		left, err := db.SlotsByReference(ctx, ref)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("DeleteSlots", func(t *testing.T) {
		err := db.Atomically(ctx, func(tx domain.SlotTx) error {
			return tx.DeleteSlots(ctx, []int64{slots[0].ID, slots[1].ID})
		})
		require.NoError(t, err)

		err = db.Atomically(ctx, func(tx domain.SlotTx) error {
			return tx.DeleteSlots(ctx, []int64{slots[0].ID})
		})
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})
}

func TestNextReference_PerMonthSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	may := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var refs []string
	err := db.Atomically(ctx, func(tx domain.SlotTx) error {
		for _, at := range []time.Time{may, may, june, may} {
			ref, err := tx.NextReference(ctx, "WB", at)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"WB-2505-0001", "WB-2505-0002", "WB-2506-0001", "WB-2505-0003"}, refs)
}

func TestUpdateSlot_Missing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := newSlot(0, models.StatusAvailable, "")
	s.ID = 404
	err := db.Atomically(ctx, func(tx domain.SlotTx) error { return tx.UpdateSlot(ctx, s) })
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestOperatingHours(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.OperatingHours(ctx)
	assert.ErrorIs(t, err, ErrHoursNotConfigured)

	hours, err := models.HoursFromList([]models.DayHours{
		{Day: models.Monday, Open: models.NewClockTime(10, 0), Close: models.NewClockTime(20, 0)},
		{Day: models.Saturday, Open: models.NewClockTime(9, 0), Close: models.NewClockTime(21, 30)},
	})
	require.NoError(t, err)
	require.NoError(t, db.ReplaceOperatingHours(ctx, hours))

	got, err := db.OperatingHours(ctx)
	require.NoError(t, err)
	assert.Equal(t, hours, got)
	assert.True(t, got.Day(models.Sunday).Closed)

	rev, err := db.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	bad := hours
	bad[models.Monday].Close = models.NewClockTime(9, 0)
	assert.Error(t, db.ReplaceOperatingHours(ctx, bad))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "closed.db"), &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	_, err = db.SlotsInRange(ctx, day, day.Add(time.Hour))
	assert.Error(t, err)
	_, err = db.BookingByReference(ctx, "WB-2505-0001")
	assert.Error(t, err)
	_, err = db.Revision(ctx)
	assert.Error(t, err)
	_, err = db.OperatingHours(ctx)
	assert.Error(t, err)
	err = db.Atomically(ctx, func(domain.SlotTx) error { return nil })
	assert.Error(t, err)
}
