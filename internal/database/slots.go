package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cablepark/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const slotColumns = `id, start_unix, end_unix, price, status, booking_reference, block_reason, created_at, updated_at`

func (db *DB) SlotsInRange(ctx context.Context, from, to time.Time) ([]models.Slot, error) {
	return slotsInRange(ctx, db.DB, from, to)
}

func (db *DB) SlotsByIDs(ctx context.Context, ids []int64) ([]models.Slot, error) {
	return slotsByIDs(ctx, db.DB, ids)
}

func (db *DB) SlotsByReference(ctx context.Context, reference string) ([]models.Slot, error) {
	return slotsByReference(ctx, db.DB, reference)
}

func slotsInRange(ctx context.Context, q querier, from, to time.Time) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE start_unix >= ? AND start_unix < ? ORDER BY start_unix ASC`
	return querySlots(ctx, q, query, from.Unix(), to.Unix())
}

func slotsByIDs(ctx context.Context, q querier, ids []int64) ([]models.Slot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY start_unix ASC`
	return querySlots(ctx, q, query, args...)
}

func slotsByReference(ctx context.Context, q querier, reference string) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE booking_reference = ? ORDER BY start_unix ASC`
	return querySlots(ctx, q, query, reference)
}

func querySlots(ctx context.Context, q querier, query string, args ...any) ([]models.Slot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}
	return slots, nil
}

func scanSlot(rows *sql.Rows) (models.Slot, error) {
	var (
		s                    models.Slot
		startUnix, endUnix   int64
		createdAt, updatedAt int64
		price, status        string
		reference            sql.NullString
	)
	err := rows.Scan(&s.ID, &startUnix, &endUnix, &price, &status, &reference, &s.BlockReason, &createdAt, &updatedAt)
	if err != nil {
		return s, fmt.Errorf("failed to scan slot: %w", err)
	}

	s.StartTime = time.Unix(startUnix, 0).UTC()
	s.EndTime = time.Unix(endUnix, 0).UTC()
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	s.BookingReference = reference.String
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return s, fmt.Errorf("slot %d has invalid price %q: %w", s.ID, price, err)
	}
	if s.Status, err = models.ParseSlotStatus(status); err != nil {
		return s, fmt.Errorf("slot %d: %w", s.ID, err)
	}
	return s, nil
}

func validateRow(slot *models.Slot) error {
	if slot.Duration() != models.SlotDuration {
		return fmt.Errorf("%w: slot must last %s, got %s", ErrInvalidSlot, models.SlotDuration, slot.Duration())
	}
	if !slot.Status.Persisted() {
		return fmt.Errorf("%w: status %s is never stored", ErrInvalidSlot, slot.Status)
	}
	if (slot.Status == models.StatusBooked) != (slot.BookingReference != "") {
		return fmt.Errorf("%w: only booked slots carry a booking reference", ErrInvalidSlot)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
