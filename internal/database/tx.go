package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/models"
)

// slotTx implements domain.SlotTx on top of one BEGIN IMMEDIATE transaction.
type slotTx struct {
	tx    *sql.Tx
	now   time.Time
	dirty bool
}

var _ domain.SlotTx = (*slotTx)(nil)

func (t *slotTx) SlotsInRange(ctx context.Context, from, to time.Time) ([]models.Slot, error) {
	return slotsInRange(ctx, t.tx, from, to)
}

func (t *slotTx) SlotsByIDs(ctx context.Context, ids []int64) ([]models.Slot, error) {
	return slotsByIDs(ctx, t.tx, ids)
}

func (t *slotTx) SlotsByReference(ctx context.Context, reference string) ([]models.Slot, error) {
	return slotsByReference(ctx, t.tx, reference)
}

func (t *slotTx) BookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return bookingByReference(ctx, t.tx, reference)
}

func (t *slotTx) Revision(ctx context.Context) (int64, error) {
	return revision(ctx, t.tx)
}

func (t *slotTx) InsertSlot(ctx context.Context, slot *models.Slot) error {
	if err := validateRow(slot); err != nil {
		return err
	}
	query := `INSERT INTO slots (start_unix, end_unix, price, status, booking_reference, block_reason, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := t.tx.ExecContext(ctx, query,
		slot.StartTime.Unix(),
		slot.EndTime.Unix(),
		slot.Price.String(),
		slot.Status.String(),
		nullable(slot.BookingReference),
		slot.BlockReason,
		t.now.Unix(),
		t.now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrSlotExists, slot.StartTime.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to insert slot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	slot.ID = id
	slot.CreatedAt = time.Unix(t.now.Unix(), 0).UTC()
	slot.UpdatedAt = slot.CreatedAt
	t.dirty = true
	return nil
}

// UpdateSlot writes status, price, reference and block reason. Start and end
// of a stored slot never change.
func (t *slotTx) UpdateSlot(ctx context.Context, slot *models.Slot) error {
	if err := validateRow(slot); err != nil {
		return err
	}
	query := `UPDATE slots SET price = ?, status = ?, booking_reference = ?, block_reason = ?, updated_at = ?
              WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, query,
		slot.Price.String(),
		slot.Status.String(),
		nullable(slot.BookingReference),
		slot.BlockReason,
		t.now.Unix(),
		slot.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update slot %d: %w", slot.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update slot %d: %w", slot.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrSlotNotFound, slot.ID)
	}
	slot.UpdatedAt = time.Unix(t.now.Unix(), 0).UTC()
	t.dirty = true
	return nil
}

func (t *slotTx) DeleteSlots(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	result, err := t.tx.ExecContext(ctx, `DELETE FROM slots WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}
	if int(rows) != len(ids) {
		return fmt.Errorf("%w: deleted %d of %d", ErrSlotNotFound, rows, len(ids))
	}
	t.dirty = true
	return nil
}

func (t *slotTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (reference, customer_name, customer_email, customer_phone, notes, equipment_rental, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := t.tx.ExecContext(ctx, query,
		booking.Reference,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.CustomerPhone,
		booking.Notes,
		booking.EquipmentRental,
		t.now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, booking.Reference)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = time.Unix(t.now.Unix(), 0).UTC()
	t.dirty = true
	return nil
}

// DeleteBooking removes the booking row. Its slots must already have been
// released or deleted.
func (t *slotTx) DeleteBooking(ctx context.Context, reference string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE reference = ?`, reference)
	if err != nil {
		return fmt.Errorf("failed to delete booking %s: %w", reference, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete booking %s: %w", reference, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrBookingNotFound, reference)
	}
	t.dirty = true
	return nil
}

// NextReference returns PREFIX-YYMM-NNNN where YYMM is taken from at, which
// callers pass in facility-local time. The sequence restarts every month.
func (t *slotTx) NextReference(ctx context.Context, prefix string, at time.Time) (string, error) {
	period := at.Format("0601")
	query := `INSERT INTO reference_counters (period, value) VALUES (?, 1)
              ON CONFLICT(period) DO UPDATE SET value = value + 1
              RETURNING value`
	var seq int64
	if err := t.tx.QueryRowContext(ctx, query, prefix+"-"+period).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to allocate booking reference: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, period, seq), nil
}
