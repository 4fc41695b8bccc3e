package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cablepark/internal/models"
)

func (db *DB) BookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return bookingByReference(ctx, db.DB, reference)
}

func bookingByReference(ctx context.Context, q querier, reference string) (*models.Booking, error) {
	var (
		booking   models.Booking
		createdAt int64
	)
	query := `SELECT id, reference, customer_name, customer_email, customer_phone, notes, equipment_rental, created_at
              FROM bookings WHERE reference = ?`
	err := q.QueryRowContext(ctx, query, reference).Scan(
		&booking.ID, &booking.Reference, &booking.CustomerName, &booking.CustomerEmail,
		&booking.CustomerPhone, &booking.Notes, &booking.EquipmentRental, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	booking.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &booking, nil
}

// BookingsByReferences loads several bookings at once. Missing references are
// left out of the result.
func (db *DB) BookingsByReferences(ctx context.Context, references []string) (map[string]*models.Booking, error) {
	out := make(map[string]*models.Booking, len(references))
	if len(references) == 0 {
		return out, nil
	}
	args := make([]any, len(references))
	for i, r := range references {
		args[i] = r
	}
	query := `SELECT id, reference, customer_name, customer_email, customer_phone, notes, equipment_rental, created_at
              FROM bookings WHERE reference IN (` + placeholders(len(references)) + `)`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b         models.Booking
			createdAt int64
		)
		if err := rows.Scan(&b.ID, &b.Reference, &b.CustomerName, &b.CustomerEmail,
			&b.CustomerPhone, &b.Notes, &b.EquipmentRental, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		out[b.Reference] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return out, nil
}
