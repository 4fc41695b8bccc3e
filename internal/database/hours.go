package database

import (
	"context"
	"fmt"

	"cablepark/internal/models"
)

// OperatingHours implements domain.HoursProvider.
func (db *DB) OperatingHours(ctx context.Context) (models.OperatingHours, error) {
	var hours models.OperatingHours

	rows, err := db.QueryContext(ctx, `SELECT day, open_minute, close_minute, closed FROM operating_hours ORDER BY day`)
	if err != nil {
		return hours, fmt.Errorf("failed to query operating hours: %w", err)
	}
	defer rows.Close()

	var list []models.DayHours
	for rows.Next() {
		var d models.DayHours
		if err := rows.Scan(&d.Day, &d.Open, &d.Close, &d.Closed); err != nil {
			return hours, fmt.Errorf("failed to scan operating hours: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return hours, fmt.Errorf("failed to iterate operating hours: %w", err)
	}
	if len(list) == 0 {
		return hours, ErrHoursNotConfigured
	}
	return models.HoursFromList(list)
}

// ReplaceOperatingHours overwrites all seven days in one transaction and
// bumps the schedule revision so cached grids are rebuilt.
func (db *DB) ReplaceOperatingHours(ctx context.Context, hours models.OperatingHours) error {
	if err := hours.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM operating_hours`); err != nil {
		return fmt.Errorf("failed to clear operating hours: %w", err)
	}
	for _, d := range hours {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO operating_hours (day, open_minute, close_minute, closed) VALUES (?, ?, ?, ?)`,
			int(d.Day), int(d.Open), int(d.Close), d.Closed)
		if err != nil {
			return fmt.Errorf("failed to store hours for %s: %w", d.Day, err)
		}
	}
	if err := bumpRevision(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit operating hours: %w", err)
	}
	db.logger.Info().Msg("Operating hours replaced")
	return nil
}
