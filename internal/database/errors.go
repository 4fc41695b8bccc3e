package database

import (
	"errors"
	"fmt"

	"cablepark/internal/domain"
)

// Not-found and overlap errors wrap the domain sentinels so callers can
// classify them without importing this package.
var (
	ErrSlotNotFound       = fmt.Errorf("slot %w", domain.ErrNotFound)
	ErrBookingNotFound    = fmt.Errorf("booking %w", domain.ErrNotFound)
	ErrSlotExists         = fmt.Errorf("a slot already starts at this time: %w", domain.ErrConflict)
	ErrInvalidSlot        = errors.New("invalid slot row")
	ErrHoursNotConfigured = errors.New("operating hours are not configured")
	ErrDuplicateReference = errors.New("booking reference already exists")
)
