package models

import "time"

const (
	// SlotDuration is the only slot length the facility sells.
	SlotDuration = 30 * time.Minute

	// SlotMinutes is SlotDuration expressed in minutes.
	SlotMinutes = 30

	// MinutesPerDay bounds ClockTime values; 24:00 is a valid closing time.
	MinutesPerDay = 24 * 60

	// DaysPerWeek is the number of canonical local weekdays.
	DaysPerWeek = 7
)

const (
	// DefaultReferencePrefix prefixes generated booking references (WB-2505-0031).
	DefaultReferencePrefix = "WB"

	// DefaultMaxBookingDays limits how far ahead a guest may book.
	DefaultMaxBookingDays = 90

	// DefaultGridCacheTTL время жизни закэшированной недели
	DefaultGridCacheTTL = 10 * 60 // 10 минут в секундах
)

const (
	EventBookingCreated  = "booking_created"
	EventBookingCanceled = "booking_canceled"
	EventSlotsBlocked    = "slots_blocked"
	EventSlotsReleased   = "slots_released"
	EventSlotsCleared    = "slots_cleared"
	EventSlotsBooked     = "slots_booked"
)
