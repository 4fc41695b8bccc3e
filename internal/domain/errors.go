package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cablepark/internal/models"
)

// Sentinels let callers classify failures with errors.Is without caring about
// the concrete error type.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("booking conflict")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state transition")
)

// ValidationError reports malformed input: bad ranges, empty batches,
// misaligned times.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Conflict is one persisted booked slot overlapping a requested window.
type Conflict struct {
	SlotID           int64     `json:"slot_id"`
	BookingReference string    `json:"booking_reference"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
}

// ConflictError is raised only by the commit-time check and is the one
// conflict signal callers should surface to users.
type ConflictError struct {
	Conflicts []Conflict
}

// Remediation is the user-facing advice attached to a conflict.
const Remediation = "one or more of the selected times were just booked; please pick different times"

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("[%s, %s)", c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339)))
	}
	return fmt.Sprintf("booking conflict with %d slot(s): %s", len(e.Conflicts), strings.Join(parts, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Ranges returns the exact overlapping intervals.
func (e *ConflictError) Ranges() []models.TimeRange {
	out := make([]models.TimeRange, len(e.Conflicts))
	for i, c := range e.Conflicts {
		out[i] = models.TimeRange{Start: c.Start, End: c.End}
	}
	return out
}

// NotFoundError reports a missing slot or booking.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StateError reports a transition the slot lifecycle does not allow.
type StateError struct {
	SlotID int64
	From   models.SlotStatus
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("slot %d: cannot %s a slot that is %s", e.SlotID, e.Action, e.From)
}

func (e *StateError) Is(target error) bool { return target == ErrState }
