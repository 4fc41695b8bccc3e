// Package lifecycle is the slot state machine.
package lifecycle

import (
	"fmt"
	"strings"

	"cablepark/internal/domain"
	"cablepark/internal/models"

	"github.com/shopspring/decimal"
)

type Action uint8

const (
	Book Action = iota + 1
	Cancel
	Clear
	Block
	MakeAvailable
)

var actionNames = map[Action]string{
	Book:          "book",
	Cancel:        "cancel",
	Clear:         "clear",
	Block:         "block",
	MakeAvailable: "make_available",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ParseAction accepts the action names plus "release" for MakeAvailable.
func ParseAction(raw string) (Action, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	if name == "release" {
		return MakeAvailable, nil
	}
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, domain.NewValidationError("action", "unknown action %q", raw)
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

type transition struct {
	from   models.SlotStatus
	action Action
}

var table = map[transition]models.SlotStatus{
	{models.StatusAvailable, Book}:            models.StatusBooked,
	{models.StatusUnallocated, Book}:          models.StatusBooked,
	{models.StatusBooked, Cancel}:             models.StatusAvailable,
	{models.StatusBooked, Clear}:              models.StatusUnallocated,
	{models.StatusAvailable, Clear}:           models.StatusUnallocated,
	{models.StatusBlocked, Clear}:             models.StatusUnallocated,
	{models.StatusAvailable, Block}:           models.StatusBlocked,
	{models.StatusBlocked, MakeAvailable}:     models.StatusAvailable,
	{models.StatusUnallocated, MakeAvailable}: models.StatusAvailable,
}

// Next returns the status reached by applying action to a slot in from.
// A result of StatusUnallocated means the row is deleted.
func Next(from models.SlotStatus, action Action) (models.SlotStatus, error) {
	to, ok := table[transition{from, action}]
	if !ok {
		return from, &domain.StateError{From: from, Action: action.String()}
	}
	return to, nil
}

// Allowed reports whether action is legal from status.
func Allowed(from models.SlotStatus, action Action) bool {
	_, ok := table[transition{from, action}]
	return ok
}

// Params carries the inputs some transitions need.
type Params struct {
	// Reason is required by Block.
	Reason string
	// Price is required by MakeAvailable and replaces the slot price.
	Price *decimal.Decimal
	// MinPrice is the facility minimum an available slot must meet.
	MinPrice decimal.Decimal
	// Reference is required by Book.
	Reference string
}

// Check validates the transition and its parameters without changing slot.
func Check(slot models.Slot, action Action, p Params) error {
	_, err := Apply(slot, action, p)
	return err
}

// Apply returns slot after action. Cleared slots come back unallocated and
// must be deleted by the caller.
func Apply(slot models.Slot, action Action, p Params) (models.Slot, error) {
	to, ok := table[transition{slot.Status, action}]
	if !ok {
		return slot, &domain.StateError{SlotID: slot.ID, From: slot.Status, Action: action.String()}
	}

	switch action {
	case Book:
		if strings.TrimSpace(p.Reference) == "" {
			return slot, domain.NewValidationError("reference", "is required to book slot %d", slot.ID)
		}
		slot.BookingReference = p.Reference
		slot.BlockReason = ""
	case Cancel, Clear:
		slot.BookingReference = ""
		slot.BlockReason = ""
	case Block:
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			return slot, domain.NewValidationError("reason", "is required to block slot %d", slot.ID)
		}
		slot.BlockReason = reason
		slot.BookingReference = ""
	case MakeAvailable:
		if p.Price == nil {
			return slot, domain.NewValidationError("price", "is required to make slot %d available", slot.ID)
		}
		slot.Price = *p.Price
		if slot.Price.LessThan(p.MinPrice) {
			return slot, domain.NewValidationError("price", "%s is below the minimum of %s", slot.Price.StringFixed(2), p.MinPrice.StringFixed(2))
		}
		slot.BlockReason = ""
		slot.BookingReference = ""
	}
	slot.Status = to
	return slot, nil
}
