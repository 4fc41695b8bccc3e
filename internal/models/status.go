package models

import (
	"fmt"
	"strings"
)

// SlotStatus is the closed set of slot states. The zero value is Unallocated,
// which is never written to storage.
type SlotStatus uint8

const (
	StatusUnallocated SlotStatus = iota
	StatusAvailable
	StatusBlocked
	StatusBooked
)

var statusNames = [...]string{
	StatusUnallocated: "unallocated",
	StatusAvailable:   "available",
	StatusBlocked:     "blocked",
	StatusBooked:      "booked",
}

func (s SlotStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("SlotStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the declared states.
func (s SlotStatus) Valid() bool {
	return int(s) < len(statusNames)
}

// Persisted reports whether a row with this status can exist in storage.
func (s SlotStatus) Persisted() bool {
	switch s {
	case StatusAvailable, StatusBlocked, StatusBooked:
		return true
	case StatusUnallocated:
		return false
	}
	return false
}

// ParseSlotStatus maps a stored or transmitted name to a SlotStatus. Unknown
// names, including the retired "reserved" hold, are rejected.
func ParseSlotStatus(raw string) (SlotStatus, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, n := range statusNames {
		if n == name {
			return SlotStatus(i), nil
		}
	}
	return StatusUnallocated, fmt.Errorf("unknown slot status %q", raw)
}

func (s SlotStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid slot status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SlotStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSlotStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
