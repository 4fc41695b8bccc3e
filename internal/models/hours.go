package models

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the canonical local day index: 0 = Monday ... 6 = Sunday.
// time.Weekday (0 = Sunday) must never be used to index grids.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func (d Weekday) String() string {
	if d < 0 || int(d) >= len(weekdayNames) {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// WeekdayOf converts a Go weekday to the canonical index.
func WeekdayOf(wd time.Weekday) Weekday {
	return Weekday((int(wd) + 6) % 7)
}

func ParseWeekday(raw string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, n := range weekdayNames {
		if n == name || n[:3] == name {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}

func (d Weekday) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ClockTime is a local wall-clock time of day in minutes after midnight.
// 24:00 (MinutesPerDay) is accepted as a closing time.
type ClockTime int

func NewClockTime(hour, minute int) ClockTime { return ClockTime(hour*60 + minute) }

func ParseClockTime(raw string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", raw)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q", raw)
	}
	return NewClockTime(h, m), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

// Aligned reports whether c falls on a slot boundary (:00 or :30).
func (c ClockTime) Aligned() bool { return int(c)%SlotMinutes == 0 }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DayHours is the opening window of one canonical weekday.
type DayHours struct {
	Day    Weekday   `yaml:"day" json:"day"`
	Open   ClockTime `yaml:"open" json:"open"`
	Close  ClockTime `yaml:"close" json:"close"`
	Closed bool      `yaml:"closed" json:"closed"`
}

// OperatingHours is indexed by canonical Weekday.
type OperatingHours [DaysPerWeek]DayHours

// Day returns the hours for d.
func (h OperatingHours) Day(d Weekday) DayHours { return h[d] }

// Span returns the earliest opening and latest closing time over all open
// days. ok is false when every day is closed.
func (h OperatingHours) Span() (open, closing ClockTime, ok bool) {
	for _, d := range h {
		if d.Closed {
			continue
		}
		if !ok || d.Open < open {
			open = d.Open
		}
		if !ok || d.Close > closing {
			closing = d.Close
		}
		ok = true
	}
	return open, closing, ok
}

// Validate checks that each day is indexed correctly and open days have a
// non-empty slot-aligned window.
func (h OperatingHours) Validate() error {
	for i, d := range h {
		if d.Day != Weekday(i) {
			return fmt.Errorf("operating hours entry %d is for %s", i, d.Day)
		}
		if d.Closed {
			continue
		}
		if d.Close <= d.Open {
			return fmt.Errorf("%s: close %s must be after open %s", d.Day, d.Close, d.Open)
		}
		if d.Close > MinutesPerDay {
			return fmt.Errorf("%s: close %s is past midnight", d.Day, d.Close)
		}
		if !d.Open.Aligned() || !d.Close.Aligned() {
			return fmt.Errorf("%s: hours must be aligned to %d minutes", d.Day, SlotMinutes)
		}
	}
	return nil
}

// HoursFromList places entries into canonical positions; days not listed are
// closed.
func HoursFromList(list []DayHours) (OperatingHours, error) {
	var out OperatingHours
	seen := make(map[Weekday]bool, len(list))
	for i := range out {
		out[i] = DayHours{Day: Weekday(i), Closed: true}
	}
	for _, d := range list {
		if d.Day < Monday || d.Day > Sunday {
			return out, fmt.Errorf("invalid weekday %d", int(d.Day))
		}
		if seen[d.Day] {
			return out, fmt.Errorf("duplicate operating hours for %s", d.Day)
		}
		seen[d.Day] = true
		out[d.Day] = d
	}
	return out, out.Validate()
}
