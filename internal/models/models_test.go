package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotStatus(t *testing.T) {
	t.Run("ParseKnown", func(t *testing.T) {
		for _, s := range []SlotStatus{StatusUnallocated, StatusAvailable, StatusBlocked, StatusBooked} {
			got, err := ParseSlotStatus(s.String())
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
	})

	t.Run("RejectsReserved", func(t *testing.T) {
		_, err := ParseSlotStatus("reserved")
		assert.Error(t, err)
	})

	t.Run("JSON", func(t *testing.T) {
		raw, err := json.Marshal(struct {
			S SlotStatus `json:"s"`
		}{StatusBlocked})
		require.NoError(t, err)
		assert.JSONEq(t, `{"s":"blocked"}`, string(raw))

		var out struct {
			S SlotStatus `json:"s"`
		}
		assert.Error(t, json.Unmarshal([]byte(`{"s":"pending"}`), &out))
	})

	t.Run("Persisted", func(t *testing.T) {
		assert.False(t, StatusUnallocated.Persisted())
		assert.True(t, StatusBooked.Persisted())
	})
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, Monday, WeekdayOf(time.Monday))
	assert.Equal(t, Sunday, WeekdayOf(time.Sunday))
	assert.Equal(t, Saturday, WeekdayOf(time.Saturday))
}

func TestClockTime(t *testing.T) {
	c, err := ParseClockTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, c.Hour())
	assert.Equal(t, 30, c.Minute())
	assert.True(t, c.Aligned())
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClockTime("24:00")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(MinutesPerDay), end)

	_, err = ParseClockTime("24:30")
	assert.Error(t, err)
	_, err = ParseClockTime("nine")
	assert.Error(t, err)

	odd, err := ParseClockTime("10:15")
	require.NoError(t, err)
	assert.False(t, odd.Aligned())
}

func TestOperatingHours(t *testing.T) {
	hours, err := HoursFromList([]DayHours{
		{Day: Monday, Open: NewClockTime(10, 0), Close: NewClockTime(18, 0)},
		{Day: Saturday, Open: NewClockTime(8, 0), Close: NewClockTime(21, 0)},
	})
	require.NoError(t, err)

	assert.True(t, hours.Day(Tuesday).Closed)
	assert.False(t, hours.Day(Monday).Closed)

	open, closing, ok := hours.Span()
	require.True(t, ok)
	assert.Equal(t, NewClockTime(8, 0), open)
	assert.Equal(t, NewClockTime(21, 0), closing)

	t.Run("Duplicate", func(t *testing.T) {
		_, err := HoursFromList([]DayHours{{Day: Monday, Open: 600, Close: 660}, {Day: Monday, Open: 600, Close: 660}})
		assert.Error(t, err)
	})

	t.Run("Misaligned", func(t *testing.T) {
		_, err := HoursFromList([]DayHours{{Day: Monday, Open: NewClockTime(10, 15), Close: NewClockTime(12, 0)}})
		assert.Error(t, err)
	})

	t.Run("AllClosed", func(t *testing.T) {
		var h OperatingHours
		for i := range h {
			h[i] = DayHours{Day: Weekday(i), Closed: true}
		}
		_, _, ok := h.Span()
		assert.False(t, ok)
	})
}

func TestSlotOverlaps(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := Slot{StartTime: base, EndTime: base.Add(SlotDuration)}

	assert.True(t, s.Overlaps(base.Add(-15*time.Minute), base.Add(15*time.Minute)))
	assert.False(t, s.Overlaps(base.Add(SlotDuration), base.Add(2*SlotDuration)))
	assert.False(t, s.Overlaps(base.Add(-SlotDuration), base))
	assert.Equal(t, SlotDuration, s.Duration())
}
