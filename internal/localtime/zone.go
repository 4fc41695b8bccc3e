// Package localtime converts between stored instants and facility wall time.
// All week and day arithmetic for the grid goes through a Zone.
package localtime

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"cablepark/internal/models"
)

// Zone is the facility's IANA time zone.
type Zone struct {
	loc *time.Location
}

func Load(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// MustLoad is Load for package-level fixtures and tests.
func MustLoad(name string) *Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) Name() string { return z.loc.String() }

// Local renders t in facility time.
func (z *Zone) Local(t time.Time) time.Time { return t.In(z.loc) }

// DateOf returns the facility-local calendar date of t.
func (z *Zone) DateOf(t time.Time) Date { return DateOf(t.In(z.loc)) }

// DayIndex returns the canonical local weekday of t.
func (z *Zone) DayIndex(t time.Time) models.Weekday {
	return models.WeekdayOf(t.In(z.loc).Weekday())
}

// ClockOf returns the facility-local time of day of t.
func (z *Zone) ClockOf(t time.Time) models.ClockTime {
	l := t.In(z.loc)
	return models.NewClockTime(l.Hour(), l.Minute())
}

// Wall converts a local wall-clock value to an instant. A wall time that
// occurs twice (clocks set back) resolves to its earlier occurrence; a wall
// time skipped by a forward transition resolves to the transition instant,
// the earliest valid instant after it. A clock of 24:00 or more rolls into
// the following days.
func (z *Zone) Wall(d Date, clock models.ClockTime) time.Time {
	d, minutes := normalize(d, clock)
	naive := time.Date(d.Year, d.Month, d.Day, minutes/60, minutes%60, 0, 0, time.UTC)

	var best time.Time
	found := false
	for _, off := range z.offsetsNear(naive) {
		cand := naive.Add(-time.Duration(off) * time.Second)
		if z.rendersAs(cand, naive) && (!found || cand.Before(best)) {
			best, found = cand, true
		}
	}
	if found {
		return best.In(z.loc)
	}
	return z.gapEnd(naive).In(z.loc)
}

// Exists reports whether the wall time occurs at all on date d.
func (z *Zone) Exists(d Date, clock models.ClockTime) bool {
	d, minutes := normalize(d, clock)
	naive := time.Date(d.Year, d.Month, d.Day, minutes/60, minutes%60, 0, 0, time.UTC)
	return z.rendersAs(z.Wall(d, models.ClockTime(minutes)), naive)
}

// DayStart is local midnight of d.
func (z *Zone) DayStart(d Date) time.Time { return z.Wall(d, 0) }

// WeekOf returns the Monday of the local week containing d.
func WeekOf(d Date) Date { return d.AddDays(-int(d.Weekday())) }

// WeekStart returns local Monday 00:00 of the week containing t.
func (z *Zone) WeekStart(t time.Time) time.Time {
	return z.DayStart(WeekOf(z.DateOf(t)))
}

// WeekBounds returns [Monday 00:00, next Monday 00:00) in local time for the
// week containing t.
func (z *Zone) WeekBounds(t time.Time) (time.Time, time.Time) {
	monday := WeekOf(z.DateOf(t))
	return z.DayStart(monday), z.DayStart(monday.AddDays(models.DaysPerWeek))
}

func normalize(d Date, clock models.ClockTime) (Date, int) {
	minutes := int(clock)
	if minutes >= models.MinutesPerDay {
		d = d.AddDays(minutes / models.MinutesPerDay)
		minutes %= models.MinutesPerDay
	}
	return d, minutes
}

func (z *Zone) offset(t time.Time) int {
	_, off := t.In(z.loc).Zone()
	return off
}

func (z *Zone) offsetsNear(naive time.Time) []int {
	offs := make([]int, 0, 3)
	for _, shift := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		off := z.offset(naive.Add(shift))
		dup := false
		for _, o := range offs {
			if o == off {
				dup = true
				break
			}
		}
		if !dup {
			offs = append(offs, off)
		}
	}
	return offs
}

func (z *Zone) rendersAs(t, naive time.Time) bool {
	l := t.In(z.loc)
	return l.Year() == naive.Year() && l.Month() == naive.Month() && l.Day() == naive.Day() &&
		l.Hour() == naive.Hour() && l.Minute() == naive.Minute() && l.Second() == 0
}

// gapEnd finds the transition instant that skipped naive.
func (z *Zone) gapEnd(naive time.Time) time.Time {
	offs := z.offsetsNear(naive)
	minOff, maxOff := offs[0], offs[0]
	for _, o := range offs[1:] {
		if o < minOff {
			minOff = o
		}
		if o > maxOff {
			maxOff = o
		}
	}
	lo := naive.Add(-time.Duration(maxOff) * time.Second)
	hi := naive.Add(-time.Duration(minOff) * time.Second)
	if minOff == maxOff {
		return lo
	}
	loOff := z.offset(lo)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if mid.Equal(lo) {
			break
		}
		if z.offset(mid) == loOff {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}
