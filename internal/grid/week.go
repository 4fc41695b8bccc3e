package grid

import (
	"sort"
	"time"

	"cablepark/internal/localtime"
	"cablepark/internal/models"
)

// Key addresses a grid cell by local day index and wall-clock time.
type Key struct {
	Day    models.Weekday `json:"day"`
	Hour   int            `json:"hour"`
	Minute int            `json:"minute"`
}

type Cell struct {
	Key  Key            `json:"key"`
	Date localtime.Date `json:"date"`
	// Open is false for cells outside that day's operating hours.
	Open bool        `json:"open"`
	Slot models.Slot `json:"slot"`
}

// Week is the grid for one local Monday-to-Sunday week.
type Week struct {
	Monday localtime.Date `json:"monday"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Cells  []Cell         `json:"cells"`

	index map[Key]int
}

// EphemeralID is the sentinel id of the unallocated cell at (day, clock).
// It is stable across regenerations of the same week.
func EphemeralID(day models.Weekday, clock models.ClockTime) int64 {
	return -(1 + int64(day)*models.MinutesPerDay + int64(clock))
}

func IsEphemeral(id int64) bool { return id < 0 }

// Week builds the grid for the local week containing anchor. persisted should
// be the rows starting inside that week; any row that does not land on a
// generated cell is still included so nothing stored goes missing.
func (g *Generator) Week(anchor time.Time, persisted []models.Slot) *Week {
	monday := localtime.WeekOf(g.zone.DateOf(anchor))
	w := &Week{
		Monday: monday,
		Start:  g.zone.DayStart(monday),
		End:    g.zone.DayStart(monday.AddDays(models.DaysPerWeek)),
	}

	byStart := make(map[int64]models.Slot, len(persisted))
	for _, s := range persisted {
		if s.StartTime.Before(w.Start) || !s.StartTime.Before(w.End) {
			continue
		}
		byStart[s.StartTime.Unix()] = s
	}

	if open, closing, ok := g.hours.Span(); ok {
		last := int(closing) + 60
		if last > models.MinutesPerDay {
			last = models.MinutesPerDay
		}
		for d := 0; d < models.DaysPerWeek; d++ {
			day := models.Weekday(d)
			date := monday.AddDays(d)
			hours := g.hours.Day(day)
			for m := int(open); m < last; m += models.SlotMinutes {
				clock := models.ClockTime(m)
				if !g.zone.Exists(date, clock) {
					continue
				}
				start := g.zone.Wall(date, clock)
				slot, ok := byStart[start.Unix()]
				if ok {
					delete(byStart, start.Unix())
				} else {
					slot = models.Slot{
						ID:        EphemeralID(day, clock),
						StartTime: start,
						EndTime:   start.Add(models.SlotDuration),
						Price:     g.price,
						Status:    models.StatusUnallocated,
					}
				}
				w.Cells = append(w.Cells, Cell{
					Key:  Key{Day: day, Hour: clock.Hour(), Minute: clock.Minute()},
					Date: date,
					Open: !hours.Closed && clock >= hours.Open && clock < hours.Close,
					Slot: slot,
				})
			}
		}
	}

	for _, s := range byStart {
		local := g.zone.Local(s.StartTime)
		day := g.zone.DayIndex(s.StartTime)
		hours := g.hours.Day(day)
		clock := g.zone.ClockOf(s.StartTime)
		w.Cells = append(w.Cells, Cell{
			Key:  Key{Day: day, Hour: local.Hour(), Minute: local.Minute()},
			Date: g.zone.DateOf(s.StartTime),
			Open: !hours.Closed && clock >= hours.Open && clock < hours.Close,
			Slot: s,
		})
	}

	sort.SliceStable(w.Cells, func(i, j int) bool {
		return w.Cells[i].Slot.StartTime.Before(w.Cells[j].Slot.StartTime)
	})
	w.reindex()
	return w
}

func (w *Week) reindex() {
	w.index = make(map[Key]int, len(w.Cells))
	for i, c := range w.Cells {
		if _, taken := w.index[c.Key]; !taken {
			w.index[c.Key] = i
		}
	}
}

// Cell looks a cell up by local day index and wall-clock time.
func (w *Week) Cell(day models.Weekday, hour, minute int) (Cell, bool) {
	if w.index == nil {
		w.reindex()
	}
	i, ok := w.index[Key{Day: day, Hour: hour, Minute: minute}]
	if !ok {
		return Cell{}, false
	}
	return w.Cells[i], true
}

// Slots returns every cell's slot in start order.
func (w *Week) Slots() []models.Slot {
	out := make([]models.Slot, len(w.Cells))
	for i, c := range w.Cells {
		out[i] = c.Slot
	}
	return out
}

// Persisted returns only the slots backed by stored rows.
func (w *Week) Persisted() []models.Slot {
	var out []models.Slot
	for _, c := range w.Cells {
		if c.Slot.IsPersisted() {
			out = append(out, c.Slot)
		}
	}
	return out
}
