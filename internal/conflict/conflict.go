// Package conflict finds booked slots overlapping requested windows.
package conflict

import (
	"sort"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/models"
)

// Detect returns every booked slot in existing whose [start, end) overlaps
// [start, end). Touching intervals do not overlap.
func Detect(start, end time.Time, existing []models.Slot) []domain.Conflict {
	var out []domain.Conflict
	for _, s := range existing {
		if s.Status != models.StatusBooked {
			continue
		}
		if s.Overlaps(start, end) {
			out = append(out, conflictOf(s))
		}
	}
	return out
}

// DetectAll checks a whole candidate set. Results are unique per slot and
// ordered by start.
func DetectAll(windows []models.TimeRange, existing []models.Slot) []domain.Conflict {
	seen := make(map[int64]bool)
	var out []domain.Conflict
	for _, w := range windows {
		for _, c := range Detect(w.Start, w.End, existing) {
			if seen[c.SlotID] {
				continue
			}
			seen[c.SlotID] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].SlotID < out[j].SlotID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Advisory is the pre-submit check. Its answer may be stale by commit time.
func Advisory(windows []models.TimeRange, existing []models.Slot) []domain.Conflict {
	return DetectAll(windows, existing)
}

// Authoritative must run inside the transaction that writes the candidate
// set. Any overlap rejects the whole set.
func Authoritative(windows []models.TimeRange, existing []models.Slot) error {
	found := DetectAll(windows, existing)
	if len(found) == 0 {
		return nil
	}
	return &domain.ConflictError{Conflicts: found}
}

// Ranges converts slots to the windows they occupy.
func Ranges(slots []models.Slot) []models.TimeRange {
	out := make([]models.TimeRange, len(slots))
	for i, s := range slots {
		out[i] = s.Range()
	}
	return out
}

// Span returns one window covering all of slots, for range queries.
func Span(windows []models.TimeRange) (time.Time, time.Time) {
	if len(windows) == 0 {
		return time.Time{}, time.Time{}
	}
	from, to := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}
	return from, to
}

func conflictOf(s models.Slot) domain.Conflict {
	return domain.Conflict{
		SlotID:           s.ID,
		BookingReference: s.BookingReference,
		Start:            s.StartTime,
		End:              s.EndTime,
	}
}
