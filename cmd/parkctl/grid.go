package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"cablepark/internal/models"
	"cablepark/internal/service"
)

// printGrid writes one row per wall-clock time and one column per day.
func printGrid(view *service.WeekView, out io.Writer) error {
	type rowKey struct{ hour, minute int }
	rows := make(map[rowKey][models.DaysPerWeek]string)
	for _, c := range view.Cells {
		k := rowKey{c.Key.Hour, c.Key.Minute}
		row := rows[k]
		if row[c.Key.Day] == "" {
			row[c.Key.Day] = cellLabel(c)
		}
		rows[k] = row
	}

	keys := make([]rowKey, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hour != keys[j].hour {
			return keys[i].hour < keys[j].hour
		}
		return keys[i].minute < keys[j].minute
	})

	fmt.Fprintf(out, "week of %s (%s), revision %d\n", view.Monday, view.Timezone, view.Revision)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "time")
	for d := models.Monday; d <= models.Sunday; d++ {
		fmt.Fprintf(tw, "\t%s %s", d, view.Monday.AddDays(int(d)))
	}
	fmt.Fprintln(tw)
	for _, k := range keys {
		fmt.Fprintf(tw, "%02d:%02d", k.hour, k.minute)
		for _, label := range rows[k] {
			fmt.Fprintf(tw, "\t%s", label)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func cellLabel(c service.CellView) string {
	if !c.Open {
		return "."
	}
	switch c.Slot.Status {
	case models.StatusBooked:
		if c.Booking != nil {
			return c.Booking.Reference
		}
		return c.Slot.BookingReference
	case models.StatusBlocked:
		return "blocked"
	case models.StatusAvailable:
		return c.Slot.Price.StringFixed(2)
	}
	return "-"
}
