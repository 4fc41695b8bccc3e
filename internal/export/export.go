package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/service"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet = "Schedule"
	bookingsSheet = "Bookings"
)

// WeekSource renders a week grid.
type WeekSource interface {
	Week(ctx context.Context, anchor time.Time) (*service.WeekView, error)
}

// Exporter writes week grids as Excel workbooks.
type Exporter struct {
	weeks  WeekSource
	dir    string
	logger *zerolog.Logger
}

func NewExporter(weeks WeekSource, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{weeks: weeks, dir: dir, logger: logger}
}

// SaveWeek writes the week containing anchor into the export directory and
// returns the file path.
func (e *Exporter) SaveWeek(ctx context.Context, anchor time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	view, err := e.weeks.Week(ctx, anchor)
	if err != nil {
		return "", err
	}
	f, err := Workbook(view)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(view))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", filePath).Msg("Week export created")
	return filePath, nil
}

// WriteWeek streams the workbook for the week containing anchor to w.
func (e *Exporter) WriteWeek(ctx context.Context, anchor time.Time, w io.Writer) (string, error) {
	view, err := e.weeks.Week(ctx, anchor)
	if err != nil {
		return "", err
	}
	f, err := Workbook(view)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return "", fmt.Errorf("error writing workbook: %w", err)
	}
	return FileName(view), nil
}

func FileName(view *service.WeekView) string {
	return fmt.Sprintf("schedule_week_%s.xlsx", view.Monday)
}

// Workbook lays the week out with one column per day and one row per
// wall-clock time, plus a sheet listing the booking groups.
func Workbook(view *service.WeekView) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(scheduleSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(bookingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	loc := time.UTC
	if zone, err := localtime.Load(view.Timezone); err == nil {
		loc = zone.Location()
	}
	writeSchedule(f, view, st, loc)
	writeBookings(f, view, st, loc)
	return f, nil
}

type styles struct {
	title    int
	header   int
	closed   int
	byStatus map[models.SlotStatus]int
}

func newStyles(f *excelize.File) (*styles, error) {
	fill := func(color string) *excelize.Style {
		return &excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{
				Horizontal: "left",
				Vertical:   "top",
				WrapText:   true,
			},
		}
	}
	header := fill("#DDEBF7")
	header.Font = &excelize.Font{Bold: true}
	header.Alignment.Horizontal = "center"

	st := &styles{byStatus: make(map[models.SlotStatus]int)}
	var err error
	if st.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return nil, fmt.Errorf("error creating style: %w", err)
	}
	if st.header, err = f.NewStyle(header); err != nil {
		return nil, fmt.Errorf("error creating style: %w", err)
	}
	if st.closed, err = f.NewStyle(fill("#EDEDED")); err != nil {
		return nil, fmt.Errorf("error creating style: %w", err)
	}

	colors := map[models.SlotStatus]string{
		models.StatusUnallocated: "#FFFFFF",
		models.StatusAvailable:   "#C6EFCE",
		models.StatusBlocked:     "#FFEB9C",
		models.StatusBooked:      "#FFC7CE",
	}
	for status, color := range colors {
		id, err := f.NewStyle(fill(color))
		if err != nil {
			return nil, fmt.Errorf("error creating style: %w", err)
		}
		st.byStatus[status] = id
	}
	return st, nil
}

type rowKey struct{ hour, minute int }

func writeSchedule(f *excelize.File, view *service.WeekView, st *styles, loc *time.Location) {
	sheet := scheduleSheet
	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Week %s - %s (%s)",
		view.Start.In(loc).Format("02.01.2006"), view.End.Add(-time.Second).In(loc).Format("02.01.2006"), view.Timezone))
	lastCol, _ := excelize.ColumnNumberToName(models.DaysPerWeek + 1)
	_ = f.MergeCell(sheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(sheet, "A1", "A1", st.title)

	_ = f.SetCellValue(sheet, "A2", "Time")
	_ = f.SetCellStyle(sheet, "A2", "A2", st.header)
	for d := 0; d < models.DaysPerWeek; d++ {
		cell, _ := excelize.CoordinatesToCellName(d+2, 2)
		date := view.Monday.AddDays(d)
		_ = f.SetCellValue(sheet, cell, fmt.Sprintf("%s %s", models.Weekday(d), date))
		_ = f.SetCellStyle(sheet, cell, cell, st.header)
	}

	rows := make(map[rowKey]int)
	var keys []rowKey
	for _, c := range view.Cells {
		k := rowKey{c.Key.Hour, c.Key.Minute}
		if _, ok := rows[k]; !ok {
			rows[k] = 0
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hour != keys[j].hour {
			return keys[i].hour < keys[j].hour
		}
		return keys[i].minute < keys[j].minute
	})
	for i, k := range keys {
		row := i + 3
		rows[k] = row
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheet, cell, fmt.Sprintf("%02d:%02d", k.hour, k.minute))
		_ = f.SetCellStyle(sheet, cell, cell, st.header)
	}

	filled := make(map[string]bool)
	for _, c := range view.Cells {
		cell, _ := excelize.CoordinatesToCellName(int(c.Key.Day)+2, rows[rowKey{c.Key.Hour, c.Key.Minute}])
		// on the repeated hour after a DST change the first cell wins
		if filled[cell] {
			continue
		}
		filled[cell] = true

		_ = f.SetCellValue(sheet, cell, cellText(c))
		style := st.byStatus[c.Slot.Status]
		if !c.Open && c.Slot.Status == models.StatusUnallocated {
			style = st.closed
		}
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}

	_ = f.SetColWidth(sheet, "A", "A", 10)
	_ = f.SetColWidth(sheet, "B", lastCol, 24)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 2, TopLeftCell: "B3", ActivePane: "bottomRight"})
}

func cellText(c service.CellView) string {
	switch c.Slot.Status {
	case models.StatusBooked:
		if c.Booking != nil {
			return fmt.Sprintf("%s (%s)", c.Booking.CustomerName, c.Booking.Reference)
		}
		return c.Slot.BookingReference
	case models.StatusBlocked:
		return "Blocked: " + c.Slot.BlockReason
	case models.StatusAvailable:
		return "Available " + c.Slot.Price.StringFixed(2)
	}
	if !c.Open {
		return "closed"
	}
	return ""
}

func writeBookings(f *excelize.File, view *service.WeekView, st *styles, loc *time.Location) {
	sheet := bookingsSheet
	headers := []string{"Reference", "Customer", "Slots", "Start", "End"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, st.header)
	}

	names := make(map[string]string)
	for _, c := range view.Cells {
		if c.Booking != nil {
			names[c.Booking.Reference] = c.Booking.CustomerName
		}
	}

	for i, g := range view.Groups {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), g.Reference)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), names[g.Reference])
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), g.Count)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), g.Start.In(loc).Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), g.End.In(loc).Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 16)
	_ = f.SetColWidth(sheet, "B", "B", 25)
	_ = f.SetColWidth(sheet, "C", "C", 8)
	_ = f.SetColWidth(sheet, "D", "E", 18)
}
