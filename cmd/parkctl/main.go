// Command parkctl drives the schedule API from a terminal: it shows the week
// grid, books and cancels guest slots, and runs admin bulk actions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cablepark/internal/client"
	"cablepark/internal/grid"
	"cablepark/internal/lifecycle"
	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const usage = `usage: parkctl <command> [flags]

commands:
  grid     [-week DATE]                         print the week grid
  preview  -date DATE -start HH:MM -minutes N   check a window
  book     -date DATE -start HH:MM -minutes N -name NAME -email EMAIL
  show     REFERENCE                            print a booking
  cancel   [-mode release|delete] REFERENCE
  block    -reason TEXT CELL...                 CELL is a slot id or DATE@HH:MM
  release  -price N CELL...
  clear    CELL...
  hours    -file FILE                           replace operating hours from YAML
  export   [-week DATE] [-o FILE]               download the week workbook

environment: PARKCTL_URL, PARKCTL_API_KEY, PARKCTL_API_EXTRA, PARKCTL_REDIS`

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logger.Error().Err(err).Msg("parkctl failed")
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	c, closeCache := newClient()
	defer closeCache()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "grid":
		return cmdGrid(ctx, c, rest, out)
	case "preview":
		return cmdPreview(ctx, c, rest, out)
	case "book":
		return cmdBook(ctx, c, rest, out)
	case "show":
		return cmdShow(ctx, c, rest, out)
	case "cancel":
		return cmdCancel(ctx, c, rest, out)
	case "block":
		return cmdBulk(ctx, c, lifecycle.Block, rest, out)
	case "release":
		return cmdBulk(ctx, c, lifecycle.MakeAvailable, rest, out)
	case "clear":
		return cmdBulk(ctx, c, lifecycle.Clear, rest, out)
	case "hours":
		return cmdHours(ctx, c, rest, out)
	case "export":
		return cmdExport(ctx, c, rest, out)
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func newClient() (*client.Client, func()) {
	baseURL := os.Getenv("PARKCTL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := client.New(baseURL, os.Getenv("PARKCTL_API_KEY"), os.Getenv("PARKCTL_API_EXTRA"))

	addr := os.Getenv("PARKCTL_REDIS")
	if addr == "" {
		return c, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	c.UseRedisCache(rdb, 30*time.Second)
	return c, func() { _ = rdb.Close() }
}

func cmdGrid(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("grid", flag.ContinueOnError)
	week := fs.String("week", "", "any date in the week, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := optionalDate(*week)
	if err != nil {
		return err
	}
	view, err := c.Week(ctx, date)
	if err != nil {
		return err
	}
	return printGrid(view, out)
}

func windowFlags(fs *flag.FlagSet) (date, start *string, minutes *int) {
	date = fs.String("date", "", "local date, YYYY-MM-DD")
	start = fs.String("start", "", "local start time, HH:MM")
	minutes = fs.Int("minutes", 30, "length in minutes")
	return date, start, minutes
}

func parseWindow(date, start string, minutes int) (grid.WindowRequest, error) {
	d, err := localtime.ParseDate(date)
	if err != nil {
		return grid.WindowRequest{}, err
	}
	s, err := models.ParseClockTime(start)
	if err != nil {
		return grid.WindowRequest{}, err
	}
	return grid.WindowRequest{Date: d, Start: s, DurationMinutes: minutes}, nil
}

func cmdPreview(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	date, start, minutes := windowFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := parseWindow(*date, *start, *minutes)
	if err != nil {
		return err
	}
	preview, err := c.Preview(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(out, preview)
}

func cmdBook(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	date, start, minutes := windowFlags(fs)
	var customer models.Customer
	fs.StringVar(&customer.Name, "name", "", "guest name")
	fs.StringVar(&customer.Email, "email", "", "guest email")
	fs.StringVar(&customer.Phone, "phone", "", "guest phone, E.164")
	fs.StringVar(&customer.Notes, "notes", "", "free text")
	fs.BoolVar(&customer.EquipmentRental, "rental", false, "guest rents equipment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	window, err := parseWindow(*date, *start, *minutes)
	if err != nil {
		return err
	}
	res, err := c.CreateBooking(ctx, service.BookingRequest{
		Date:            window.Date,
		Start:           window.Start,
		DurationMinutes: window.DurationMinutes,
		Customer:        customer,
	})
	if err != nil {
		return explain(err)
	}
	return printJSON(out, res)
}

func cmdShow(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("show needs exactly one booking reference")
	}
	view, err := c.GetBooking(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(out, view)
}

func cmdCancel(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	mode := fs.String("mode", string(service.CancelRelease), "release or delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("cancel needs exactly one booking reference")
	}
	cancelMode, err := service.ParseCancelMode(*mode)
	if err != nil {
		return err
	}
	res, err := c.CancelBooking(ctx, fs.Arg(0), cancelMode)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func cmdBulk(ctx context.Context, c *client.Client, action lifecycle.Action, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(action.String(), flag.ContinueOnError)
	reason := fs.String("reason", "", "why the slots are blocked")
	price := fs.String("price", "", "price for released slots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no cells given")
	}

	if action == lifecycle.MakeAvailable && *price == "" {
		return errors.New("release needs -price")
	}

	req := service.BulkRequest{Action: action, Reason: *reason}
	if *price != "" {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", *price, err)
		}
		req.Price = &p
	}

	targets, err := resolveTargets(ctx, c, fs.Args())
	if err != nil {
		return err
	}
	req.Targets = targets

	res, err := c.ApplyBulk(ctx, req)
	if err != nil {
		return explain(err)
	}
	return printJSON(out, res)
}

// resolveTargets turns slot ids and DATE@HH:MM cells into bulk targets.
// Cells are looked up in their week grid so unallocated ones carry their
// sentinel id and bounds.
func resolveTargets(ctx context.Context, c *client.Client, cells []string) ([]service.Target, error) {
	weeks := make(map[localtime.Date]*service.WeekView)
	targets := make([]service.Target, 0, len(cells))
	for _, raw := range cells {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			targets = append(targets, service.Target{ID: id})
			continue
		}

		datePart, clockPart, ok := strings.Cut(raw, "@")
		if !ok {
			return nil, fmt.Errorf("cell %q: want a slot id or DATE@HH:MM", raw)
		}
		date, err := localtime.ParseDate(datePart)
		if err != nil {
			return nil, fmt.Errorf("cell %q: %w", raw, err)
		}
		clock, err := models.ParseClockTime(clockPart)
		if err != nil {
			return nil, fmt.Errorf("cell %q: %w", raw, err)
		}

		monday := localtime.WeekOf(date)
		view, ok := weeks[monday]
		if !ok {
			if view, err = c.Week(ctx, monday); err != nil {
				return nil, err
			}
			weeks[monday] = view
		}
		cell, ok := view.Cell(date.Weekday(), clock.Hour(), clock.Minute())
		if !ok || !cell.Open {
			return nil, fmt.Errorf("cell %q is outside operating hours", raw)
		}
		targets = append(targets, service.Target{ID: cell.Slot.ID, Start: cell.Slot.StartTime, End: cell.Slot.EndTime})
	}
	return targets, nil
}

func cmdHours(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hours", flag.ContinueOnError)
	path := fs.String("file", "configs/config.yaml", "YAML file with an operating_hours list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read hours: %w", err)
	}
	var doc struct {
		OperatingHours []models.DayHours `yaml:"operating_hours"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse hours: %w", err)
	}
	if len(doc.OperatingHours) == 0 {
		return errors.New("no operating_hours in yaml")
	}
	hours, err := c.ReplaceHours(ctx, doc.OperatingHours)
	if err != nil {
		return err
	}
	return printJSON(out, hours)
}

func cmdExport(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	week := fs.String("week", "", "any date in the week, YYYY-MM-DD")
	target := fs.String("o", "", "output file; the server's file name by default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := optionalDate(*week)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(".", "parkctl-export-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, err := c.Export(ctx, date, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if *target == "" {
		*target = name
	}
	if *target == "" {
		*target = "schedule_week.xlsx"
	}
	if err := os.Rename(tmp.Name(), *target); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, *target)
	return err
}

func optionalDate(raw string) (localtime.Date, error) {
	if raw == "" {
		return localtime.Date{}, nil
	}
	return localtime.ParseDate(raw)
}

// explain adds the conflicting slots to a conflict error.
func explain(err error) error {
	var apiErr *client.Error
	if !errors.As(err, &apiErr) || len(apiErr.Conflicts) == 0 {
		return err
	}
	var b strings.Builder
	b.WriteString(apiErr.Remediation)
	for _, c := range apiErr.Conflicts {
		fmt.Fprintf(&b, "\n  slot %d %s-%s held by %s", c.SlotID,
			c.Start.Format("2006-01-02 15:04"), c.End.Format("15:04"), c.BookingReference)
	}
	return fmt.Errorf("%w\n%s", err, b.String())
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
