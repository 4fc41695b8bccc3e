package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cablepark/internal/config"

	"github.com/rs/zerolog"
)

// localLayout is how the facility wall clock is printed next to the UTC timestamp.
const localLayout = "Mon 2006-01-02 15:04"

// New builds the process logger. Every line carries the app identity and the
// facility name, plus the facility's wall time when a timezone is set.
func New(cfg *config.Config) (*zerolog.Logger, io.Closer, error) {
	sink, closer, err := openSink(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	var zone *time.Location
	if tz := strings.TrimSpace(cfg.Facility.Timezone); tz != "" {
		if zone, err = time.LoadLocation(tz); err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, nil, fmt.Errorf("logging: facility timezone: %w", err)
		}
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Logging.Format), "console") {
		sink = zerolog.ConsoleWriter{Out: sink, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	ctx := zerolog.New(sink).Level(parseLevel(cfg.Logging.Level)).With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version)
	if cfg.Facility.Name != "" {
		ctx = ctx.Str("facility", cfg.Facility.Name)
	}
	logger := ctx.Logger()
	if zone != nil {
		logger = logger.Hook(wallClock{zone: zone, now: time.Now})
	}
	return &logger, closer, nil
}

// parseLevel falls back to info for empty or unknown levels.
func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// openSink resolves logging.output. Only file sinks need closing.
func openSink(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch out := strings.ToLower(strings.TrimSpace(cfg.Output)); out {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging: output %q needs file_path", out)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", cfg.FilePath, err)
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("logging: unknown output %q", cfg.Output)
	}
}

// wallClock stamps each event with the facility's local time.
type wallClock struct {
	zone *time.Location
	now  func() time.Time
}

func (h wallClock) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str("local", h.now().In(h.zone).Format(localLayout))
}

// Component returns a child logger tagged with the component name.
func Component(logger *zerolog.Logger, name string) *zerolog.Logger {
	l := logger.With().Str("component", name).Logger()
	return &l
}
