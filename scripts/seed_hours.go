package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cablepark/internal/database"
	"cablepark/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type HoursConfig struct {
	OperatingHours []models.DayHours `yaml:"operating_hours"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		hoursPath = flag.String("hours", "configs/config.yaml", "path to a YAML file with an operating_hours list")
		dbPath    = flag.String("db", "./data/schedule.db", "path to sqlite db")
		force     = flag.Bool("force", false, "overwrite hours that are already stored")
	)
	flag.Parse()

	data, err := os.ReadFile(*hoursPath)
	if err != nil {
		return fmt.Errorf("read hours: %w", err)
	}
	var cfg HoursConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse hours: %w", err)
	}
	if len(cfg.OperatingHours) == 0 {
		return fmt.Errorf("no operating_hours in yaml")
	}
	hours, err := models.HoursFromList(cfg.OperatingHours)
	if err != nil {
		return fmt.Errorf("invalid hours: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.OperatingHours(ctx); err == nil && !*force {
		fmt.Println("hours already configured; use -force to overwrite")
		return nil
	}
	if err := db.ReplaceOperatingHours(ctx, hours); err != nil {
		return fmt.Errorf("store hours: %w", err)
	}

	open := 0
	for _, d := range hours {
		if !d.Closed {
			open++
		}
	}
	fmt.Printf("done: open_days=%d closed_days=%d\n", open, models.DaysPerWeek-open)
	return nil
}
