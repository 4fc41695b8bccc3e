package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cablepark/internal/events"
	"cablepark/internal/localtime"
	"cablepark/internal/metrics"
	"cablepark/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultQueueKey      = "exports:queue"
	defaultDeadLetterKey = "exports:deadletter"
)

// Task asks for the workbook of one week to be rebuilt.
type Task struct {
	Week      time.Time `json:"week"`
	Reason    string    `json:"reason"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WeekExporter writes the workbook for the week containing anchor.
type WeekExporter interface {
	SaveWeek(ctx context.Context, anchor time.Time) (string, error)
}

// ExportWorker keeps the week workbooks on disk in step with the schedule.
// Tasks travel through Redis when a client is configured, otherwise through
// an in-process channel.
type ExportWorker struct {
	exporter      WeekExporter
	zone          *localtime.Zone
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan Task
	redisQueueKey string
	deadLetterKey string
	logger        *zerolog.Logger

	// after schedules a retry; replaced in tests.
	after func(time.Duration, func())

	mu      sync.Mutex
	pending map[int64]struct{}
}

// NewExportWorker builds a worker. redisClient may be nil.
func NewExportWorker(
	exporter WeekExporter,
	zone *localtime.Zone,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *ExportWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExportWorker{
		exporter:      exporter,
		zone:          zone,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan Task, 128),
		redisQueueKey: defaultQueueKey,
		deadLetterKey: defaultDeadLetterKey,
		logger:        logger,
		after:         func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		pending:       make(map[int64]struct{}),
	}
}

// Subscribe enqueues a refresh for every week touched by a schedule event.
func (w *ExportWorker) Subscribe(bus *events.EventBus) {
	bus.Subscribe(func(event *events.Event) error {
		var span struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		}
		if err := json.Unmarshal(event.Payload, &span); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		if span.Start.IsZero() {
			return nil
		}
		if !span.End.After(span.Start) {
			span.End = span.Start.Add(time.Nanosecond)
		}

		var errs []error
		for week := w.zone.WeekStart(span.Start); week.Before(span.End); week = w.nextWeek(week) {
			errs = append(errs, w.Enqueue(context.Background(), week, event.Type))
		}
		return errors.Join(errs...)
	}, events.AllTypes...)
}

// Enqueue schedules a refresh of the week containing anchor. A week that is
// already waiting is not queued twice.
func (w *ExportWorker) Enqueue(ctx context.Context, anchor time.Time, reason string) error {
	if anchor.IsZero() {
		return errors.New("week anchor is required")
	}
	week := w.zone.WeekStart(anchor)

	w.mu.Lock()
	if _, ok := w.pending[week.Unix()]; ok {
		w.mu.Unlock()
		return nil
	}
	w.pending[week.Unix()] = struct{}{}
	w.mu.Unlock()

	return w.push(ctx, Task{Week: week, Reason: reason, CreatedAt: time.Now()})
}

// Start consumes tasks until ctx is done.
func (w *ExportWorker) Start(ctx context.Context) {
	w.logger.Info().Bool("redis", w.redis != nil).Msg("export worker started")
	defer w.logger.Info().Msg("export worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if w.redis != nil {
			if t, ok := w.tryRedis(ctx); ok {
				w.processTask(ctx, t)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, t)
		}
	}
}

func (w *ExportWorker) push(ctx context.Context, task Task) error {
	if w.redis != nil {
		err := w.pushRedis(ctx, w.redisQueueKey, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
	}

	select {
	case w.queue <- task:
		return nil
	default:
		w.forget(task.Week)
		return fmt.Errorf("export queue full, week %s dropped", task.Week.Format(time.DateOnly))
	}
}

func (w *ExportWorker) tryLocalQueue() (Task, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return Task{}, false
	}
}

func (w *ExportWorker) tryRedis(ctx context.Context) (Task, bool) {
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP failed")
			time.Sleep(time.Second)
		}
		return Task{}, false
	}
	if len(res) != 2 {
		return Task{}, false
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode export task")
		return Task{}, false
	}
	return task, true
}

func (w *ExportWorker) processTask(ctx context.Context, task Task) {
	// Changes arriving while the file is written queue a fresh run.
	if task.Attempt == 0 {
		w.forget(task.Week)
	}

	path, err := w.exporter.SaveWeek(ctx, task.Week)
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	metrics.IncExport("ok")
	w.logger.Debug().
		Str("week", task.Week.Format(time.DateOnly)).
		Str("reason", task.Reason).
		Str("path", path).
		Msg("week workbook refreshed")
}

func (w *ExportWorker) retryOrFail(ctx context.Context, task Task, cause error) {
	task.Attempt++
	task.LastError = cause.Error()

	if task.Attempt >= w.retryPolicy.MaxRetries {
		metrics.IncExport("failed")
		w.logger.Error().Err(cause).
			Str("week", task.Week.Format(time.DateOnly)).
			Int("attempts", task.Attempt).
			Msg("week export failed")
		w.pushDeadLetter(ctx, task)
		return
	}

	metrics.IncExport("retry")
	delay := w.retryPolicy.NextDelay(task.Attempt)
	w.logger.Warn().Err(cause).
		Str("week", task.Week.Format(time.DateOnly)).
		Int("attempt", task.Attempt).
		Dur("delay", delay).
		Msg("week export failed, retrying")

	w.after(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.push(ctx, task); err != nil {
			w.logger.Error().Err(err).Msg("requeue export task")
		}
	})
}

func (w *ExportWorker) pushRedis(ctx context.Context, key string, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *ExportWorker) pushDeadLetter(ctx context.Context, task Task) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Msg("dead letter push failed")
	}
}

func (w *ExportWorker) forget(week time.Time) {
	w.mu.Lock()
	delete(w.pending, week.Unix())
	w.mu.Unlock()
}

func (w *ExportWorker) nextWeek(week time.Time) time.Time {
	return w.zone.DayStart(w.zone.DateOf(week).AddDays(models.DaysPerWeek))
}
