package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cablepark/internal/config"
	"cablepark/internal/events"
	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = localtime.MustLoad("Europe/Berlin")

type fakeExporter struct {
	mu    sync.Mutex
	fails int
	calls []time.Time
}

func (f *fakeExporter) SaveWeek(_ context.Context, anchor time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, anchor)
	if f.fails > 0 {
		f.fails--
		return "", errors.New("disk full")
	}
	return "schedule_week_" + anchor.Format(time.DateOnly) + ".xlsx", nil
}

// newTestWorker runs retries inline and records their delays.
func newTestWorker(exp WeekExporter, retry RetryPolicy) (*ExportWorker, *[]time.Duration) {
	w := NewExportWorker(exp, berlin, nil, retry, nil)
	var delays []time.Duration
	w.after = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}
	return w, &delays
}

func drain(ctx context.Context, w *ExportWorker) {
	for {
		t, ok := w.tryLocalQueue()
		if !ok {
			return
		}
		w.processTask(ctx, t)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))

	assert.Equal(t, 2*time.Second, RetryPolicy{}.NextDelay(1))
}

func TestEnqueueDeduplicatesWeek(t *testing.T) {
	exp := &fakeExporter{}
	w, _ := newTestWorker(exp, RetryPolicy{})
	ctx := context.Background()

	tuesday := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 5, 25, 18, 0, 0, 0, time.UTC)
	require.NoError(t, w.Enqueue(ctx, tuesday, "test"))
	require.NoError(t, w.Enqueue(ctx, sunday, "test"))
	assert.Len(t, w.queue, 1)

	drain(ctx, w)
	require.Len(t, exp.calls, 1)
	assert.Equal(t, time.Date(2025, 5, 19, 0, 0, 0, 0, berlin.Location()), exp.calls[0].In(berlin.Location()))

	// Once processed the week can be queued again.
	require.NoError(t, w.Enqueue(ctx, tuesday, "test"))
	assert.Len(t, w.queue, 1)
}

func TestEnqueueRequiresAnchor(t *testing.T) {
	w, _ := newTestWorker(&fakeExporter{}, RetryPolicy{})
	assert.Error(t, w.Enqueue(context.Background(), time.Time{}, "test"))
}

func TestProcessTaskRetriesWithBackoff(t *testing.T) {
	exp := &fakeExporter{fails: 2}
	w, delays := newTestWorker(exp, RetryPolicy{MaxRetries: 5, InitialDelay: 10 * time.Millisecond, BackoffFactor: 2})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC), "test"))
	drain(ctx, w)

	assert.Len(t, exp.calls, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *delays)
}

func TestProcessTaskGivesUpToDeadLetter(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := repository.NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer repository.Close(client)

	exp := &fakeExporter{fails: 10}
	w := NewExportWorker(exp, berlin, client, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil)
	w.after = func(_ time.Duration, f func()) { f() }
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC), "test"))
	for i := 0; i < 3; i++ {
		task, ok := w.tryRedis(ctx)
		require.True(t, ok, "attempt %d", i)
		assert.Equal(t, i, task.Attempt)
		w.processTask(ctx, task)
	}

	assert.Len(t, exp.calls, 3)
	queued, err := client.LLen(ctx, defaultQueueKey).Result()
	require.NoError(t, err)
	assert.Zero(t, queued)

	raw, err := client.LRange(ctx, defaultDeadLetterKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var dead Task
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &dead))
	assert.Equal(t, 3, dead.Attempt)
	assert.Equal(t, "disk full", dead.LastError)
}

func TestSubscribeQueuesTouchedWeeks(t *testing.T) {
	exp := &fakeExporter{}
	w, _ := newTestWorker(exp, RetryPolicy{})
	bus := events.NewEventBus()
	w.Subscribe(bus)

	// Sunday evening to Monday morning spans two weeks.
	require.NoError(t, bus.PublishJSON(models.EventBookingCreated, events.BookingEventPayload{
		Reference: "WB-2505-0001",
		Start:     time.Date(2025, 5, 25, 20, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 5, 26, 7, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, bus.PublishJSON(models.EventSlotsBlocked, events.SlotEventPayload{
		Action: "block",
		Start:  time.Date(2025, 5, 21, 8, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 5, 21, 8, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, bus.PublishJSON(models.EventSlotsCleared, events.SlotEventPayload{Action: "clear"}))

	drain(context.Background(), w)

	loc := berlin.Location()
	require.Len(t, exp.calls, 2)
	assert.Equal(t, time.Date(2025, 5, 19, 0, 0, 0, 0, loc), exp.calls[0].In(loc))
	assert.Equal(t, time.Date(2025, 5, 26, 0, 0, 0, 0, loc), exp.calls[1].In(loc))
}

func TestStartStopsOnCancel(t *testing.T) {
	exp := &fakeExporter{}
	w, _ := newTestWorker(exp, RetryPolicy{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, w.Enqueue(ctx, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC), "test"))
	require.Eventually(t, func() bool {
		exp.mu.Lock()
		defer exp.mu.Unlock()
		return len(exp.calls) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
