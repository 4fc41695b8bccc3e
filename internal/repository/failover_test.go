package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetWeek(ctx context.Context, weekStart time.Time, revision int64) ([]byte, bool, error) {
	args := m.Called(ctx, weekStart, revision)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *mockCache) SetWeek(ctx context.Context, weekStart time.Time, revision int64, payload []byte) error {
	args := m.Called(ctx, weekStart, revision, payload)
	return args.Error(0)
}

func TestFailoverGridCache(t *testing.T) {
	primary := new(mockCache)
	fallback := NewMemoryGridCache(time.Hour)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverGridCache(primary, fallback, &logger)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	week := time.Date(2025, 5, 25, 22, 0, 0, 0, time.UTC)

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("GetWeek", ctx, week, int64(1)).Return([]byte("p"), true, nil).Once()

		got, ok, err := cache.GetWeek(ctx, week, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "p", string(got))
		assert.False(t, cache.Degraded())
	})

	t.Run("PrimaryFailsUsesFallback", func(t *testing.T) {
		primary.On("SetWeek", ctx, week, int64(2), []byte("f")).Return(errors.New("connection refused")).Once()

		require.NoError(t, cache.SetWeek(ctx, week, 2, []byte("f")))
		assert.True(t, cache.Degraded())

		got, ok, err := cache.GetWeek(ctx, week, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "f", string(got))
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("GetWeek", ctx, week, int64(2)).Return(nil, false, nil).Once()

		_, ok, err := cache.GetWeek(ctx, week, 2)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, cache.Degraded())
	})

	primary.AssertExpectations(t)
}
