package repository

import (
	"context"
	"sync/atomic"
	"time"

	"cablepark/internal/domain"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverGridCache serves from primary (Redis) and switches to fallback
// (memory) when primary errors. Primary is retried once a minute.
type FailoverGridCache struct {
	primary   domain.GridCache
	fallback  domain.GridCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverGridCache(primary, fallback domain.GridCache, logger *zerolog.Logger) *FailoverGridCache {
	return &FailoverGridCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverGridCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary grid cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverGridCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recheckInterval
}

func (r *FailoverGridCache) GetWeek(ctx context.Context, weekStart time.Time, revision int64) ([]byte, bool, error) {
	if r.usePrimary() {
		payload, ok, err := r.primary.GetWeek(ctx, weekStart, revision)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary grid cache recovered")
			}
			return payload, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetWeek(ctx, weekStart, revision)
}

func (r *FailoverGridCache) SetWeek(ctx context.Context, weekStart time.Time, revision int64, payload []byte) error {
	if r.usePrimary() {
		err := r.primary.SetWeek(ctx, weekStart, revision, payload)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetWeek(ctx, weekStart, revision, payload)
}

func (r *FailoverGridCache) Degraded() bool { return r.isDown.Load() }

var (
	_ domain.GridCache = (*RedisGridCache)(nil)
	_ domain.GridCache = (*MemoryGridCache)(nil)
	_ domain.GridCache = (*FailoverGridCache)(nil)
)
