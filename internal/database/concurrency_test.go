package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cablepark/internal/conflict"
	"cablepark/internal/domain"
	"cablepark/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	window := []models.TimeRange{newSlot(0, models.StatusBooked, "x").Range()}

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- db.Atomically(ctx, func(tx domain.SlotTx) error {
				existing, err := tx.SlotsInRange(ctx, window[0].Start, window[0].End)
				if err != nil {
					return err
				}
				if err := conflict.Authoritative(window, existing); err != nil {
					return err
				}
				ref := fmt.Sprintf("WB-2506-%04d", id+1)
				if err := tx.InsertBooking(ctx, &models.Booking{Reference: ref, CustomerName: "Rider", CustomerEmail: "r@example.com"}); err != nil {
					return err
				}
				return tx.InsertSlot(ctx, newSlot(0, models.StatusBooked, ref))
			})
		}(i)
	}

	wg.Wait()
	close(results)

	successCount, conflictCount := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrConflict):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "only one writer may book the slot")
	assert.Equal(t, numGoroutines-1, conflictCount)

	slots, err := db.SlotsInRange(ctx, window[0].Start, window[0].End)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}
