package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/redis"
)

// CursorRepository keeps the monitor cursor at monitor:lastScannedBlock
type CursorRepository struct {
	store *redis.Store
}

var _ repositories.CursorRepository = (*CursorRepository)(nil)

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(store *redis.Store) *CursorRepository {
	return &CursorRepository{store: store}
}

func (r *CursorRepository) Get(ctx context.Context) (uint64, bool, error) {
	raw, err := r.store.Get(ctx, cursorKey)
	if errors.Is(err, redis.ErrNil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	height, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode cursor %q: %w", raw, err)
	}
	return height, true, nil
}

// AdvanceTo never lowers the stored height. A corrupt stored value is
// overwritten.
func (r *CursorRepository) AdvanceTo(ctx context.Context, height uint64) (uint64, error) {
	stored := height
	err := r.store.Update(ctx, cursorKey, func(current string, exists bool) (string, bool, error) {
		stored = height
		if exists {
			if prev, err := strconv.ParseUint(current, 10, 64); err == nil && prev >= height {
				stored = prev
				return "", false, nil
			}
		}
		return strconv.FormatUint(height, 10), true, nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}
