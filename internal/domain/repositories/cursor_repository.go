package repositories

import "context"

// CursorRepository persists the last fully scanned block height
type CursorRepository interface {
	// Get returns found=false when no cursor was ever stored.
	Get(ctx context.Context) (height uint64, found bool, err error)
	// AdvanceTo stores height unless the stored value is already higher and
	// returns the value now stored.
	AdvanceTo(ctx context.Context, height uint64) (uint64, error)
}
