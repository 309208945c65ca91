package usecases

import (
	"context"

	"sepolia-wallet.backend/internal/domain/repositories"
)

type blockHeightReader interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// ScanCursor is the persisted last fully scanned block height
type ScanCursor struct {
	repo  repositories.CursorRepository
	chain blockHeightReader
}

// NewScanCursor creates a cursor backed by repo
func NewScanCursor(repo repositories.CursorRepository, chain blockHeightReader) *ScanCursor {
	return &ScanCursor{repo: repo, chain: chain}
}

// LoadOrInitialize returns the stored height, seeding it with the current
// chain height on first use so a fresh deployment never scans from genesis.
func (c *ScanCursor) LoadOrInitialize(ctx context.Context) (uint64, error) {
	height, found, err := c.repo.Get(ctx)
	if err != nil || found {
		return height, err
	}

	current, err := c.chain.GetBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return c.repo.AdvanceTo(ctx, current)
}

// Current returns the stored height, 0 when never initialized
func (c *ScanCursor) Current(ctx context.Context) (uint64, error) {
	height, _, err := c.repo.Get(ctx)
	return height, err
}

// Advance persists height unless the stored value is already higher
func (c *ScanCursor) Advance(ctx context.Context, height uint64) (uint64, error) {
	return c.repo.AdvanceTo(ctx, height)
}
