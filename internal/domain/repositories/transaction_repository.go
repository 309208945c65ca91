package repositories

import (
	"context"

	"sepolia-wallet.backend/internal/domain/entities"
)

// MutateFunc edits a transaction in place. Returning false leaves the
// stored record untouched.
type MutateFunc func(tx *entities.Transaction) (bool, error)

// TransactionRepository defines transaction data operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByID(ctx context.Context, id string) (*entities.Transaction, error)
	// Update overwrites the record unconditionally (last writer wins).
	Update(ctx context.Context, tx *entities.Transaction) error
	// Mutate applies fn under an optimistic check on the stored version and
	// returns the record as persisted. Terminal records are returned as-is
	// without calling fn.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*entities.Transaction, error)

	// ClaimHash binds hash to id unless another id already holds it.
	ClaimHash(ctx context.Context, hash, id string) (bool, error)
	ReleaseHash(ctx context.Context, hash string) error
	FindIDByHash(ctx context.Context, hash string) (string, error)
	ReindexHashes(ctx context.Context) (int, error)
}
