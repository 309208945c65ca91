package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/redis"
)

// TransactionRepository stores transactions as JSON under transaction:<id>
// and a hash index under txhash:<hash>.
type TransactionRepository struct {
	store *redis.Store
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(store *redis.Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

func transactionNotFound(id string) error {
	return domainerrors.NotFound(fmt.Sprintf("Transaction %s not found", id))
}

func decodeTransaction(raw string) (*entities.Transaction, error) {
	tx := &entities.Transaction{}
	if err := json.Unmarshal([]byte(raw), tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Create stores a new record at version 1. Reusing an id is a conflict.
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.Transaction) error {
	tx.Version = 1
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	ok, err := r.store.SetNX(ctx, transactionKey(tx.ID), data, 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, domainerrors.ErrConflict)
	}
	return nil
}

// GetByID gets a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*entities.Transaction, error) {
	raw, err := r.store.Get(ctx, transactionKey(id))
	if errors.Is(err, redis.ErrNil) {
		return nil, transactionNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	tx, err := decodeTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	return tx, nil
}

// Update overwrites the record and bumps its version
func (r *TransactionRepository) Update(ctx context.Context, tx *entities.Transaction) error {
	tx.Version++
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, transactionKey(tx.ID), data)
}

// Mutate runs fn against the stored record inside a WATCH/MULTI round so
// two writers never overwrite each other's status transition. fn may run
// more than once when the round is retried.
func (r *TransactionRepository) Mutate(ctx context.Context, id string, fn repositories.MutateFunc) (*entities.Transaction, error) {
	var result *entities.Transaction
	err := r.store.Update(ctx, transactionKey(id), func(current string, exists bool) (string, bool, error) {
		if !exists {
			return "", false, transactionNotFound(id)
		}
		tx, err := decodeTransaction(current)
		if err != nil {
			return "", false, fmt.Errorf("decode transaction %s: %w", id, err)
		}
		result = tx
		if tx.IsTerminal() {
			return "", false, nil
		}

		changed, err := fn(tx)
		if err != nil || !changed {
			return "", false, err
		}
		tx.Version++
		data, err := json.Marshal(tx)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	})
	if errors.Is(err, redis.ErrTxConflict) {
		return nil, fmt.Errorf("transaction %s: %w", id, domainerrors.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClaimHash binds hash to id. Claiming a hash already bound to the same id
// succeeds.
func (r *TransactionRepository) ClaimHash(ctx context.Context, hash, id string) (bool, error) {
	ok, err := r.store.SetNX(ctx, txHashKey(hash), id, 0)
	if err != nil || ok {
		return ok, err
	}
	owner, err := r.FindIDByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	return owner == id, nil
}

// ReleaseHash drops the hash binding
func (r *TransactionRepository) ReleaseHash(ctx context.Context, hash string) error {
	return r.store.Del(ctx, txHashKey(hash))
}

// FindIDByHash returns the id bound to hash, or "" when none is
func (r *TransactionRepository) FindIDByHash(ctx context.Context, hash string) (string, error) {
	id, err := r.store.Get(ctx, txHashKey(hash))
	if errors.Is(err, redis.ErrNil) {
		return "", nil
	}
	return id, err
}

// ReindexHashes binds the hash of every stored record that is missing from
// the index and returns how many were added. Undecodable records are
// skipped.
func (r *TransactionRepository) ReindexHashes(ctx context.Context) (int, error) {
	keys, err := r.store.Keys(ctx, transactionKeyPrefix+"*")
	if err != nil {
		return 0, err
	}

	added := 0
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if errors.Is(err, redis.ErrNil) {
			continue
		}
		if err != nil {
			return added, err
		}
		tx, err := decodeTransaction(raw)
		if err != nil {
			logger.Warn(ctx, "Skipping undecodable transaction record", zap.String("key", key), zap.Error(err))
			continue
		}
		if tx.TransactionHash == "" {
			continue
		}
		ok, err := r.store.SetNX(ctx, txHashKey(tx.TransactionHash), tx.ID, 0)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}
