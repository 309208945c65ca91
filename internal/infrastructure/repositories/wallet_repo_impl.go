package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/redis"
)

// WalletRepository stores wallets as JSON under wallet:<address> and their
// transaction index as a list under wallet:<address>:txs.
type WalletRepository struct {
	store *redis.Store
}

var _ repositories.WalletRepository = (*WalletRepository)(nil)

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(store *redis.Store) *WalletRepository {
	return &WalletRepository{store: store}
}

// Save writes the wallet, normalizing its address
func (r *WalletRepository) Save(ctx context.Context, wallet *entities.Wallet) error {
	wallet.Address = NormalizeAddress(wallet.Address)
	data, err := json.Marshal(wallet)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, walletKey(wallet.Address), data)
}

// GetByAddress gets a wallet by address in any case
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	raw, err := r.store.Get(ctx, walletKey(address))
	if errors.Is(err, redis.ErrNil) {
		return nil, domainerrors.NotFound(fmt.Sprintf("Wallet %s not found", address))
	}
	if err != nil {
		return nil, err
	}

	wallet := &entities.Wallet{}
	if err := json.Unmarshal([]byte(raw), wallet); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", address, err)
	}
	return wallet, nil
}

// ListAddresses returns every registered address
func (r *WalletRepository) ListAddresses(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, walletKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, walletTxsSuffix) {
			continue
		}
		addresses = append(addresses, strings.TrimPrefix(key, walletKeyPrefix))
	}
	return addresses, nil
}

// AppendTransaction prepends txID to the wallet index, newest first
func (r *WalletRepository) AppendTransaction(ctx context.Context, address, txID string) error {
	return r.store.LPush(ctx, walletTxsKey(address), txID)
}

// HasTransaction reports whether txID is in the wallet index
func (r *WalletRepository) HasTransaction(ctx context.Context, address, txID string) (bool, error) {
	return r.store.LContains(ctx, walletTxsKey(address), txID)
}

// ListTransactions returns a slice of the wallet index, stop -1 meaning all
func (r *WalletRepository) ListTransactions(ctx context.Context, address string, start, stop int64) ([]string, error) {
	return r.store.LRange(ctx, walletTxsKey(address), start, stop)
}

// CountTransactions returns the size of the wallet index
func (r *WalletRepository) CountTransactions(ctx context.Context, address string) (int64, error) {
	return r.store.LLen(ctx, walletTxsKey(address))
}
