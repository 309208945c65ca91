package repositories

import (
	"context"

	"sepolia-wallet.backend/internal/domain/entities"
)

// WalletRepository defines wallet data operations. Addresses are
// normalized by the implementation, callers may pass any case.
type WalletRepository interface {
	Save(ctx context.Context, wallet *entities.Wallet) error
	GetByAddress(ctx context.Context, address string) (*entities.Wallet, error)
	ListAddresses(ctx context.Context) ([]string, error)
	AppendTransaction(ctx context.Context, address, txID string) error
	HasTransaction(ctx context.Context, address, txID string) (bool, error)
	ListTransactions(ctx context.Context, address string, start, stop int64) ([]string, error)
	CountTransactions(ctx context.Context, address string) (int64, error)
}
