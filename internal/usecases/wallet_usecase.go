package usecases

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/ethunit"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/utils"
)

// WalletUsecase handles wallet business logic
type WalletUsecase struct {
	walletRepo repositories.WalletRepository
	chain      ChainGateway
	now        func() time.Time
}

// NewWalletUsecase creates a new wallet usecase
func NewWalletUsecase(walletRepo repositories.WalletRepository, chain ChainGateway) *WalletUsecase {
	return &WalletUsecase{walletRepo: walletRepo, chain: chain, now: time.Now}
}

// CreateWallet generates a key pair and registers it with a zero balance
func (u *WalletUsecase) CreateWallet(ctx context.Context) (*entities.Wallet, error) {
	kp, err := u.chain.CreateWallet()
	if err != nil {
		return nil, err
	}

	wallet := &entities.Wallet{
		Address:    kp.Address,
		PrivateKey: kp.PrivateKey,
		Balance:    "0",
		CreatedAt:  u.now().UTC(),
	}
	if err := u.walletRepo.Save(ctx, wallet); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Wallet created", zap.String("address", wallet.Address))
	return wallet, nil
}

// ImportWallet registers the wallet of an existing private key with its
// live balance. Re-importing keeps the original creation time.
func (u *WalletUsecase) ImportWallet(ctx context.Context, privateKey string) (*entities.Wallet, error) {
	kp, err := u.chain.WalletFromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	balance, err := u.chain.GetBalance(ctx, kp.Address)
	if err != nil {
		return nil, err
	}

	createdAt := u.now().UTC()
	existing, err := u.walletRepo.GetByAddress(ctx, kp.Address)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.Is(err, domainerrors.ErrNotFound):
		return nil, err
	}

	wallet := &entities.Wallet{
		Address:    kp.Address,
		PrivateKey: kp.PrivateKey,
		Balance:    balance.String(),
		CreatedAt:  createdAt,
	}
	if err := u.walletRepo.Save(ctx, wallet); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Wallet imported", zap.String("address", wallet.Address), zap.String("balance", wallet.Balance))
	return wallet, nil
}

// GetWallet gets a registered wallet
func (u *WalletUsecase) GetWallet(ctx context.Context, address string) (*entities.Wallet, error) {
	return u.walletRepo.GetByAddress(ctx, address)
}

// GetBalance reads the live balance of any address. For a registered
// wallet the cached snapshot is refreshed on a best-effort basis.
func (u *WalletUsecase) GetBalance(ctx context.Context, address string) (*entities.WalletBalance, error) {
	balance, err := u.chain.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	u.refreshSnapshot(ctx, address, balance.String())

	return &entities.WalletBalance{
		Address:      address,
		Balance:      balance.String(),
		BalanceInEth: ethunit.FormatEther(balance),
	}, nil
}

func (u *WalletUsecase) refreshSnapshot(ctx context.Context, address, balance string) {
	wallet, err := u.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "Balance snapshot lookup failed", zap.String("address", address), zap.Error(err))
		}
		return
	}
	if wallet.Balance == balance {
		return
	}
	wallet.Balance = balance
	if err := u.walletRepo.Save(ctx, wallet); err != nil {
		logger.Warn(ctx, "Balance snapshot refresh failed", zap.String("address", address), zap.Error(err))
	}
}

// AddTransaction appends txID to the transaction index of address
func (u *WalletUsecase) AddTransaction(ctx context.Context, address, txID string) error {
	return u.walletRepo.AppendTransaction(ctx, address, txID)
}

// GetTransactions lists transaction ids of address, newest first, with
// the total size of the index
func (u *WalletUsecase) GetTransactions(ctx context.Context, address string, pagination utils.PaginationParams) ([]string, int64, error) {
	start, stop := pagination.ListRange()
	ids, err := u.walletRepo.ListTransactions(ctx, address, start, stop)
	if err != nil {
		return nil, 0, err
	}
	if ids == nil {
		ids = []string{}
	}
	total, err := u.walletRepo.CountTransactions(ctx, address)
	if err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

// GetPrivateKey returns the signing key of a registered wallet
func (u *WalletUsecase) GetPrivateKey(ctx context.Context, address string) (string, error) {
	wallet, err := u.GetWallet(ctx, address)
	if err != nil {
		return "", err
	}
	return wallet.PrivateKey, nil
}
