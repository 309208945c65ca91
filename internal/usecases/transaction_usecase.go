package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/ethunit"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/utils"
)

// DroppedTransactionReason is recorded when a submitted transaction
// disappears from the chain without being mined
const DroppedTransactionReason = "Transaction was replaced or dropped"

// ErrTransactionReverted is recorded on a transfer mined with a failed status
var ErrTransactionReverted = domainerrors.ConfirmationFailed("transaction reverted")

// TransactionUsecase drives the lifecycle of locally submitted transfers
type TransactionUsecase struct {
	txRepo  repositories.TransactionRepository
	wallets *WalletUsecase
	chain   ChainGateway
	queue   JobQueue
	now     func() time.Time
}

// NewTransactionUsecase creates a new transaction usecase
func NewTransactionUsecase(
	txRepo repositories.TransactionRepository,
	wallets *WalletUsecase,
	chain ChainGateway,
	queue JobQueue,
) *TransactionUsecase {
	return &TransactionUsecase{
		txRepo:  txRepo,
		wallets: wallets,
		chain:   chain,
		queue:   queue,
		now:     time.Now,
	}
}

// CreateTransaction validates and broadcasts a transfer. The pending record
// and both wallet index entries are written before broadcasting, so a crash
// after the broadcast still leaves a trace of the attempt.
func (u *TransactionUsecase) CreateTransaction(ctx context.Context, input *entities.CreateTransactionInput) (*entities.Transaction, error) {
	privateKey, err := u.wallets.GetPrivateKey(ctx, input.From)
	if err != nil {
		return nil, err
	}
	from := common.HexToAddress(input.From).Hex()

	if strings.EqualFold(input.From, input.To) {
		return nil, domainerrors.BadRequest("Cannot send transaction to the same address")
	}

	amountWei, err := ethunit.ParseEther(input.AmountInEth)
	if err != nil {
		return nil, domainerrors.BadRequest(fmt.Sprintf("Invalid amount %q", input.AmountInEth))
	}

	balance, err := u.chain.GetBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amountWei) < 0 {
		return nil, domainerrors.InsufficientFunds(fmt.Sprintf(
			"Insufficient balance. Required: %s ETH, Available: %s ETH",
			input.AmountInEth, ethunit.FormatEther(balance),
		))
	}

	tx := &entities.Transaction{
		ID:        utils.NewID(),
		From:      from,
		To:        common.HexToAddress(input.To).Hex(),
		Amount:    amountWei.String(),
		Status:    entities.TransactionStatusPending,
		Timestamp: u.now().UTC(),
	}
	if err := u.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Transaction created", zap.String("transaction_id", tx.ID), zap.String("status", string(tx.Status)))

	for _, address := range []string{tx.From, tx.To} {
		if err := u.wallets.AddTransaction(ctx, address, tx.ID); err != nil {
			u.markFailed(ctx, tx.ID, "failed to index transaction: "+err.Error())
			return nil, err
		}
	}

	hash, err := u.chain.SubmitTransfer(ctx, privateKey, tx.To, amountWei)
	if err != nil {
		u.markFailed(ctx, tx.ID, err.Error())
		return nil, fmt.Errorf("transaction failed: %w", err)
	}

	if _, err := u.txRepo.ClaimHash(ctx, hash, tx.ID); err != nil {
		logger.Warn(ctx, "Hash index write failed", zap.String("transaction_id", tx.ID), zap.String("tx_hash", hash), zap.Error(err))
	}
	tx, err = u.txRepo.Mutate(ctx, tx.ID, func(t *entities.Transaction) (bool, error) {
		t.TransactionHash = hash
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Transaction sent", zap.String("transaction_id", tx.ID), zap.String("tx_hash", hash))

	job, err := u.queue.Enqueue(ctx, entities.JobNameProcessTransaction, entities.ConfirmationJob{
		TransactionID:   tx.ID,
		TransactionHash: hash,
		From:            tx.From,
		To:              tx.To,
		Amount:          tx.Amount,
	})
	if err != nil {
		// already broadcast: the record stays pending and the block
		// monitor resolves it once the hash shows up in a block
		logger.Error(ctx, "Confirmation job enqueue failed", zap.String("transaction_id", tx.ID), zap.Error(err))
		return tx, nil
	}
	logger.Info(ctx, "Confirmation job enqueued", zap.String("transaction_id", tx.ID), zap.String("job_id", job.ID))

	return tx, nil
}

func (u *TransactionUsecase) markFailed(ctx context.Context, id, reason string) {
	if _, err := u.RecordFailure(ctx, id, reason, true); err != nil {
		logger.Error(ctx, "Failed to persist transaction failure", zap.String("transaction_id", id), zap.Error(err))
	}
}

// GetTransaction gets a transaction by ID
func (u *TransactionUsecase) GetTransaction(ctx context.Context, id string) (*entities.Transaction, error) {
	return u.txRepo.GetByID(ctx, id)
}

// UpdateTransaction overwrites the record by id (last writer wins)
func (u *TransactionUsecase) UpdateTransaction(ctx context.Context, tx *entities.Transaction) error {
	if err := u.txRepo.Update(ctx, tx); err != nil {
		return err
	}
	logger.Info(ctx, "Transaction updated", zap.String("transaction_id", tx.ID), zap.String("status", string(tx.Status)))
	return nil
}

// ConfirmTransaction resolves a pending record from the receipt of hash. A
// record that is already confirmed or failed is returned unchanged, which
// makes repeated calls safe.
func (u *TransactionUsecase) ConfirmTransaction(ctx context.Context, id, hash string) (*entities.Transaction, error) {
	current, err := u.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return current, nil
	}

	receipt, err := u.chain.GetReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, domainerrors.NotFound("Transaction receipt not found on blockchain")
	}

	tx, err := u.txRepo.Mutate(ctx, id, func(t *entities.Transaction) (bool, error) {
		applyReceipt(t, hash, receipt)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Transaction resolved",
		zap.String("transaction_id", id),
		zap.String("status", string(tx.Status)),
		zap.Uint64("block", receipt.BlockNumber),
	)
	return tx, nil
}

// RecordFailure stores reason on a pending record. With final set the record
// becomes failed; otherwise it stays pending for another attempt.
func (u *TransactionUsecase) RecordFailure(ctx context.Context, id, reason string, final bool) (*entities.Transaction, error) {
	return u.txRepo.Mutate(ctx, id, func(t *entities.Transaction) (bool, error) {
		if final {
			t.MarkFailed(reason)
		} else {
			t.Error = reason
		}
		return true, nil
	})
}

// applyReceipt moves t to its terminal status from the receipt
func applyReceipt(t *entities.Transaction, hash string, receipt *entities.ChainReceipt) {
	if receipt.Succeeded() {
		t.Status = entities.TransactionStatusConfirmed
		t.Error = ""
	} else {
		t.Status = entities.TransactionStatusFailed
		t.Error = ErrTransactionReverted.Error()
	}
	block := receipt.BlockNumber
	t.BlockNumber = &block
	t.TransactionHash = hash
	t.GasUsed = strconv.FormatUint(receipt.GasUsed, 10)
	t.EffectiveGasPrice = "0"
	if receipt.EffectiveGasPrice != nil {
		t.EffectiveGasPrice = receipt.EffectiveGasPrice.String()
	}
}

// ToResponse adds the ETH rendering of the amount
func ToResponse(tx *entities.Transaction) *entities.TransactionResponse {
	amountInEth, err := ethunit.FormatWeiString(tx.Amount)
	if err != nil {
		amountInEth = "0.0"
	}
	return &entities.TransactionResponse{Transaction: tx, AmountInEth: amountInEth}
}
