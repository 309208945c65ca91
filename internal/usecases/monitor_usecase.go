package usecases

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/domain/repositories"
	"sepolia-wallet.backend/pkg/ethunit"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/utils"
)

// DefaultScanBatchSize is the number of blocks fetched per batch
const DefaultScanBatchSize = 10

// Metrics
var (
	monitorLastScannedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_monitor_last_scanned_block",
		Help: "Height the block monitor has fully scanned",
	})

	monitorItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_monitor_items_total",
			Help: "Relevant transactions and blocks seen by the monitor by outcome",
		},
		[]string{"outcome"},
	)
)

// MonitorUsecase scans new blocks for transfers touching registered wallets
type MonitorUsecase struct {
	chain      ChainGateway
	walletRepo repositories.WalletRepository
	txRepo     repositories.TransactionRepository
	cursor     *ScanCursor
	batchSize  uint64
	scanning   atomic.Bool
	now        func() time.Time
}

// NewMonitorUsecase creates a monitor scanning batchSize blocks at a time
func NewMonitorUsecase(
	chain ChainGateway,
	walletRepo repositories.WalletRepository,
	txRepo repositories.TransactionRepository,
	cursor *ScanCursor,
	batchSize int,
) *MonitorUsecase {
	if batchSize <= 0 {
		batchSize = DefaultScanBatchSize
	}
	return &MonitorUsecase{
		chain:      chain,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		cursor:     cursor,
		batchSize:  uint64(batchSize),
		now:        time.Now,
	}
}

// IsScanning reports whether a cycle is running
func (u *MonitorUsecase) IsScanning() bool {
	return u.scanning.Load()
}

// ScanNewBlocks runs one cycle from the cursor to the chain head. A call
// made while another cycle runs returns a skipped report immediately.
// Per-item failures are recorded in the report and do not stop the cursor
// from advancing past the range; only a cancelled context does.
func (u *MonitorUsecase) ScanNewBlocks(ctx context.Context) (*entities.ScanReport, error) {
	if !u.scanning.CompareAndSwap(false, true) {
		logger.Debug(ctx, "Previous scan still in progress, skipping this cycle")
		return &entities.ScanReport{Skipped: true, Reason: domainerrors.ErrScanInProgress.Error()}, nil
	}
	defer u.scanning.Store(false)

	current, err := u.chain.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	last, err := u.cursor.LoadOrInitialize(ctx)
	if err != nil {
		return nil, err
	}
	report := &entities.ScanReport{FromBlock: last + 1, ToBlock: current}
	if current <= last {
		report.Skipped = true
		report.Reason = "no new blocks"
		return report, nil
	}

	monitored, err := u.monitoredAddresses(ctx)
	if err != nil {
		return nil, err
	}
	report.Wallets = len(monitored)

	if len(monitored) > 0 {
		logger.Info(ctx, "Scanning blocks",
			zap.Uint64("from_block", report.FromBlock),
			zap.Uint64("to_block", current),
			zap.Int("wallets", len(monitored)),
		)
		for start := last + 1; start <= current; start += u.batchSize {
			end := min(start+u.batchSize-1, current)
			for height := start; height <= end; height++ {
				if err := ctx.Err(); err != nil {
					return report, err
				}
				report.Items = append(report.Items, u.scanBlock(ctx, height, monitored)...)
			}
		}
	} else {
		logger.Info(ctx, "No monitored wallets found, skipping block scan")
	}

	stored, err := u.cursor.Advance(ctx, current)
	if err != nil {
		return report, err
	}
	report.Advanced = true
	monitorLastScannedBlock.Set(float64(stored))
	for _, item := range report.Items {
		monitorItemsTotal.WithLabelValues(string(item.Outcome)).Inc()
	}

	logger.Info(ctx, "Scan complete",
		zap.Uint64("block", stored),
		zap.Int("tracked", report.Count(entities.ScanOutcomeTracked)),
		zap.Int("errors", report.Count(entities.ScanOutcomeError)),
	)
	return report, nil
}

// monitoredAddresses returns the lower-cased address set of every wallet
func (u *MonitorUsecase) monitoredAddresses(ctx context.Context) (map[string]struct{}, error) {
	addresses, err := u.walletRepo.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		set[strings.ToLower(address)] = struct{}{}
	}
	return set, nil
}

func isMonitored(monitored map[string]struct{}, address string) bool {
	if address == "" {
		return false
	}
	_, ok := monitored[strings.ToLower(address)]
	return ok
}

func (u *MonitorUsecase) scanBlock(ctx context.Context, height uint64, monitored map[string]struct{}) []entities.ScanItem {
	block, err := u.chain.GetBlock(ctx, height)
	if err != nil {
		logger.Error(ctx, "Error scanning block", zap.Uint64("block", height), zap.Error(err))
		return []entities.ScanItem{{Block: height, Outcome: entities.ScanOutcomeError, Err: err.Error()}}
	}

	var items []entities.ScanItem
	for _, transfer := range block.Transactions {
		if !isMonitored(monitored, transfer.From) && !isMonitored(monitored, transfer.To) {
			continue
		}
		item := entities.ScanItem{Block: height, Hash: transfer.Hash}
		outcome, err := u.trackExternal(ctx, height, transfer, monitored)
		item.Outcome = outcome
		if err != nil {
			logger.Error(ctx, "Error processing transaction",
				zap.Uint64("block", height),
				zap.String("tx_hash", transfer.Hash),
				zap.Error(err),
			)
			item.Err = err.Error()
		}
		items = append(items, item)
	}
	return items
}

// trackExternal materializes transfer as an external record unless its
// hash is already indexed. An indexed hash that belongs to a pending local
// record resolves that record instead.
func (u *MonitorUsecase) trackExternal(ctx context.Context, height uint64, transfer entities.ChainTransfer, monitored map[string]struct{}) (entities.ScanOutcome, error) {
	existingID, err := u.txRepo.FindIDByHash(ctx, transfer.Hash)
	if err != nil {
		return entities.ScanOutcomeError, err
	}
	if existingID != "" {
		if err := u.reconcileIndexed(ctx, existingID, transfer, monitored); err != nil {
			return entities.ScanOutcomeError, err
		}
		return entities.ScanOutcomeDuplicate, nil
	}

	receipt, err := u.chain.GetReceipt(ctx, transfer.Hash)
	if err != nil {
		return entities.ScanOutcomeError, err
	}
	if receipt == nil {
		return entities.ScanOutcomePending, nil
	}

	blockNumber := receipt.BlockNumber
	if blockNumber == 0 {
		blockNumber = height
	}
	ext := &entities.Transaction{
		ID:              utils.NewID(),
		From:            transfer.From,
		To:              transfer.To,
		Amount:          "0",
		Status:          entities.TransactionStatusConfirmed,
		Timestamp:       u.now().UTC(),
		TransactionHash: transfer.Hash,
		BlockNumber:     &blockNumber,
		GasUsed:         strconv.FormatUint(receipt.GasUsed, 10),
		Source:          entities.TransactionSourceExternal,
	}
	if transfer.Value != nil {
		ext.Amount = transfer.Value.String()
	}
	if receipt.EffectiveGasPrice != nil {
		ext.EffectiveGasPrice = receipt.EffectiveGasPrice.String()
	}

	claimed, err := u.txRepo.ClaimHash(ctx, transfer.Hash, ext.ID)
	if err != nil {
		return entities.ScanOutcomeError, err
	}
	if !claimed {
		return entities.ScanOutcomeDuplicate, nil
	}
	if err := u.txRepo.Create(ctx, ext); err != nil {
		if relErr := u.txRepo.ReleaseHash(ctx, transfer.Hash); relErr != nil {
			logger.Error(ctx, "Failed to release hash claim", zap.String("tx_hash", transfer.Hash), zap.Error(relErr))
		}
		return entities.ScanOutcomeError, err
	}

	if _, err := u.indexExternal(ctx, ext.ID, transfer, monitored); err != nil {
		return entities.ScanOutcomeError, err
	}
	amountInEth := ethunit.FormatEther(transfer.Value)
	if isMonitored(monitored, transfer.From) {
		logger.Info(ctx, "External send detected", zap.String("address", transfer.From), zap.String("amount_eth", amountInEth))
	}
	if isMonitored(monitored, transfer.To) {
		logger.Info(ctx, "External receive detected", zap.String("address", transfer.To), zap.String("amount_eth", amountInEth))
	}

	logger.Info(ctx, "Tracked external transaction", zap.String("transaction_id", ext.ID), zap.String("tx_hash", transfer.Hash))
	return entities.ScanOutcomeTracked, nil
}

// reconcileIndexed handles a hash that already has a record. A pending
// local record is resolved; an external record gets back any wallet index
// entry an earlier cycle failed to write.
func (u *MonitorUsecase) reconcileIndexed(ctx context.Context, id string, transfer entities.ChainTransfer, monitored map[string]struct{}) error {
	tx, err := u.txRepo.GetByID(ctx, id)
	if err != nil {
		logger.Warn(ctx, "Indexed transaction unreadable", zap.String("transaction_id", id), zap.Error(err))
		return nil
	}
	if tx.Source != entities.TransactionSourceExternal {
		u.resolveLocal(ctx, tx, transfer.Hash)
		return nil
	}

	added, err := u.indexExternal(ctx, tx.ID, transfer, monitored)
	if err != nil {
		return err
	}
	if added > 0 {
		logger.Warn(ctx, "Repaired wallet index of tracked transaction",
			zap.String("transaction_id", tx.ID),
			zap.Int("entries", added),
		)
	}
	return nil
}

// indexExternal adds id to the index of each monitored side of transfer
// that does not list it yet. It returns the number of entries written.
func (u *MonitorUsecase) indexExternal(ctx context.Context, id string, transfer entities.ChainTransfer, monitored map[string]struct{}) (int, error) {
	added := 0
	for _, address := range []string{transfer.From, transfer.To} {
		if !isMonitored(monitored, address) {
			continue
		}
		indexed, err := u.walletRepo.HasTransaction(ctx, address, id)
		if err != nil {
			return added, err
		}
		if indexed {
			continue
		}
		if err := u.walletRepo.AppendTransaction(ctx, address, id); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// resolveLocal confirms a local record still pending when its hash is seen
// in a block. Failures are logged; the confirmation worker remains the
// primary owner of the record.
func (u *MonitorUsecase) resolveLocal(ctx context.Context, tx *entities.Transaction, hash string) {
	if tx.IsTerminal() {
		return
	}

	receipt, err := u.chain.GetReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return
	}
	resolved, err := u.txRepo.Mutate(ctx, tx.ID, func(t *entities.Transaction) (bool, error) {
		applyReceipt(t, hash, receipt)
		return true, nil
	})
	if err != nil {
		logger.Warn(ctx, "Failed to resolve pending transaction", zap.String("transaction_id", tx.ID), zap.Error(err))
		return
	}
	logger.Info(ctx, "Pending transaction resolved by monitor",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(resolved.Status)),
	)
}

// Status reports the cursor position against the chain head. Runtime
// fields (isActive, nextScanIn) are filled in by the periodic job.
func (u *MonitorUsecase) Status(ctx context.Context) (*entities.MonitorStatus, error) {
	current, err := u.chain.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	last, err := u.cursor.Current(ctx)
	if err != nil {
		return nil, err
	}
	addresses, err := u.walletRepo.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}

	var behind uint64
	if current > last {
		behind = current - last
	}
	return &entities.MonitorStatus{
		LastScannedBlock: last,
		CurrentBlock:     current,
		BlocksBehind:     behind,
		MonitoredWallets: len(addresses),
	}, nil
}
