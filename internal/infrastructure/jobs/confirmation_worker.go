package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/infrastructure/queue"
	"sepolia-wallet.backend/internal/usecases"
	"sepolia-wallet.backend/pkg/ethunit"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/retry"
)

// DefaultReserveTimeout bounds one blocking wait on the queue so the
// worker notices Stop in time
const DefaultReserveTimeout = time.Second

// ErrReceiptMissing is raised when a transaction disappeared before being mined
var ErrReceiptMissing = domainerrors.ConfirmationFailed("transaction receipt is null")

// Metrics
var (
	confirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_confirmations_total",
			Help: "Confirmation jobs handled by result",
		},
		[]string{"result"},
	)
	leaseLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_confirmation_leases_lost_total",
			Help: "Confirmation results discarded because the job lease expired",
		},
	)
)

type jobSource interface {
	Reserve(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (entities.JobState, error)
	Extend(ctx context.Context, job *queue.Job) error
	LeaseTTL() time.Duration
}

type receiptWaiter interface {
	AwaitConfirmation(ctx context.Context, txHash string) (*entities.ChainReceipt, error)
}

type transactionResolver interface {
	GetTransaction(ctx context.Context, id string) (*entities.Transaction, error)
	ConfirmTransaction(ctx context.Context, id, hash string) (*entities.Transaction, error)
	RecordFailure(ctx context.Context, id, reason string, final bool) (*entities.Transaction, error)
}

// ConfirmationWorker consumes confirmation jobs one at a time, waits for
// the receipt of each broadcast transfer and resolves its record. Several
// workers may consume the same queue.
type ConfirmationWorker struct {
	queue          jobSource
	chain          receiptWaiter
	transactions   transactionResolver
	reserveTimeout time.Duration
	errorPause     time.Duration
	stop           chan struct{}
	stopOnce       sync.Once
}

func NewConfirmationWorker(q jobSource, chain receiptWaiter, transactions transactionResolver) *ConfirmationWorker {
	return &ConfirmationWorker{
		queue:          q,
		chain:          chain,
		transactions:   transactions,
		reserveTimeout: DefaultReserveTimeout,
		errorPause:     time.Second,
		stop:           make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called
func (w *ConfirmationWorker) Start(ctx context.Context) {
	logger.Info(ctx, "Starting confirmation worker")

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Confirmation worker stopped (context cancelled)")
			return
		case <-w.stop:
			logger.Info(ctx, "Confirmation worker stopped")
			return
		default:
		}

		if _, err := w.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "Error reserving job", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-w.stop:
			case <-time.After(w.errorPause):
			}
		}
	}
}

func (w *ConfirmationWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// processNext handles at most one job. It reports whether a job was
// reserved; the error covers the queue itself, never the job outcome.
func (w *ConfirmationWorker) processNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Reserve(ctx, w.reserveTimeout)
	if err != nil || job == nil {
		return false, err
	}

	ctx = logger.WithJobID(ctx, job.ID)
	logger.Info(ctx, "Processing job", zap.String("job_name", job.Name), zap.Int("attempt", job.AttemptsMade))

	jobCtx, cancel := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		w.keepLease(jobCtx, cancel, job)
	}()
	result, procErr := w.process(jobCtx, job)
	cancel()
	<-renewed

	if procErr == nil {
		if err := w.queue.Complete(ctx, job); err != nil {
			return true, w.leaseLost(ctx, err)
		}
		confirmationsTotal.WithLabelValues(result).Inc()
		logger.Info(ctx, "Job completed", zap.String("result", result))
		return true, nil
	}

	if ctx.Err() != nil {
		// left active; recovered once its lease expires
		logger.Warn(ctx, "Job interrupted by shutdown", zap.Error(procErr))
		return true, nil
	}

	state, err := w.queue.Fail(ctx, job, procErr)
	if err != nil {
		return true, w.leaseLost(ctx, err)
	}
	if state == entities.JobStateDelayed {
		result = "retry"
	}
	confirmationsTotal.WithLabelValues(result).Inc()
	logger.Error(ctx, "Job failed", zap.String("state", string(state)), zap.Error(procErr))
	return true, nil
}

// keepLease renews the job lease until ctx ends. Losing the lease cancels
// the job: another worker owns it now.
func (w *ConfirmationWorker) keepLease(ctx context.Context, cancel context.CancelFunc, job *queue.Job) {
	ticker := time.NewTicker(max(w.queue.LeaseTTL()/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.queue.Extend(ctx, job)
			if errors.Is(err, queue.ErrLeaseLost) {
				logger.Warn(ctx, "Job lease lost, abandoning job")
				cancel()
				return
			}
			if err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "Failed to renew job lease", zap.Error(err))
			}
		}
	}
}

// leaseLost swallows ErrLeaseLost: the job belongs to another worker and
// its outcome is theirs to record
func (w *ConfirmationWorker) leaseLost(ctx context.Context, err error) error {
	if errors.Is(err, queue.ErrLeaseLost) {
		leaseLostTotal.Inc()
		logger.Warn(ctx, "Job result discarded, lease held by another worker")
		return nil
	}
	return err
}

func (w *ConfirmationWorker) process(ctx context.Context, job *queue.Job) (string, error) {
	if job.Name != entities.JobNameProcessTransaction {
		return "invalid", retry.Permanent(fmt.Errorf("unknown job name %q", job.Name))
	}
	var payload entities.ConfirmationJob
	if err := job.Decode(&payload); err != nil {
		return "invalid", retry.Permanent(fmt.Errorf("decode payload: %w", err))
	}
	if payload.TransactionID == "" || payload.TransactionHash == "" {
		return "invalid", retry.Permanent(errors.New("payload without transaction id or hash"))
	}

	current, err := w.transactions.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return "invalid", retry.Permanent(err)
		}
		return "failed", err
	}
	if current.IsTerminal() {
		logger.Info(ctx, "Transaction already resolved",
			zap.String("transaction_id", current.ID),
			zap.String("status", string(current.Status)),
		)
		return "skipped", nil
	}

	logger.Info(ctx, "Waiting for confirmation",
		zap.String("transaction_id", payload.TransactionID),
		zap.String("tx_hash", payload.TransactionHash),
		zap.String("amount_eth", formatAmount(payload.Amount)),
		zap.String("from", payload.From),
		zap.String("to", payload.To),
	)

	receipt, err := w.chain.AwaitConfirmation(ctx, payload.TransactionHash)
	if err != nil {
		return "failed", w.recordFailure(ctx, job, payload.TransactionID, err)
	}
	if receipt == nil {
		logger.Error(ctx, "Transaction returned null receipt", zap.String("transaction_id", payload.TransactionID))
		if _, err := w.transactions.RecordFailure(ctx, payload.TransactionID, usecases.DroppedTransactionReason, true); err != nil {
			logger.Error(ctx, "Failed to update transaction status", zap.String("transaction_id", payload.TransactionID), zap.Error(err))
		}
		return "dropped", retry.Permanent(ErrReceiptMissing)
	}

	tx, err := w.transactions.ConfirmTransaction(ctx, payload.TransactionID, payload.TransactionHash)
	if err != nil {
		return "failed", w.recordFailure(ctx, job, payload.TransactionID, err)
	}

	logger.Info(ctx, "Transaction final status",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return string(tx.Status), nil
}

// recordFailure writes cause on the record and returns it for the queue.
// Only the last attempt, or a permanent cause, fails the record; earlier
// attempts keep it pending for redelivery.
func (w *ConfirmationWorker) recordFailure(ctx context.Context, job *queue.Job, id string, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	final := retry.IsPermanent(cause) || job.AttemptsMade >= job.MaxAttempts
	if _, err := w.transactions.RecordFailure(ctx, id, cause.Error(), final); err != nil {
		logger.Error(ctx, "Failed to update transaction status", zap.String("transaction_id", id), zap.Error(err))
	}
	return cause
}

func formatAmount(wei string) string {
	eth, err := ethunit.FormatWeiString(wei)
	if err != nil {
		return wei
	}
	return eth
}
