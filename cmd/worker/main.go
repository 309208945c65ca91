// Command worker runs confirmation workers without the HTTP surface. Any
// number of worker processes may consume the same queue next to the
// server.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sepolia-wallet.backend/internal/config"
	"sepolia-wallet.backend/internal/infrastructure/blockchain"
	"sepolia-wallet.backend/internal/infrastructure/jobs"
	"sepolia-wallet.backend/internal/infrastructure/queue"
	"sepolia-wallet.backend/internal/infrastructure/repositories"
	"sepolia-wallet.backend/internal/usecases"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/redis"
	"sepolia-wallet.backend/pkg/retry"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	dialChain  = func(cfg config.BlockchainConfig) (*blockchain.EVMClient, error) {
		return blockchain.NewEVMClient(cfg.RPCURL,
			blockchain.WithCallTimeout(cfg.RPCTimeout),
			blockchain.WithRetry(retry.New(retry.WithAttempts(uint(max(cfg.RPCRetryAttempts, 1))))),
			blockchain.WithConfirmation(cfg.ConfirmationPollInterval, cfg.ConfirmationTimeout, cfg.DroppedAfterPolls),
		)
	}
	shutdownContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	}
)

func main() {
	if err := runWorkerProcess(); err != nil {
		log.Fatal(err)
	}
}

func runWorkerProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	defer func() { _ = logger.Sync() }()

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer func() { _ = redis.Close() }()

	chain, err := dialChain(cfg.Blockchain)
	if err != nil {
		logger.Error(context.Background(), "Failed to connect to Sepolia RPC", zap.Error(err))
		return fmt.Errorf("failed to connect to chain: %w", err)
	}
	defer chain.Close()

	store := redis.NewStore(redis.GetClient())
	walletRepo := repositories.NewWalletRepository(store)
	txRepo := repositories.NewTransactionRepository(store)
	txQueue := queue.NewRedisQueue(redis.GetClient(), cfg.Queue.Name, queue.Options{
		Attempts: cfg.Queue.Attempts,
		Backoff:  cfg.Queue.Backoff,
		LeaseTTL: cfg.Queue.LeaseTTL,
	})

	walletUsecase := usecases.NewWalletUsecase(walletRepo, chain)
	transactionUsecase := usecases.NewTransactionUsecase(txRepo, walletUsecase, chain, txQueue)

	ctx, stop := shutdownContext()
	defer stop()

	recovered, err := txQueue.RecoverStalled(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover stalled jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn(ctx, "Recovered stalled confirmation jobs", zap.Int("jobs", recovered))
	}

	n := max(cfg.Queue.Workers, 1)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := jobs.NewConfirmationWorker(txQueue, chain, transactionUsecase)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx)
		}()
	}
	logger.Info(ctx, "Confirmation workers running", zap.Int("workers", n), zap.String("queue", txQueue.Name()))

	<-ctx.Done()
	log.Println("Shutting down workers...")
	wg.Wait()
	return nil
}
