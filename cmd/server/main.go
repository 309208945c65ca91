package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sepolia-wallet.backend/internal/config"
	"sepolia-wallet.backend/internal/infrastructure/blockchain"
	"sepolia-wallet.backend/internal/infrastructure/jobs"
	"sepolia-wallet.backend/internal/infrastructure/queue"
	"sepolia-wallet.backend/internal/infrastructure/repositories"
	"sepolia-wallet.backend/internal/interfaces/http/handlers"
	"sepolia-wallet.backend/internal/interfaces/http/middleware"
	"sepolia-wallet.backend/internal/usecases"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/redis"
	"sepolia-wallet.backend/pkg/retry"
)

const shutdownTimeout = 10 * time.Second

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
	runServer = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	defer func() { _ = logger.Sync() }()
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer func() { _ = redis.Close() }()
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := handlers.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	chain, err := dialChain(cfg.Blockchain)
	if err != nil {
		logger.Error(context.Background(), "Failed to connect to Sepolia RPC", zap.Error(err))
		return fmt.Errorf("failed to connect to chain: %w", err)
	}
	defer chain.Close()
	logger.Info(context.Background(), "Connected to chain",
		zap.String("rpc_url", cfg.Blockchain.RPCURL),
		zap.String("chain_id", chain.ChainID().String()),
	)

	// Initialize repositories
	store := redis.NewStore(redis.GetClient())
	walletRepo := repositories.NewWalletRepository(store)
	txRepo := repositories.NewTransactionRepository(store)
	cursorRepo := repositories.NewCursorRepository(store)

	if n, err := txRepo.ReindexHashes(context.Background()); err != nil {
		return fmt.Errorf("failed to rebuild transaction hash index: %w", err)
	} else if n > 0 {
		logger.Info(context.Background(), "Transaction hash index rebuilt", zap.Int("transactions", n))
	}

	txQueue := queue.NewRedisQueue(redis.GetClient(), cfg.Queue.Name, queue.Options{
		Attempts: cfg.Queue.Attempts,
		Backoff:  cfg.Queue.Backoff,
		LeaseTTL: cfg.Queue.LeaseTTL,
	})

	// Initialize usecases
	walletUsecase := usecases.NewWalletUsecase(walletRepo, chain)
	transactionUsecase := usecases.NewTransactionUsecase(txRepo, walletUsecase, chain, txQueue)
	cursor := usecases.NewScanCursor(cursorRepo, chain)
	monitorUsecase := usecases.NewMonitorUsecase(chain, walletRepo, txRepo, cursor, cfg.Monitor.BatchSize)

	// Start background jobs
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	workers, err := startWorkers(ctx, &wg, cfg.Queue.Workers, txQueue, chain, transactionUsecase)
	if err != nil {
		return err
	}

	monitorJob := jobs.NewBlockMonitorJob(monitorUsecase, cfg.Monitor.Interval)
	if cfg.Monitor.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitorJob.Start(ctx)
		}()
	} else {
		logger.Info(ctx, "Block monitor disabled")
	}

	// Initialize router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r)
	registerFallbackRoutes(r)
	registerHealthRoute(r)
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		walletHandler:      handlers.NewWalletHandler(walletUsecase),
		transactionHandler: handlers.NewTransactionHandler(transactionUsecase),
		monitorHandler:     handlers.NewMonitorHandler(monitorJob),
		queueHandler:       handlers.NewQueueHandler(txQueue),
	})

	for _, route := range r.Routes() {
		logger.Debug(ctx, "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "HTTP shutdown incomplete", zap.Error(err))
		}
	}()

	log.Printf("Sepolia wallet service starting on port %s", cfg.Server.Port)
	log.Printf("API: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("Health: http://localhost:%s/health", cfg.Server.Port)

	serveErr := runServer(srv)

	stop()
	monitorJob.Stop()
	for _, w := range workers {
		w.Stop()
	}
	wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", serveErr)
	}
	return nil
}

// startWorkers requeues jobs whose lease ran out, then starts n
// confirmation workers on the shared queue.
func startWorkers(
	ctx context.Context,
	wg *sync.WaitGroup,
	n int,
	q *queue.RedisQueue,
	chain *blockchain.EVMClient,
	transactions *usecases.TransactionUsecase,
) ([]*jobs.ConfirmationWorker, error) {
	if n <= 0 {
		logger.Info(ctx, "In-process confirmation workers disabled")
		return nil, nil
	}

	recovered, err := q.RecoverStalled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn(ctx, "Recovered stalled confirmation jobs", zap.Int("jobs", recovered))
	}

	workers := make([]*jobs.ConfirmationWorker, 0, n)
	for i := 0; i < n; i++ {
		w := jobs.NewConfirmationWorker(q, chain, transactions)
		workers = append(workers, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx)
		}()
	}
	logger.Info(ctx, "Confirmation workers started", zap.Int("workers", n), zap.String("queue", q.Name()))
	return workers, nil
}
