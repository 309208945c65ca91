package usecases_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/internal/infrastructure/queue"
	"sepolia-wallet.backend/internal/infrastructure/repositories"
	"sepolia-wallet.backend/pkg/redis"
)

// MockChainGateway is a mock implementation of usecases.ChainGateway
type MockChainGateway struct {
	mock.Mock
}

func (m *MockChainGateway) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainGateway) CreateWallet() (*entities.KeyPair, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.KeyPair), args.Error(1)
}

func (m *MockChainGateway) WalletFromPrivateKey(privateKey string) (*entities.KeyPair, error) {
	args := m.Called(privateKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.KeyPair), args.Error(1)
}

func (m *MockChainGateway) SubmitTransfer(ctx context.Context, privateKey, to string, amountWei *big.Int) (string, error) {
	args := m.Called(ctx, privateKey, to, amountWei)
	return args.String(0), args.Error(1)
}

func (m *MockChainGateway) GetReceipt(ctx context.Context, txHash string) (*entities.ChainReceipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ChainReceipt), args.Error(1)
}

func (m *MockChainGateway) GetBlock(ctx context.Context, height uint64) (*entities.ChainBlock, error) {
	args := m.Called(ctx, height)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ChainBlock), args.Error(1)
}

func (m *MockChainGateway) GetBlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

// MockJobQueue is a mock implementation of usecases.JobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, name string, payload interface{}) (*queue.Job, error) {
	args := m.Called(ctx, name, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Job), args.Error(1)
}

// MockWalletRepository is a mock implementation of repositories.WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Save(ctx context.Context, wallet *entities.Wallet) error {
	return m.Called(ctx, wallet).Error(0)
}

func (m *MockWalletRepository) GetByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockWalletRepository) HasTransaction(ctx context.Context, address, txID string) (bool, error) {
	args := m.Called(ctx, address, txID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletRepository) ListAddresses(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletRepository) AppendTransaction(ctx context.Context, address, txID string) error {
	return m.Called(ctx, address, txID).Error(0)
}

func (m *MockWalletRepository) ListTransactions(ctx context.Context, address string, start, stop int64) ([]string, error) {
	args := m.Called(ctx, address, start, stop)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletRepository) CountTransactions(ctx context.Context, address string) (int64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(int64), args.Error(1)
}

// testStores wires the Redis-backed repositories on a miniredis instance
type testStores struct {
	srv     *miniredis.Miniredis
	client  *goredis.Client
	wallets *repositories.WalletRepository
	txs     *repositories.TransactionRepository
	cursor  *repositories.CursorRepository
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	cli := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	store := redis.NewStore(cli)
	return &testStores{
		srv:     srv,
		client:  cli,
		wallets: repositories.NewWalletRepository(store),
		txs:     repositories.NewTransactionRepository(store),
		cursor:  repositories.NewCursorRepository(store),
	}
}

func wei(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("bad wei literal " + value)
	}
	return v
}
