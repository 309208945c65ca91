package usecases

import (
	"context"
	"math/big"

	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/internal/infrastructure/blockchain"
	"sepolia-wallet.backend/internal/infrastructure/queue"
)

// ChainGateway is the chain access the usecases depend on
type ChainGateway interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	CreateWallet() (*entities.KeyPair, error)
	WalletFromPrivateKey(privateKey string) (*entities.KeyPair, error)
	SubmitTransfer(ctx context.Context, privateKey, to string, amountWei *big.Int) (string, error)
	GetReceipt(ctx context.Context, txHash string) (*entities.ChainReceipt, error)
	GetBlock(ctx context.Context, height uint64) (*entities.ChainBlock, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// JobQueue admits confirmation jobs
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload interface{}) (*queue.Job, error)
}

var (
	_ ChainGateway = (*blockchain.EVMClient)(nil)
	_ JobQueue     = (*queue.RedisQueue)(nil)
)
