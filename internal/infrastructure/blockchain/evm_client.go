package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/retry"
)

// TransferGasLimit is the intrinsic gas of a plain value transfer
const TransferGasLimit uint64 = 21000

var (
	dialEVMClient    = ethclient.Dial
	getClientChainID = func(client *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}
)

// Option configures an EVMClient
type Option func(*EVMClient)

// WithCallTimeout bounds each individual RPC round trip
func WithCallTimeout(d time.Duration) Option {
	return func(c *EVMClient) { c.callTimeout = d }
}

// WithRetry replaces the retry policy used for read-only calls
func WithRetry(r retry.Retry) Option {
	return func(c *EVMClient) { c.retrier = r }
}

// WithConfirmation sets the receipt polling interval, the overall wait
// bound and the number of consecutive "unknown transaction" polls after
// which a transaction is treated as dropped.
func WithConfirmation(pollInterval, timeout time.Duration, droppedAfter int) Option {
	return func(c *EVMClient) {
		c.pollInterval = pollInterval
		c.confirmTimeout = timeout
		c.droppedAfter = droppedAfter
	}
}

// EVMClient is the gateway to a single EVM chain over JSON-RPC
type EVMClient struct {
	client  *ethclient.Client
	chainID *big.Int
	rpcURL  string

	callTimeout    time.Duration
	retrier        retry.Retry
	pollInterval   time.Duration
	confirmTimeout time.Duration
	droppedAfter   int
}

// NewEVMClient dials rpcURL and resolves the chain id
func NewEVMClient(rpcURL string, opts ...Option) (*EVMClient, error) {
	c := &EVMClient{
		rpcURL:         rpcURL,
		callTimeout:    15 * time.Second,
		retrier:        retry.New(),
		pollInterval:   4 * time.Second,
		confirmTimeout: 10 * time.Minute,
		droppedAfter:   15,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, chainError("dial", err)
	}
	c.client = client

	err = c.call(context.Background(), func(ctx context.Context) error {
		chainID, err := getClientChainID(client, ctx)
		c.chainID = chainID
		return err
	})
	if err != nil {
		client.Close()
		return nil, chainError("chain id", err)
	}

	return c, nil
}

// ChainID returns the chain ID
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// call runs a read-only RPC under the per-call timeout and retry policy.
// ethereum.NotFound is an answer, not a failure, so it is never retried.
func (c *EVMClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.retrier.Execute(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		err := fn(callCtx)
		if errors.Is(err, ethereum.NotFound) {
			return retry.Permanent(err)
		}
		return err
	})
}

// GetBalance gets the native balance of an address in wei
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		balance, err = c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	if err != nil {
		return nil, chainError("get balance", err)
	}
	return balance, nil
}

// GetBlockNumber gets the latest block number
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		height, err = c.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, chainError("get block number", err)
	}
	return height, nil
}

// GetBlock fetches a block with its transactions and their senders
func (c *EVMClient) GetBlock(ctx context.Context, height uint64) (*entities.ChainBlock, error) {
	var block *types.Block
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		block, err = c.client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
		return err
	})
	if err != nil {
		return nil, chainError(fmt.Sprintf("get block %d", height), err)
	}

	out := &entities.ChainBlock{
		Number:       block.NumberU64(),
		Hash:         block.Hash().Hex(),
		Timestamp:    block.Time(),
		Transactions: make([]entities.ChainTransfer, 0, len(block.Transactions())),
	}
	for i, tx := range block.Transactions() {
		from, err := c.sender(ctx, tx, block.Hash(), uint(i))
		if err != nil {
			return nil, chainError(fmt.Sprintf("sender of %s", tx.Hash().Hex()), err)
		}
		transfer := entities.ChainTransfer{
			Hash:  tx.Hash().Hex(),
			From:  from.Hex(),
			Value: tx.Value(),
		}
		if tx.To() != nil {
			transfer.To = tx.To().Hex()
		}
		out.Transactions = append(out.Transactions, transfer)
	}
	return out, nil
}

// sender prefers the address reported by the node for the block and falls
// back to signature recovery.
func (c *EVMClient) sender(ctx context.Context, tx *types.Transaction, blockHash common.Hash, index uint) (common.Address, error) {
	from, err := c.client.TransactionSender(ctx, tx, blockHash, index)
	if err == nil {
		return from, nil
	}
	return types.Sender(types.LatestSignerForChainID(c.chainID), tx)
}

// GetReceipt returns the receipt of hash, or nil when the chain has none yet
func (c *EVMClient) GetReceipt(ctx context.Context, txHash string) (*entities.ChainReceipt, error) {
	var receipt *types.Receipt
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, chainError("get receipt", err)
	}
	return toChainReceipt(receipt), nil
}

func toChainReceipt(r *types.Receipt) *entities.ChainReceipt {
	out := &entities.ChainReceipt{
		TxHash:            r.TxHash.Hex(),
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// knownTransaction reports whether the node still knows hash, mined or in
// its pool.
func (c *EVMClient) knownTransaction(ctx context.Context, txHash string) (bool, error) {
	err := c.call(ctx, func(ctx context.Context) error {
		_, _, err := c.client.TransactionByHash(ctx, common.HexToHash(txHash))
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SubmitTransfer signs a value transfer with privateKeyHex and broadcasts
// it, returning the transaction hash. The broadcast itself is never
// retried so a transfer cannot be sent twice.
func (c *EVMClient) SubmitTransfer(ctx context.Context, privateKeyHex, to string, amountWei *big.Int) (string, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	from := common.HexToAddress(keyPairFrom(key).Address)

	var nonce uint64
	if err := c.call(ctx, func(ctx context.Context) error {
		var err error
		nonce, err = c.client.PendingNonceAt(ctx, from)
		return err
	}); err != nil {
		return "", chainError("pending nonce", err)
	}

	var gasPrice *big.Int
	if err := c.call(ctx, func(ctx context.Context) error {
		var err error
		gasPrice, err = c.client.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return "", chainError("suggest gas price", err)
	}

	recipient := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    amountWei,
		Gas:      TransferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.client.SendTransaction(sendCtx, signed); err != nil {
		return "", broadcastError(err)
	}

	logger.Info(ctx, "Transaction broadcast",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", recipient.Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash().Hex(), nil
}

// AwaitConfirmation polls until hash is mined and returns its receipt. It
// returns (nil, nil) once the node has reported the transaction unknown for
// droppedAfter consecutive polls, meaning it was dropped or replaced. The
// wait is bounded by the confirmation timeout.
func (c *EVMClient) AwaitConfirmation(ctx context.Context, txHash string) (*entities.ChainReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	misses := 0
	for {
		receipt, err := c.GetReceipt(ctx, txHash)
		switch {
		case err != nil:
			logger.Warn(ctx, "Receipt poll failed", zap.String("tx_hash", txHash), zap.Error(err))
		case receipt != nil:
			return receipt, nil
		default:
			known, err := c.knownTransaction(ctx, txHash)
			if err != nil {
				logger.Warn(ctx, "Transaction lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
				break
			}
			if known {
				misses = 0
				break
			}
			misses++
			if misses >= c.droppedAfter {
				return nil, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, chainError("await confirmation of "+txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// CreateWallet generates a new key pair
func (c *EVMClient) CreateWallet() (*entities.KeyPair, error) {
	return GenerateWallet()
}

// WalletFromPrivateKey derives the key pair of an existing key
func (c *EVMClient) WalletFromPrivateKey(privateKeyHex string) (*entities.KeyPair, error) {
	return WalletFromPrivateKey(privateKeyHex)
}

// Close closes the client connection
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
