package blockchain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
)

// chainError marks a failed read as ErrChainUnavailable while keeping the
// underlying error reachable through errors.Is/As.
func chainError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domainerrors.ErrChainUnavailable, err)
}

// broadcastError separates a node rejecting the transaction (a JSON-RPC
// error response) from the node being unreachable.
func broadcastError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %w", domainerrors.ErrBroadcastFailed, err)
	}
	return chainError("send transaction", err)
}
