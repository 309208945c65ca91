package entities

import "time"

// TransactionStatus is the lifecycle state of a transfer
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// TransactionSourceExternal marks records discovered by the block monitor
const TransactionSourceExternal = "external"

// Transaction is a transfer record, either submitted by this service or
// observed on chain. Version increases on every persisted mutation.
type Transaction struct {
	ID                string            `json:"id"`
	From              string            `json:"from"`
	To                string            `json:"to"`
	Amount            string            `json:"amount"`
	Status            TransactionStatus `json:"status"`
	Timestamp         time.Time         `json:"timestamp"`
	TransactionHash   string            `json:"transactionHash,omitempty"`
	BlockNumber       *uint64           `json:"blockNumber,omitempty"`
	GasUsed           string            `json:"gasUsed,omitempty"`
	EffectiveGasPrice string            `json:"effectiveGasPrice,omitempty"`
	Error             string            `json:"error,omitempty"`
	Source            string            `json:"source,omitempty"`
	Version           int64             `json:"version"`
}

// IsTerminal reports whether the record reached confirmed or failed
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusConfirmed || t.Status == TransactionStatusFailed
}

// MarkFailed moves a pending record to failed with the given reason
func (t *Transaction) MarkFailed(reason string) {
	t.Status = TransactionStatusFailed
	t.Error = reason
}

// TransactionResponse augments a record with its amount in ETH
type TransactionResponse struct {
	*Transaction
	AmountInEth string `json:"amountInEth"`
}

// CreateTransactionInput represents a transfer request
type CreateTransactionInput struct {
	From        string `json:"from" binding:"required,eth_addr"`
	To          string `json:"to" binding:"required,eth_addr"`
	AmountInEth string `json:"amountInEth" binding:"required,ethamount"`
}
