package entities

import "math/big"

// ChainReceipt is the subset of a transaction receipt the service records
type ChainReceipt struct {
	TxHash            string
	Status            uint64
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// Succeeded reports whether the receipt status flag is set
func (r *ChainReceipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// ChainTransfer is a transaction as found inside a block. To is empty for
// contract creations.
type ChainTransfer struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
}

// ChainBlock is a block with its transactions resolved
type ChainBlock struct {
	Number       uint64
	Hash         string
	Timestamp    uint64
	Transactions []ChainTransfer
}
