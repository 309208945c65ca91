package repositories

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	walletKeyPrefix      = "wallet:"
	walletTxsSuffix      = ":txs"
	transactionKeyPrefix = "transaction:"
	txHashKeyPrefix      = "txhash:"
	cursorKey            = "monitor:lastScannedBlock"
)

// NormalizeAddress returns the checksummed form used in every store key
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

func walletKey(address string) string {
	return walletKeyPrefix + NormalizeAddress(address)
}

func walletTxsKey(address string) string {
	return walletKey(address) + walletTxsSuffix
}

func transactionKey(id string) string {
	return transactionKeyPrefix + id
}

func txHashKey(hash string) string {
	return txHashKeyPrefix + strings.ToLower(hash)
}
