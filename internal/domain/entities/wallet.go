package entities

import "time"

// Wallet is a custodial account. Balance is a cached wei snapshot; the
// authoritative value always comes from the chain.
type Wallet struct {
	Address    string    `json:"address"`
	PrivateKey string    `json:"privateKey"`
	Balance    string    `json:"balance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// WalletBalance is a live balance read
type WalletBalance struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	BalanceInEth string `json:"balanceInEth"`
}

// KeyPair is a freshly generated or imported signing key
type KeyPair struct {
	Address    string
	PrivateKey string
}

// ImportWalletInput represents the body of a wallet import
type ImportWalletInput struct {
	PrivateKey string `json:"privateKey" binding:"required,eth_privkey"`
}
