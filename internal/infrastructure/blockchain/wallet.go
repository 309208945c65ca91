package blockchain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
)

var generateKey = crypto.GenerateKey

// GenerateWallet creates a fresh secp256k1 key pair
func GenerateWallet() (*entities.KeyPair, error) {
	key, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return keyPairFrom(key), nil
}

// WalletFromPrivateKey derives the address of a hex private key, with or
// without the 0x prefix.
func WalletFromPrivateKey(privateKeyHex string) (*entities.KeyPair, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return keyPairFrom(key), nil
}

func parsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", domainerrors.ErrInvalidRequest, err)
	}
	return key, nil
}

func keyPairFrom(key *ecdsa.PrivateKey) *entities.KeyPair {
	return &entities.KeyPair{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}
}
