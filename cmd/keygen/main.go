// Command keygen prints a fresh Sepolia key pair, or the address of the
// private key given as first argument. It never touches the network or
// the record store.
package main

import (
	"fmt"
	"log"
	"os"

	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/internal/infrastructure/blockchain"
)

var (
	printfFn      = fmt.Printf
	generateFn    = blockchain.GenerateWallet
	fromPrivateFn = blockchain.WalletFromPrivateKey
	fatalfFn      = log.Fatalf
)

func resolveKeyPair(args []string) (*entities.KeyPair, error) {
	if len(args) > 0 {
		return fromPrivateFn(args[0])
	}
	return generateFn()
}

func main() {
	kp, err := resolveKeyPair(os.Args[1:])
	if err != nil {
		fatalfFn("Failed to derive key pair: %v", err)
		return
	}

	printfFn("Address: %s\n", kp.Address)
	if len(os.Args) < 2 {
		printfFn("Private key: %s\n", kp.PrivateKey)
	}
}
