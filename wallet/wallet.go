package wallet

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// Wallet holds one ed25519 keypair.
type Wallet struct {
	Key solana.PrivateKey
}

// GenerateWallet creates a fresh random keypair.
func GenerateWallet() (*Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return &Wallet{Key: key}, nil
}

func (w *Wallet) PublicKey() solana.PublicKey {
	return w.Key.PublicKey()
}

// SaveToFile writes the keypair as a JSON array of the 64 secret key bytes,
// the layout keygen tools use for program and wallet keypairs.
func (w *Wallet) SaveToFile(filename string) error {
	ints := make([]int, len(w.Key))
	for i, b := range w.Key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadWallet reads a keypair file written by SaveToFile.
func LoadWallet(filename string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("loading keypair %s: %w", filename, err)
	}
	return &Wallet{Key: key}, nil
}
