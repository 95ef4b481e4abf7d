package crypto

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// Hash returns sha256 over the concatenation of parts.
func Hash(parts ...[]byte) solana.Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out solana.Hash
	copy(out[:], h.Sum(nil))
	return out
}
