package execution

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Sha256 hashes the concatenation of vals.
func (ic *InvokeContext) Sha256(vals ...[]byte) ([32]byte, error) {
	cost := Sha256BaseCost
	for _, v := range vals {
		cost += uint64(len(v)) * Sha256ByteCost
	}
	if err := ic.charge(cost); err != nil {
		return [32]byte{}, err
	}
	h := sha256.New()
	for _, v := range vals {
		h.Write(v)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Secp256k1Recover recovers the 64 byte uncompressed public key (without the
// 0x04 prefix) that produced sig over hash.
func (ic *InvokeContext) Secp256k1Recover(hash []byte, recoveryID uint8, sig []byte) ([]byte, error) {
	if err := ic.charge(Secp256k1RecoverCost); err != nil {
		return nil, err
	}
	if len(hash) != 32 || len(sig) != 64 || recoveryID > 3 {
		return nil, ErrInvalidArgument
	}
	compact := make([]byte, 65)
	compact[0] = 27 + recoveryID
	copy(compact[1:], sig)
	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 recover: %w", err)
	}
	return pub.SerializeUncompressed()[1:], nil
}

func (ic *InvokeContext) charge(units uint64) error {
	if ic.abort != nil {
		return ic.abort
	}
	if err := ic.meter.Consume(units); err != nil {
		ic.abort = err
		return err
	}
	return nil
}
