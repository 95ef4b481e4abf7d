package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	receiptPrefix = "receipt/"
	slotPrefix    = "slot/"
)

// Receipt is the record of one processed transaction.
type Receipt struct {
	Signature    string   `cbor:"1,keyasint" json:"signature"`
	Slot         uint64   `cbor:"2,keyasint" json:"slot"`
	Blockhash    string   `cbor:"3,keyasint" json:"blockhash"`
	ProgramID    string   `cbor:"4,keyasint" json:"program_id"`
	Accounts     []string `cbor:"5,keyasint" json:"accounts"`
	Logs         []string `cbor:"6,keyasint" json:"logs"`
	ComputeUnits uint64   `cbor:"7,keyasint" json:"compute_units"`
	Err          string   `cbor:"8,keyasint,omitempty" json:"err,omitempty"`
	Timestamp    int64    `cbor:"9,keyasint" json:"timestamp"`
}

func (r *Receipt) Success() bool { return r.Err == "" }

func slotKey(slot uint64, sig string) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], slot)
	return slotPrefix + string(b[:]) + sig
}

func (d *DB) SaveReceipt(r *Receipt) error {
	data, err := cbor.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	return d.save(map[string][]byte{
		receiptPrefix + r.Signature: data,
		slotKey(r.Slot, r.Signature): []byte(r.Signature),
	})
}

// Receipt looks up a receipt by transaction signature.
func (d *DB) Receipt(signature string) (*Receipt, error) {
	data, err := d.load([]byte(receiptPrefix + signature))
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", signature, err)
	}
	var r Receipt
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding receipt %s: %w", signature, err)
	}
	return &r, nil
}

// RecentReceipts returns up to n receipts, newest slot first.
func (d *DB) RecentReceipts(n int) ([]*Receipt, error) {
	if n <= 0 {
		return nil, nil
	}
	var sigs []string
	err := d.reverse([]byte(slotPrefix), func(val []byte) bool {
		sigs = append(sigs, string(val))
		return len(sigs) < n
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Receipt, 0, len(sigs))
	for _, sig := range sigs {
		r, err := d.Receipt(sig)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
