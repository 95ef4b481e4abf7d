package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	accountPrefix = []byte("acct/")
	clockKey      = []byte("poh/clock")
)

// Account is the persisted state of one address.
type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	Data       []byte
}

func openDB(path string) (*leveldb.DB, error) {
	if path == "" {
		return leveldb.Open(lvlstorage.NewMemStorage(), nil)
	}
	return leveldb.OpenFile(path, nil)
}

func accountKey(key solana.PublicKey) []byte {
	return append(append([]byte{}, accountPrefix...), key[:]...)
}

func (l *Ledger) loadAccount(key solana.PublicKey) (Account, error) {
	var acc Account
	data, err := l.db.Get(accountKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return acc, nil
	}
	if err != nil {
		return acc, fmt.Errorf("reading account %s: %w", key, err)
	}
	if err := borsh.Deserialize(&acc, data); err != nil {
		return acc, fmt.Errorf("decoding account %s: %w", key, err)
	}
	return acc, nil
}

func (l *Ledger) storeAccount(key solana.PublicKey, acc Account) error {
	data, err := borsh.Serialize(acc)
	if err != nil {
		return fmt.Errorf("encoding account %s: %w", key, err)
	}
	if err := l.db.Put(accountKey(key), data, nil); err != nil {
		return fmt.Errorf("writing account %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) iterateAccounts(fn func(solana.PublicKey, Account) error) error {
	it := l.db.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer it.Release()
	for it.Next() {
		key := solana.PublicKeyFromBytes(it.Key()[len(accountPrefix):])
		var acc Account
		if err := borsh.Deserialize(&acc, it.Value()); err != nil {
			return fmt.Errorf("decoding account %s: %w", key, err)
		}
		if err := fn(key, acc); err != nil {
			return err
		}
	}
	return it.Error()
}

// ================= PoH CLOCK =================

func (l *Ledger) SaveClock(slot uint64, hash solana.Hash) error {
	buf := make([]byte, 8+len(hash))
	binary.BigEndian.PutUint64(buf, slot)
	copy(buf[8:], hash[:])
	return l.db.Put(clockKey, buf, nil)
}

// LoadClock returns the last saved slot and blockhash; ok is false on a
// fresh ledger.
func (l *Ledger) LoadClock() (slot uint64, hash solana.Hash, ok bool, err error) {
	buf, err := l.db.Get(clockKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, hash, false, nil
	}
	if err != nil {
		return 0, hash, false, err
	}
	if len(buf) != 8+len(hash) {
		return 0, hash, false, fmt.Errorf("corrupt clock record (%d bytes)", len(buf))
	}
	copy(hash[:], buf[8:])
	return binary.BigEndian.Uint64(buf), hash, true, nil
}
