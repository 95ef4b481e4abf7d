package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"
)

var (
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Ledger is the account table backing the runtime.
type Ledger struct {
	db  *leveldb.DB
	log *zap.Logger
	// serializes read-modify-write of balances
	mu sync.Mutex
}

// Open opens (or creates) the LevelDB ledger at path. An empty path opens an
// in-memory ledger.
func Open(path string, log *zap.Logger) (*Ledger, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return &Ledger{db: db, log: log}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// GetAccount returns the account at key; unknown keys yield a zero account.
func (l *Ledger) GetAccount(key solana.PublicKey) (Account, error) {
	return l.loadAccount(key)
}

func (l *Ledger) PutAccount(key solana.PublicKey, acc Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storeAccount(key, acc)
}

func (l *Ledger) Balance(key solana.PublicKey) (uint64, error) {
	acc, err := l.loadAccount(key)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// Airdrop credits lamports to key and returns the new balance.
func (l *Ledger) Airdrop(key solana.PublicKey, lamports uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.loadAccount(key)
	if err != nil {
		return 0, err
	}
	if acc.Lamports > math.MaxUint64-lamports {
		return acc.Lamports, ErrBalanceOverflow
	}
	acc.Lamports += lamports
	if err := l.storeAccount(key, acc); err != nil {
		return 0, err
	}
	l.log.Info("airdrop", zap.Stringer("account", key), zap.Uint64("lamports", lamports), zap.Uint64("balance", acc.Lamports))
	return acc.Lamports, nil
}

// Debit removes lamports from key.
func (l *Ledger) Debit(key solana.PublicKey, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.loadAccount(key)
	if err != nil {
		return err
	}
	if acc.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, key, acc.Lamports, lamports)
	}
	acc.Lamports -= lamports
	return l.storeAccount(key, acc)
}

// Accounts calls fn for every stored account in key order.
func (l *Ledger) Accounts(fn func(solana.PublicKey, Account) error) error {
	return l.iterateAccounts(fn)
}
