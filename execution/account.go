package execution

import (
	"github.com/gagliardetto/solana-go"
)

// AccountInfo is the runtime's view of one account passed to a program.
// Programs borrow it for the duration of a call and must not keep it.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	Owner      solana.PublicKey
	Executable bool
	Data       []byte

	lamports uint64
}

func NewAccountInfo(key solana.PublicKey, lamports uint64) *AccountInfo {
	return &AccountInfo{Key: key, lamports: lamports}
}

// Lamports returns the native balance of the account.
func (a *AccountInfo) Lamports() uint64 {
	return a.lamports
}

// AccountIter walks an account sequence front to back.
type AccountIter struct {
	accounts []*AccountInfo
	pos      int
}

func NewAccountIter(accounts []*AccountInfo) *AccountIter {
	return &AccountIter{accounts: accounts}
}

// Remaining is the number of accounts not yet taken.
func (it *AccountIter) Remaining() int {
	return len(it.accounts) - it.pos
}

// NextAccountInfo takes the next account from the iterator. Returns
// ErrNotEnoughAccountKeys once the sequence is exhausted.
func NextAccountInfo(it *AccountIter) (*AccountInfo, error) {
	if it == nil || it.pos >= len(it.accounts) {
		return nil, ErrNotEnoughAccountKeys
	}
	a := it.accounts[it.pos]
	it.pos++
	return a, nil
}
