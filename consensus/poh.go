package consensus

import (
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/soden46/hyperlux-balance/crypto"
)

// MaxRecentBlockhashes is how many past blockhashes a transaction may
// reference.
const MaxRecentBlockhashes = 150

// Recorder is a proof-of-history style hash chain. Every tick mixes data into
// the previous hash and advances the slot.
type Recorder struct {
	mu     sync.RWMutex
	slot   uint64
	recent []solana.Hash // oldest first, at most MaxRecentBlockhashes
}

// NewRecorder starts a chain from a genesis hash derived from seed.
func NewRecorder(seed []byte) *Recorder {
	return NewRecorderAt(0, crypto.Hash([]byte("genesis"), seed))
}

// NewRecorderAt resumes a chain at slot with hash as the latest blockhash.
func NewRecorderAt(slot uint64, hash solana.Hash) *Recorder {
	return &Recorder{slot: slot, recent: []solana.Hash{hash}}
}

// Tick advances the chain by one slot and returns the new slot and hash.
func (r *Recorder) Tick(data []byte) (uint64, solana.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.recent[len(r.recent)-1]
	var slotBuf [8]byte
	r.slot++
	binary.BigEndian.PutUint64(slotBuf[:], r.slot)
	next := crypto.Hash(prev[:], slotBuf[:], data)

	r.recent = append(r.recent, next)
	if len(r.recent) > MaxRecentBlockhashes {
		r.recent = r.recent[len(r.recent)-MaxRecentBlockhashes:]
	}
	return r.slot, next
}

func (r *Recorder) LatestBlockhash() (uint64, solana.Hash) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slot, r.recent[len(r.recent)-1]
}

// IsRecent reports whether hash is one of the last MaxRecentBlockhashes.
func (r *Recorder) IsRecent(hash solana.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.recent) - 1; i >= 0; i-- {
		if r.recent[i] == hash {
			return true
		}
	}
	return false
}
