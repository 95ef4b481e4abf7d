package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"go.uber.org/zap"

	"github.com/soden46/hyperlux-balance/consensus"
	"github.com/soden46/hyperlux-balance/execution"
	"github.com/soden46/hyperlux-balance/storage"
)

// LamportsPerSignature is the default fee charged to the fee payer.
const LamportsPerSignature uint64 = 5000

var (
	ErrInvalidSignature  = errors.New("invalid transaction signature")
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrAlreadyProcessed  = errors.New("transaction already processed")
)

// ===================== Data Types =====================

type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

type Transaction struct {
	FeePayer        solana.PublicKey
	RecentBlockhash solana.Hash
	Instruction     Instruction
	Signature       solana.Signature
}

// message is the signed part of a transaction.
type message struct {
	FeePayer        solana.PublicKey
	RecentBlockhash solana.Hash
	Instruction     Instruction
}

func (tx *Transaction) Message() ([]byte, error) {
	return borsh.Serialize(message{
		FeePayer:        tx.FeePayer,
		RecentBlockhash: tx.RecentBlockhash,
		Instruction:     tx.Instruction,
	})
}

// ===================== TX Construction =====================

func NewTransaction(payer solana.PrivateKey, ix Instruction, blockhash solana.Hash) (*Transaction, error) {
	tx := &Transaction{
		FeePayer:        payer.PublicKey(),
		RecentBlockhash: blockhash,
		Instruction:     ix,
	}
	msg, err := tx.Message()
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	if tx.Signature, err = payer.Sign(msg); err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return tx, nil
}

func VerifyTransaction(tx *Transaction) bool {
	msg, err := tx.Message()
	if err != nil {
		return false
	}
	return tx.Signature.Verify(tx.FeePayer, msg)
}

// ===================== Processing =====================

type ReceiptStore interface {
	SaveReceipt(*storage.Receipt) error
	Receipt(signature string) (*storage.Receipt, error)
}

type Publisher interface {
	Publish(context.Context, *storage.Receipt) error
}

type ProcessorOption func(*Processor)

func WithFee(lamports uint64) ProcessorOption {
	return func(p *Processor) { p.fee = lamports }
}

func WithPublisher(pub Publisher) ProcessorOption {
	return func(p *Processor) { p.pub = pub }
}

// Processor executes transactions one at a time against the ledger.
type Processor struct {
	ledger   *Ledger
	runtime  *execution.Runtime
	poh      *consensus.Recorder
	receipts ReceiptStore
	pub      Publisher
	fee      uint64
	log      *zap.Logger

	mu sync.Mutex
}

func NewProcessor(l *Ledger, rt *execution.Runtime, poh *consensus.Recorder, receipts ReceiptStore, log *zap.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		ledger:   l,
		runtime:  rt,
		poh:      poh,
		receipts: receipts,
		fee:      LamportsPerSignature,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs tx and records its receipt. A failing program yields a receipt
// with Err set; the returned error is for transactions that could not be
// processed at all.
func (p *Processor) Process(ctx context.Context, tx *Transaction) (*storage.Receipt, error) {
	if !VerifyTransaction(tx) {
		return nil, ErrInvalidSignature
	}
	if !p.poh.IsRecent(tx.RecentBlockhash) {
		return nil, fmt.Errorf("%w: %s", ErrBlockhashNotFound, tx.RecentBlockhash)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sig := tx.Signature.String()
	if _, err := p.receipts.Receipt(sig); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking receipt: %w", err)
	}

	if err := p.ledger.Debit(tx.FeePayer, p.fee); err != nil {
		return nil, fmt.Errorf("charging fee: %w", err)
	}

	ix := tx.Instruction
	accounts := make([]*execution.AccountInfo, 0, len(ix.Accounts))
	keys := make([]string, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		acc, err := p.ledger.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, err
		}
		info := execution.NewAccountInfo(meta.Pubkey, acc.Lamports)
		info.IsSigner = meta.IsSigner && meta.Pubkey == tx.FeePayer
		info.IsWritable = meta.IsWritable
		info.Owner = acc.Owner
		info.Executable = acc.Executable
		info.Data = acc.Data
		accounts = append(accounts, info)
		keys = append(keys, meta.Pubkey.String())
	}

	res := p.runtime.Invoke(ctx, execution.Invocation{
		ProgramID: ix.ProgramID,
		Accounts:  accounts,
		Data:      ix.Data,
	})

	slot, hash := p.poh.Tick(tx.Signature[:])
	if err := p.ledger.SaveClock(slot, hash); err != nil {
		return nil, fmt.Errorf("saving clock: %w", err)
	}

	receipt := &storage.Receipt{
		Signature:    sig,
		Slot:         slot,
		Blockhash:    hash.String(),
		ProgramID:    ix.ProgramID.String(),
		Accounts:     keys,
		Logs:         res.Transcript,
		ComputeUnits: res.ComputeUnits,
		Timestamp:    time.Now().Unix(),
	}
	if res.Err != nil {
		receipt.Err = res.Err.Error()
	}
	if err := p.receipts.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	if p.pub != nil {
		if err := p.pub.Publish(ctx, receipt); err != nil {
			p.log.Warn("publishing receipt failed", zap.String("signature", receipt.Signature), zap.Error(err))
		}
	}

	p.log.Info("transaction processed",
		zap.String("signature", receipt.Signature),
		zap.Uint64("slot", slot),
		zap.Bool("success", receipt.Success()))
	return receipt, nil
}
