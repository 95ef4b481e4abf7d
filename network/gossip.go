package network

import (
	"context"
	"errors"
	"sync"

	"github.com/soden46/hyperlux-balance/storage"
)

// Topic receipts are gossiped on.
const TopicReceipts = "hyperlux-balance/receipts/v1"

var ErrBusClosed = errors.New("bus closed")

// Bus fans processed receipts out to subscribers.
type Bus interface {
	Publish(ctx context.Context, r *storage.Receipt) error
	// Subscribe returns a channel of receipts and a func to cancel the
	// subscription.
	Subscribe() (<-chan *storage.Receipt, func())
	Close() error
}

// LocalBus is an in-process Bus. Slow subscribers drop receipts rather than
// block the publisher.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]chan *storage.Receipt
	nextID int
	closed bool
	buffer int
}

func NewLocalBus(buffer int) *LocalBus {
	return &LocalBus{subs: make(map[int]chan *storage.Receipt), buffer: buffer}
}

func (b *LocalBus) Publish(_ context.Context, r *storage.Receipt) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- r:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe() (<-chan *storage.Receipt, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *storage.Receipt, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
