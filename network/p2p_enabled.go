//go:build p2p

package network

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	host "github.com/libp2p/go-libp2p/core/host"
	peer "github.com/libp2p/go-libp2p/core/peer"
	quic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/soden46/hyperlux-balance/storage"
)

// P2PBus gossips receipts over GossipSub and delivers remote ones to local
// subscribers.
type P2PBus struct {
	*LocalBus
	host   host.Host
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewP2PBus(ctx context.Context, bootstrap []string, log *zap.Logger) (Bus, error) {
	h, err := libp2p.New(
		libp2p.Transport(quic.NewTransport),
		libp2p.ListenAddrStrings("/ip4/0.0.0.0/udp/0/quic-v1"),
	)
	if err != nil {
		return nil, fmt.Errorf("starting libp2p host: %w", err)
	}
	for _, a := range h.Addrs() {
		log.Info("listening", zap.String("addr", fmt.Sprintf("%s/p2p/%s", a, h.ID())))
	}
	for _, bs := range bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warn("bootstrap connect failed", zap.String("addr", bs), zap.Error(err))
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	topic, err := ps.Join(TopicReceipts)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &P2PBus{
		LocalBus: NewLocalBus(256),
		host:     h,
		topic:    topic,
		sub:      sub,
		cancel:   cancel,
		log:      log,
	}
	go b.readLoop(ctx)
	return b, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (b *P2PBus) Publish(ctx context.Context, r *storage.Receipt) error {
	data, err := cbor.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	if err := b.LocalBus.Publish(ctx, r); err != nil {
		return err
	}
	return b.topic.Publish(ctx, data)
}

func (b *P2PBus) readLoop(ctx context.Context) {
	for {
		msg, err := b.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == b.host.ID() {
			continue
		}
		var r storage.Receipt
		if err := cbor.Unmarshal(msg.Data, &r); err != nil {
			b.log.Debug("dropping undecodable receipt", zap.Error(err))
			continue
		}
		_ = b.LocalBus.Publish(ctx, &r)
	}
}

func (b *P2PBus) Close() error {
	b.cancel()
	b.sub.Cancel()
	_ = b.topic.Close()
	_ = b.LocalBus.Close()
	return b.host.Close()
}
