//go:build !p2p

package network

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrP2PDisabled is returned by NewP2PBus when built without the p2p tag.
var ErrP2PDisabled = errors.New("p2p disabled, build with -tags p2p")

func NewP2PBus(_ context.Context, _ []string, _ *zap.Logger) (Bus, error) {
	return nil, ErrP2PDisabled
}
