package uniswap

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClock reports the latest block timestamp, which is what on-chain
// deadlines are checked against.
type ChainClock struct {
	backend Backend
	caller  *Caller
}

// NewChainClock creates a clock over backend
func NewChainClock(backend Backend, caller *Caller) *ChainClock {
	return &ChainClock{backend: backend, caller: caller}
}

// Now returns the latest header's timestamp
func (c *ChainClock) Now(ctx context.Context) (uint64, error) {
	out, err := c.caller.do(ctx, "eth_getBlockByNumber", func() (any, error) {
		return c.backend.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return 0, err
	}
	return out.(*types.Header).Time, nil
}
