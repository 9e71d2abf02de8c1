package dex

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LegacyReserveReader reads a V1 exchange's reserves
type LegacyReserveReader interface {
	Address() common.Address

	// GetReserves returns the exchange's token and ETH holdings
	GetReserves(ctx context.Context) (tokenReserve, ethReserve *uint256.Int, err error)
}

// LegacyExchange is a V1 single-token exchange trading native ETH
type LegacyExchange interface {
	LegacyReserveReader

	// EthToTokenSwapInput sells exactly ethSold and returns the tokens bought
	EthToTokenSwapInput(ctx context.Context, ethSold, minTokens *uint256.Int, deadline uint64) (*uint256.Int, error)

	// TokenToEthSwapInput sells exactly tokensSold and returns the ETH bought
	TokenToEthSwapInput(ctx context.Context, tokensSold, minEth *uint256.Int, deadline uint64) (*uint256.Int, error)
}

// PairReader reads a V2 pair's ordering and reserves
type PairReader interface {
	Address() common.Address
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
	GetReserves(ctx context.Context) (reserve0, reserve1 *uint256.Int, err error)
}

// Pair is a V2 constant-product pair. Swap pays the requested outputs to `to`
// and, when data is non-empty, calls back into `to` before checking the invariant.
type Pair interface {
	PairReader
	Swap(ctx context.Context, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error
}

// Token is a fungible asset
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, spender common.Address, amount *uint256.Int) error
}

// WrappedNative is the reference-asset wrapper traded by the V2 pair
type WrappedNative interface {
	Token
	Deposit(ctx context.Context, amount *uint256.Int) error
	Withdraw(ctx context.Context, amount *uint256.Int) error
}

// Clock reports the timestamp deadlines are checked against
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Ledger executes a unit of work all-or-nothing. If fn returns an error none
// of its effects persist.
type Ledger interface {
	Clock
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	NativeBalance(ctx context.Context, owner common.Address) (*uint256.Int, error)
}

// FlashSwapCallee receives the V2 pair's mid-swap callback. caller is the
// address that invoked the callback; sender is who initiated the swap.
type FlashSwapCallee interface {
	OnVenueCallback(ctx context.Context, caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error
}
