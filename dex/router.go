package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// Router executes SwapLegs on behalf of one account. The account holds the
// reference asset as native ETH between legs; wrapping for the V2 pair
// happens inside the leg.
type Router struct {
	Account common.Address
	V1      LegacyExchange
	V2      Pair
	WETH    WrappedNative
	Token   Token
	Clock   Clock
	FeeV2   types.FeeSchedule
	RefSlot types.AssetSlot

	logger *zap.Logger
}

// NewRouter creates a leg router
func NewRouter(account common.Address, v1 LegacyExchange, v2 Pair, weth WrappedNative, token Token,
	clock Clock, feeV2 types.FeeSchedule, refSlot types.AssetSlot, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		Account: account,
		V1:      v1,
		V2:      v2,
		WETH:    weth,
		Token:   token,
		Clock:   clock,
		FeeV2:   feeV2,
		RefSlot: refSlot,
		logger:  logger,
	}
}

// Swap executes leg and returns the amount received
func (r *Router) Swap(ctx context.Context, leg types.SwapLeg) (*uint256.Int, error) {
	r.logger.Debug("Executing leg", zap.Stringer("leg", leg))

	switch leg.Venue {
	case types.VenueV1:
		return r.swapV1(ctx, leg)
	case types.VenueV2:
		return r.swapV2(ctx, leg)
	default:
		return nil, NewAdapterError(KindMisconfigured, "swap", fmt.Errorf("unknown venue %s", leg.Venue))
	}
}

func (r *Router) sellsReference(leg types.SwapLeg) bool {
	return leg.TokenIn == r.WETH.Address()
}

func (r *Router) swapV1(ctx context.Context, leg types.SwapLeg) (*uint256.Int, error) {
	if r.sellsReference(leg) {
		out, err := r.V1.EthToTokenSwapInput(ctx, leg.AmountIn, leg.MinAmountOut, leg.Deadline)
		return out, Wrap(KindReverted, "v1.ethToTokenSwapInput", err)
	}

	if err := r.Approve(ctx, r.Token, r.V1.Address(), leg.AmountIn); err != nil {
		return nil, err
	}
	out, err := r.V1.TokenToEthSwapInput(ctx, leg.AmountIn, leg.MinAmountOut, leg.Deadline)
	return out, Wrap(KindReverted, "v1.tokenToEthSwapInput", err)
}

// swapV2 is the exact-input router sequence: check deadline, quote against
// current reserves, enforce the minimum, pay in, then pull out.
func (r *Router) swapV2(ctx context.Context, leg types.SwapLeg) (*uint256.Int, error) {
	now, err := r.Clock.Now(ctx)
	if err != nil {
		return nil, Wrap(KindNetwork, "clock", err)
	}
	if now > leg.Deadline {
		return nil, apperror.Newf(apperror.CodeDeadlineExpired, "v2 leg deadline %d, now %d", leg.Deadline, now)
	}

	reserve0, reserve1, err := r.V2.GetReserves(ctx)
	if err != nil {
		return nil, Wrap(KindNetwork, "v2.getReserves", err)
	}

	inSlot := r.RefSlot.Other()
	if r.sellsReference(leg) {
		inSlot = r.RefSlot
	}
	outSlot := inSlot.Other()

	out, err := amm.GetAmountOut(inSlot.Pick(reserve0, reserve1), outSlot.Pick(reserve0, reserve1), leg.AmountIn, r.FeeV2)
	if err != nil {
		return nil, err
	}
	if out.Lt(leg.MinAmountOut) {
		return nil, apperror.Newf(apperror.CodeSlippageExceeded, "v2 out %s below min %s", out.Dec(), leg.MinAmountOut.Dec())
	}

	if r.sellsReference(leg) {
		if err := r.WETH.Deposit(ctx, leg.AmountIn); err != nil {
			return nil, Wrap(KindReverted, "weth.deposit", err)
		}
		if err := r.Transfer(ctx, r.WETH, r.V2.Address(), leg.AmountIn); err != nil {
			return nil, err
		}
	} else if err := r.Transfer(ctx, r.Token, r.V2.Address(), leg.AmountIn); err != nil {
		return nil, err
	}

	amount0, amount1 := outSlot.Amounts(out)
	if err := r.V2.Swap(ctx, amount0, amount1, r.Account, nil); err != nil {
		return nil, Wrap(KindReverted, "v2.swap", err)
	}

	if !r.sellsReference(leg) {
		if err := r.WETH.Withdraw(ctx, out); err != nil {
			return nil, Wrap(KindReverted, "weth.withdraw", err)
		}
	}
	return out, nil
}

// Transfer moves amount of token from the account to `to`
func (r *Router) Transfer(ctx context.Context, token Token, to common.Address, amount *uint256.Int) error {
	return Wrap(KindInsufficientBalance, "transfer", token.Transfer(ctx, to, amount))
}

// Approve lets spender pull amount of token from the account
func (r *Router) Approve(ctx context.Context, token Token, spender common.Address, amount *uint256.Int) error {
	return Wrap(KindReverted, "approve", token.Approve(ctx, spender, amount))
}
