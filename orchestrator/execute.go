package orchestrator

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/flashloan"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// execute runs plan as a single ledger transaction and returns the change in
// the account's ETH plus WETH holdings.
func (o *Orchestrator) execute(ctx context.Context, a *attempt, plan *types.ExecutionPlan) (*big.Int, error) {
	var profit *big.Int
	err := o.deps.Ledger.Atomic(ctx, func(ctx context.Context) error {
		o.setActive(a)
		defer o.setActive(nil)

		before, err := o.holdings(ctx)
		if err != nil {
			return err
		}

		switch plan.Shape {
		case types.ShapeDirect:
			err = o.runDirect(ctx, a, plan)
		case types.ShapeBorrow:
			err = o.runBorrow(ctx, a, plan)
		default:
			err = apperror.Newf(apperror.CodeInvalidState, "unknown shape %s", plan.Shape)
		}
		if err != nil {
			return err
		}

		after, err := o.holdings(ctx)
		if err != nil {
			return err
		}
		profit = umath.SignedDiff(after, before)
		if profit.Sign() <= 0 {
			return apperror.Newf(apperror.CodeSlippageExceeded, "realized profit %s", profit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profit, nil
}

func (o *Orchestrator) holdings(ctx context.Context) (*uint256.Int, error) {
	native, err := o.deps.Ledger.NativeBalance(ctx, o.deps.Account)
	if err != nil {
		return nil, dex.Wrap(dex.KindNetwork, "nativeBalance", err)
	}
	wrapped, err := o.deps.WETH.BalanceOf(ctx, o.deps.Account)
	if err != nil {
		return nil, dex.Wrap(dex.KindNetwork, "weth.balanceOf", err)
	}
	return new(uint256.Int).Add(native, wrapped), nil
}

func (o *Orchestrator) runDirect(ctx context.Context, a *attempt, plan *types.ExecutionPlan) error {
	if err := a.to(ExecutingLeg1); err != nil {
		return err
	}
	got, err := o.router.Swap(ctx, plan.Legs[0])
	if err != nil {
		return err
	}

	if err := a.to(ExecutingLeg2); err != nil {
		return err
	}
	second := plan.Legs[1]
	second.AmountIn = got
	_, err = o.router.Swap(ctx, second)
	return err
}

func (o *Orchestrator) runBorrow(ctx context.Context, a *attempt, plan *types.ExecutionPlan) error {
	ob := plan.Borrow
	if err := o.guard.Arm(ob); err != nil {
		return err
	}
	defer o.guard.Disarm()

	if err := a.to(ExecutingLeg1); err != nil {
		return err
	}

	amount0, amount1 := ob.BorrowSlot.Amounts(ob.AmountBorrowed)
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, a.id)
	if err := o.deps.V2.Swap(ctx, amount0, amount1, o.deps.Account, data); err != nil {
		return dex.Wrap(dex.KindReverted, "v2.swap", err)
	}

	if s := a.current(); s != ExecutingLeg2 {
		return apperror.Newf(apperror.CodeInvalidState, "pair returned in state %s without calling back", s)
	}
	return nil
}

// OnVenueCallback is invoked by the V2 pair in the middle of a flash swap.
// It completes the second leg and repays the pair.
func (o *Orchestrator) OnVenueCallback(ctx context.Context, caller, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error {
	a := o.current()
	cb := flashloan.Callback{Caller: caller, Sender: sender, Amount0: amount0, Amount1: amount1}

	ob, err := o.guard.Enter(ctx, cb, func() error {
		if a == nil {
			return apperror.New(apperror.CodeUnauthorizedCallback, apperror.WithContext("no attempt in progress"))
		}
		return a.to(AwaitingCallback)
	})
	if err != nil {
		return err
	}
	if err := a.to(ExecutingLeg2); err != nil {
		return err
	}

	plan := a.currentPlan()
	if plan == nil || len(plan.Legs) < 2 {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("callback without a borrow plan"))
	}

	if ob.BorrowAsset == o.deps.Token.Address() {
		return o.repayInReference(ctx, plan.Legs[1], ob)
	}
	return o.repayInToken(ctx, plan.Legs[1], ob)
}

// repayInReference sells the borrowed tokens on V1 and pays the pair in WETH
func (o *Orchestrator) repayInReference(ctx context.Context, leg types.SwapLeg, ob *types.BorrowObligation) error {
	leg.AmountIn = ob.AmountBorrowed
	proceeds, err := o.router.Swap(ctx, leg)
	if err != nil {
		return err
	}

	required, err := o.guard.Requirement(ctx)
	if err != nil {
		return err
	}
	if err := o.guard.CheckProceeds(proceeds, required); err != nil {
		return err
	}

	if err := o.deps.WETH.Deposit(ctx, required); err != nil {
		return dex.Wrap(dex.KindReverted, "weth.deposit", err)
	}
	repaid, err := o.pay(ctx, o.deps.WETH, required)
	if err != nil {
		return err
	}

	o.logger.Debug("Flash swap repaid",
		zap.String("borrowed_tokens", ob.AmountBorrowed.Dec()),
		zap.String("proceeds", proceeds.Dec()),
		zap.String("repaid_weth", repaid.Dec()),
	)
	return o.guard.Settle(repaid, required)
}

// repayInToken unwraps the borrowed WETH, buys exactly the tokens the pair
// requires on V1 and pays them back.
func (o *Orchestrator) repayInToken(ctx context.Context, leg types.SwapLeg, ob *types.BorrowObligation) error {
	required, err := o.guard.Requirement(ctx)
	if err != nil {
		return err
	}

	tokenReserve, ethReserve, err := o.deps.V1.GetReserves(ctx)
	if err != nil {
		return dex.Wrap(dex.KindNetwork, "v1.getReserves", err)
	}
	cost, err := amm.GetAmountIn(ethReserve, tokenReserve, required, o.settings.FeeV1)
	if err != nil {
		return err
	}
	if err := o.guard.CheckProceeds(ob.AmountBorrowed, cost); err != nil {
		return err
	}

	if err := o.deps.WETH.Withdraw(ctx, ob.AmountBorrowed); err != nil {
		return dex.Wrap(dex.KindReverted, "weth.withdraw", err)
	}
	leg.AmountIn = cost
	leg.MinAmountOut = required
	if _, err := o.router.Swap(ctx, leg); err != nil {
		return err
	}

	repaid, err := o.pay(ctx, o.deps.Token, required)
	if err != nil {
		return err
	}

	o.logger.Debug("Flash swap repaid",
		zap.String("borrowed_weth", ob.AmountBorrowed.Dec()),
		zap.String("cost", cost.Dec()),
		zap.String("repaid_tokens", repaid.Dec()),
	)
	return o.guard.Settle(repaid, required)
}

// pay transfers amount of token to the pair and returns what actually arrived
func (o *Orchestrator) pay(ctx context.Context, token dex.Token, amount *uint256.Int) (*uint256.Int, error) {
	pair := o.deps.V2.Address()
	before, err := token.BalanceOf(ctx, pair)
	if err != nil {
		return nil, dex.Wrap(dex.KindNetwork, "balanceOf", err)
	}
	if err := o.router.Transfer(ctx, token, pair, amount); err != nil {
		return nil, err
	}
	after, err := token.BalanceOf(ctx, pair)
	if err != nil {
		return nil, dex.Wrap(dex.KindNetwork, "balanceOf", err)
	}
	if after.Lt(before) {
		return nil, dex.NewAdapterError(dex.KindReverted, "pay", fmt.Errorf("pair balance fell from %s to %s", before.Dec(), after.Dec()))
	}
	return new(uint256.Int).Sub(after, before), nil
}
