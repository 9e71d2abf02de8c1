package uniswap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// Call is one unsigned contract call
type Call struct {
	To          common.Address
	Value       *uint256.Int
	Data        []byte
	Description string
}

// Contracts are the addresses a plan's calls are sent to. Receiver is the
// account (or contract) that receives swap output and flash-swap callbacks.
type Contracts struct {
	Exchange common.Address
	Pair     common.Address
	Token    common.Address
	WETH     common.Address
	Receiver common.Address
}

// PackEthToTokenSwapInput encodes a V1 ETH sale; the ETH travels as call value
func PackEthToTokenSwapInput(minTokens *uint256.Int, deadline uint64) ([]byte, error) {
	return exchangeABI.Pack("ethToTokenSwapInput", umath.ToBig(minTokens), new(big.Int).SetUint64(deadline))
}

// PackTokenToEthSwapInput encodes a V1 token sale
func PackTokenToEthSwapInput(tokensSold, minEth *uint256.Int, deadline uint64) ([]byte, error) {
	return exchangeABI.Pack("tokenToEthSwapInput", umath.ToBig(tokensSold), umath.ToBig(minEth), new(big.Int).SetUint64(deadline))
}

// PackPairSwap encodes a V2 pair swap. Non-empty data makes it a flash swap.
func PackPairSwap(amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	return pairABI.Pack("swap", umath.ToBig(amount0Out), umath.ToBig(amount1Out), to, data)
}

// PackTransfer encodes an ERC20 transfer
func PackTransfer(to common.Address, amount *uint256.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, umath.ToBig(amount))
}

// PackApprove encodes an ERC20 approval
func PackApprove(spender common.Address, amount *uint256.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, umath.ToBig(amount))
}

// PackDeposit encodes WETH deposit; the ETH travels as call value
func PackDeposit() ([]byte, error) {
	return erc20ABI.Pack("deposit")
}

// PackWithdraw encodes WETH withdraw
func PackWithdraw(amount *uint256.Int) ([]byte, error) {
	return erc20ABI.Pack("withdraw", umath.ToBig(amount))
}

// BuildPlanCalls returns the ordered calls that execute plan. refSlot is the
// pair slot holding WETH. V2 legs request exactly their minimum output, and
// the second direct leg spends exactly the first leg's minimum.
//
// A borrow plan is a single flash swap: the rest of the cycle runs in the
// receiver's callback and has no calldata of its own.
func BuildPlanCalls(plan *types.ExecutionPlan, c Contracts, refSlot types.AssetSlot) ([]Call, error) {
	if err := plan.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithCause(err))
	}

	if plan.Shape == types.ShapeBorrow {
		ob := plan.Borrow
		amount0, amount1 := ob.BorrowSlot.Amounts(ob.AmountBorrowed)
		data, err := PackPairSwap(amount0, amount1, c.Receiver, []byte{0x01})
		if err != nil {
			return nil, err
		}
		return []Call{{
			To:          c.Pair,
			Value:       uint256.NewInt(0),
			Data:        data,
			Description: fmt.Sprintf("v2.swap flash borrow %s of %s", ob.AmountBorrowed.Dec(), ob.BorrowAsset.Hex()),
		}}, nil
	}

	var calls []Call
	for i, leg := range plan.Legs {
		if i > 0 {
			leg.AmountIn = plan.Legs[i-1].MinAmountOut
		}
		legCalls, err := buildLegCalls(leg, c, refSlot)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		calls = append(calls, legCalls...)
	}
	return calls, nil
}

func buildLegCalls(leg types.SwapLeg, c Contracts, refSlot types.AssetSlot) ([]Call, error) {
	sellsReference := leg.TokenIn == c.WETH
	zero := uint256.NewInt(0)

	switch {
	case leg.Venue == types.VenueV1 && sellsReference:
		data, err := PackEthToTokenSwapInput(leg.MinAmountOut, leg.Deadline)
		if err != nil {
			return nil, err
		}
		return []Call{{To: c.Exchange, Value: leg.AmountIn, Data: data, Description: "v1.ethToTokenSwapInput"}}, nil

	case leg.Venue == types.VenueV1:
		approve, err := PackApprove(c.Exchange, leg.AmountIn)
		if err != nil {
			return nil, err
		}
		swap, err := PackTokenToEthSwapInput(leg.AmountIn, leg.MinAmountOut, leg.Deadline)
		if err != nil {
			return nil, err
		}
		return []Call{
			{To: c.Token, Value: zero, Data: approve, Description: "token.approve"},
			{To: c.Exchange, Value: zero, Data: swap, Description: "v1.tokenToEthSwapInput"},
		}, nil

	case leg.Venue == types.VenueV2 && sellsReference:
		deposit, err := PackDeposit()
		if err != nil {
			return nil, err
		}
		transfer, err := PackTransfer(c.Pair, leg.AmountIn)
		if err != nil {
			return nil, err
		}
		amount0, amount1 := refSlot.Other().Amounts(leg.MinAmountOut)
		swap, err := PackPairSwap(amount0, amount1, c.Receiver, nil)
		if err != nil {
			return nil, err
		}
		return []Call{
			{To: c.WETH, Value: leg.AmountIn, Data: deposit, Description: "weth.deposit"},
			{To: c.WETH, Value: zero, Data: transfer, Description: "weth.transfer"},
			{To: c.Pair, Value: zero, Data: swap, Description: "v2.swap"},
		}, nil

	case leg.Venue == types.VenueV2:
		transfer, err := PackTransfer(c.Pair, leg.AmountIn)
		if err != nil {
			return nil, err
		}
		amount0, amount1 := refSlot.Amounts(leg.MinAmountOut)
		swap, err := PackPairSwap(amount0, amount1, c.Receiver, nil)
		if err != nil {
			return nil, err
		}
		withdraw, err := PackWithdraw(leg.MinAmountOut)
		if err != nil {
			return nil, err
		}
		return []Call{
			{To: c.Token, Value: zero, Data: transfer, Description: "token.transfer"},
			{To: c.Pair, Value: zero, Data: swap, Description: "v2.swap"},
			{To: c.WETH, Value: zero, Data: withdraw, Description: "weth.withdraw"},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported venue %s", leg.Venue)
	}
}
