// Package amm models the constant-product pricing curves of both venues.
// All functions are pure and integer-exact: outputs round down, required
// inputs round up, matching what the venues themselves compute.
package amm

import (
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// GetAmountOut returns the output of swapping amountIn against the given reserves:
//
//	amountOut = amountIn*(d-n)*reserveOut / (reserveIn*d + amountIn*(d-n))
func GetAmountOut(reserveIn, reserveOut, amountIn *uint256.Int, fee types.FeeSchedule) (*uint256.Int, error) {
	if err := checkFee(fee); err != nil {
		return nil, err
	}
	if isZero(reserveIn) || isZero(reserveOut) {
		return nil, apperror.New(apperror.CodeInvalidReserves, apperror.WithContext("getAmountOut"))
	}
	if isZero(amountIn) {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("getAmountOut: zero input"))
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(fee.Multiplier()))
	if overflow {
		return nil, overflowErr("getAmountOut")
	}
	scaledReserveIn, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(fee.Denominator))
	if overflow {
		return nil, overflowErr("getAmountOut")
	}
	denominator, overflow := new(uint256.Int).AddOverflow(scaledReserveIn, amountInWithFee)
	if overflow {
		return nil, overflowErr("getAmountOut")
	}

	// 512-bit intermediate; the quotient is always below reserveOut.
	amountOut, _ := new(uint256.Int).MulDivOverflow(amountInWithFee, reserveOut, denominator)
	return amountOut, nil
}

// GetAmountIn returns the input required to receive amountOut:
//
//	amountIn = reserveIn*amountOut*d / ((reserveOut-amountOut)*(d-n)) + 1
//
// The trailing +1 is the venues' own rounding and is never below the exact ceiling.
func GetAmountIn(reserveIn, reserveOut, amountOut *uint256.Int, fee types.FeeSchedule) (*uint256.Int, error) {
	if err := checkFee(fee); err != nil {
		return nil, err
	}
	if isZero(reserveIn) || isZero(reserveOut) {
		return nil, apperror.New(apperror.CodeInvalidReserves, apperror.WithContext("getAmountIn"))
	}
	if isZero(amountOut) {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("getAmountIn: zero output"))
	}
	if !amountOut.Lt(reserveOut) {
		return nil, apperror.Newf(apperror.CodeInsufficientLiquidity,
			"getAmountIn: want %s of reserve %s", amountOut.Dec(), reserveOut.Dec())
	}

	scaledReserveIn, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(fee.Denominator))
	if overflow {
		return nil, overflowErr("getAmountIn")
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, overflow := new(uint256.Int).MulOverflow(remaining, uint256.NewInt(fee.Multiplier()))
	if overflow {
		return nil, overflowErr("getAmountIn")
	}

	amountIn, overflow := new(uint256.Int).MulDivOverflow(scaledReserveIn, amountOut, denominator)
	if overflow {
		return nil, overflowErr("getAmountIn")
	}
	amountIn, overflow = amountIn.AddOverflow(amountIn, uint256.NewInt(1))
	if overflow {
		return nil, overflowErr("getAmountIn")
	}
	return amountIn, nil
}

// Quote returns the fee-free marginal conversion amountA*reserveB/reserveA.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if isZero(reserveA) || isZero(reserveB) {
		return nil, apperror.New(apperror.CodeInvalidReserves, apperror.WithContext("quote"))
	}
	if isZero(amountA) {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("quote"))
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amountA, reserveB, reserveA)
	if overflow {
		return nil, overflowErr("quote")
	}
	return out, nil
}

// Hop is one constant-product curve traversed by ChainOut
type Hop struct {
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
	Fee        types.FeeSchedule
}

// ChainOut feeds amountIn through each hop in order and returns every
// intermediate amount; the last element is the final output.
func ChainOut(amountIn *uint256.Int, hops ...Hop) ([]*uint256.Int, error) {
	amounts := make([]*uint256.Int, 0, len(hops))
	current := amountIn
	for _, hop := range hops {
		out, err := GetAmountOut(hop.ReserveIn, hop.ReserveOut, current, hop.Fee)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, out)
		current = out
	}
	return amounts, nil
}

func checkFee(fee types.FeeSchedule) error {
	if err := fee.Validate(); err != nil {
		return apperror.New(apperror.CodeInvalidFee, apperror.WithCause(err))
	}
	return nil
}

func overflowErr(op string) error {
	return apperror.New(apperror.CodeInvalidAmount, apperror.WithContext(op+": 256-bit overflow"))
}

func isZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}
