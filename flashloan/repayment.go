package flashloan

import (
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// RequiredRepayment returns the least amount the pair must receive for a
// flash swap of borrowed out of reserveBorrowed to pass its invariant check.
//
// Repaying in the other asset is an ordinary exact-out trade priced by
// amm.GetAmountIn. Repaying in the borrowed asset itself needs
// ceil(borrowed*d/(d-n)).
func RequiredRepayment(reserveBorrowed, reserveRepaid, borrowed *uint256.Int, sameAsset bool, fee types.FeeSchedule) (*uint256.Int, error) {
	if !sameAsset {
		return amm.GetAmountIn(reserveRepaid, reserveBorrowed, borrowed, fee)
	}

	if err := fee.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeInvalidFee, apperror.WithCause(err))
	}
	if reserveBorrowed == nil || reserveBorrowed.IsZero() {
		return nil, apperror.New(apperror.CodeInvalidReserves, apperror.WithContext("requiredRepayment"))
	}
	if borrowed == nil || borrowed.IsZero() {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("requiredRepayment: nothing borrowed"))
	}
	if !borrowed.Lt(reserveBorrowed) {
		return nil, apperror.Newf(apperror.CodeInsufficientLiquidity,
			"requiredRepayment: borrow %s of reserve %s", borrowed.Dec(), reserveBorrowed.Dec())
	}

	scaled, overflow := new(uint256.Int).MulOverflow(borrowed, uint256.NewInt(fee.Denominator))
	if overflow {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("requiredRepayment: 256-bit overflow"))
	}
	m := uint256.NewInt(fee.Multiplier())
	repay := new(uint256.Int).Div(scaled, m)
	if !new(uint256.Int).Mod(scaled, m).IsZero() {
		repay.AddUint64(repay, 1)
	}
	return repay, nil
}
