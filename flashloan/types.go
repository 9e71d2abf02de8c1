// Package flashloan guards the V2 pair's flash-swap callback and computes
// what the pair must be paid back before its swap call returns.
package flashloan

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Callback is the argument set a flash-swap callee receives
type Callback struct {
	Caller  common.Address
	Sender  common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

func (c Callback) String() string {
	return fmt.Sprintf("caller=%s sender=%s amount0=%s amount1=%s",
		c.Caller.Hex(), c.Sender.Hex(), decOrZero(c.Amount0), decOrZero(c.Amount1))
}

func decOrZero(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}

func eqOrZero(x, y *uint256.Int) bool {
	zero := uint256.NewInt(0)
	if x == nil {
		x = zero
	}
	if y == nil {
		y = zero
	}
	return x.Eq(y)
}
