package flashloan

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/michaelpento.lv/candyarb/types"
)

// Lender is the borrow side of a flash swap as seen by the borrower: it holds
// one obligation at a time, admits the callback that obligation expects and
// checks what is paid back.
type Lender interface {
	Arm(ob *types.BorrowObligation) error
	Disarm()
	Pending() *types.BorrowObligation
	Enter(ctx context.Context, cb Callback, advance func() error) (*types.BorrowObligation, error)
	Requirement(ctx context.Context) (*uint256.Int, error)
	CheckProceeds(proceeds, cost *uint256.Int) error
	Settle(repaid, required *uint256.Int) error
	Collectors() []prometheus.Collector
}

var _ Lender = (*Guard)(nil)
