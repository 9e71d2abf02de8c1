package flashloan

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// Guard holds at most one outstanding borrow obligation and decides whether
// an incoming callback is the one that obligation is waiting for.
type Guard struct {
	mu      sync.Mutex
	pair    dex.PairReader
	account common.Address
	clock   dex.Clock
	fee     types.FeeSchedule
	pending *types.BorrowObligation
	entered bool
	logger  *zap.Logger

	metrics struct {
		callbacks  *prometheus.CounterVec
		shortfalls prometheus.Counter
		repaid     prometheus.Counter
		active     prometheus.Gauge
	}
}

// NewGuard creates a guard for callbacks from pair on behalf of account
func NewGuard(pair dex.PairReader, account common.Address, clock dex.Clock, fee types.FeeSchedule, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		pair:    pair,
		account: account,
		clock:   clock,
		fee:     fee,
		logger:  logger,
	}

	g.metrics.callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashswap_callbacks_total",
		Help: "Flash-swap callbacks by guard verdict",
	}, []string{"verdict"})

	g.metrics.shortfalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashswap_repayment_shortfalls_total",
		Help: "Settlements rejected for repaying below the pair's requirement",
	})

	g.metrics.repaid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashswap_settlements_total",
		Help: "Obligations repaid in full",
	})

	g.metrics.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flashswap_active_obligations",
		Help: "Obligations currently armed",
	})

	return g
}

// Collectors returns the guard's metrics for registration
func (g *Guard) Collectors() []prometheus.Collector {
	return []prometheus.Collector{g.metrics.callbacks, g.metrics.shortfalls, g.metrics.repaid, g.metrics.active}
}

// Arm records the obligation the next callback must match
func (g *Guard) Arm(ob *types.BorrowObligation) error {
	if ob == nil || ob.AmountBorrowed == nil || ob.AmountBorrowed.IsZero() {
		return apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("arm: empty obligation"))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("arm: obligation already pending"))
	}
	g.pending = ob
	g.entered = false
	g.metrics.active.Inc()

	g.logger.Debug("Obligation armed",
		zap.String("borrow", ob.AmountBorrowed.Dec()),
		zap.String("borrow_asset", ob.BorrowAsset.Hex()),
		zap.Stringer("slot", ob.BorrowSlot),
	)
	return nil
}

// Disarm clears any pending obligation
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.metrics.active.Dec()
	}
	g.pending = nil
	g.entered = false
}

// Pending returns the armed obligation, if any
func (g *Guard) Pending() *types.BorrowObligation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Enter admits cb if it comes from the pair, was initiated by the account,
// carries exactly the borrowed amounts and arrives before the deadline.
// advance performs the caller's own state transition and may veto entry.
func (g *Guard) Enter(ctx context.Context, cb Callback, advance func() error) (*types.BorrowObligation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb.Caller != g.pair.Address() {
		return nil, g.reject(cb, apperror.Newf(apperror.CodeUnauthorizedCallback, "caller %s is not pair %s", cb.Caller.Hex(), g.pair.Address().Hex()))
	}
	ob := g.pending
	if ob == nil {
		return nil, g.reject(cb, apperror.New(apperror.CodeUnauthorizedCallback, apperror.WithContext("no pending obligation")))
	}
	if g.entered {
		return nil, g.reject(cb, apperror.New(apperror.CodeInvalidState, apperror.WithContext("callback re-entered")))
	}
	if cb.Sender != g.account {
		return nil, g.reject(cb, apperror.Newf(apperror.CodeUnauthorizedCallback, "swap initiated by %s", cb.Sender.Hex()))
	}

	want0, want1 := ob.BorrowSlot.Amounts(ob.AmountBorrowed)
	if !eqOrZero(cb.Amount0, want0) || !eqOrZero(cb.Amount1, want1) {
		return nil, g.reject(cb, apperror.Newf(apperror.CodeUnauthorizedCallback,
			"amounts (%s, %s) do not match obligation (%s, %s)", decOrZero(cb.Amount0), decOrZero(cb.Amount1), want0.Dec(), want1.Dec()))
	}

	now, err := g.clock.Now(ctx)
	if err != nil {
		return nil, g.reject(cb, dex.Wrap(dex.KindNetwork, "clock", err))
	}
	if now > ob.Deadline {
		return nil, g.reject(cb, apperror.Newf(apperror.CodeDeadlineExpired, "callback at %d, deadline %d", now, ob.Deadline))
	}

	if advance != nil {
		if err := advance(); err != nil {
			return nil, g.reject(cb, err)
		}
	}

	g.entered = true
	g.metrics.callbacks.WithLabelValues("accepted").Inc()
	g.logger.Debug("Callback accepted", zap.Stringer("callback", cb))
	return ob, nil
}

func (g *Guard) reject(cb Callback, err error) error {
	g.metrics.callbacks.WithLabelValues("rejected").Inc()
	g.logger.Warn("Callback rejected", zap.Stringer("callback", cb), zap.Error(err))
	return err
}

// Requirement prices the armed obligation against the pair's current reserves
func (g *Guard) Requirement(ctx context.Context) (*uint256.Int, error) {
	ob := g.Pending()
	if ob == nil {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithContext("requirement: no pending obligation"))
	}

	reserve0, reserve1, err := g.pair.GetReserves(ctx)
	if err != nil {
		return nil, dex.Wrap(dex.KindNetwork, "v2.getReserves", err)
	}
	return RequiredRepayment(
		ob.BorrowSlot.Pick(reserve0, reserve1),
		ob.BorrowSlot.Other().Pick(reserve0, reserve1),
		ob.AmountBorrowed,
		ob.BorrowAsset == ob.RepayAsset,
		g.fee,
	)
}

// CheckProceeds requires proceeds to cover cost plus the obligation's
// minimum profit. Both are in the reference asset.
func (g *Guard) CheckProceeds(proceeds, cost *uint256.Int) error {
	ob := g.Pending()
	if ob == nil {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("checkProceeds: no pending obligation"))
	}

	floor := new(uint256.Int).Set(cost)
	if ob.MinProfit != nil {
		if _, overflow := floor.AddOverflow(floor, ob.MinProfit); overflow {
			return apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("checkProceeds: 256-bit overflow"))
		}
	}
	if proceeds.Lt(floor) || proceeds.Eq(cost) {
		return apperror.Newf(apperror.CodeSlippageExceeded, "proceeds %s do not cover cost %s", proceeds.Dec(), cost.Dec())
	}
	return nil
}

// Settle accepts repaid if it meets required
func (g *Guard) Settle(repaid, required *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || !g.entered {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("settle outside callback"))
	}
	if repaid == nil || repaid.Lt(required) {
		g.metrics.shortfalls.Inc()
		return apperror.New(apperror.CodeRepaymentShortfall,
			apperror.WithContext(fmt.Sprintf("repaid %s, pair requires %s", decOrZero(repaid), required.Dec())))
	}
	g.metrics.repaid.Inc()
	return nil
}
