// Package orchestrator drives one arbitrage attempt from a fresh reserve
// snapshot to a settled (or fully reverted) ledger transaction.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/flashloan"
	"github.com/michaelpento.lv/candyarb/strategies/arbitrage"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

// ShapePolicy picks the execution shape for each attempt
type ShapePolicy string

const (
	ShapeAuto   ShapePolicy = "auto"
	ShapeDirect ShapePolicy = "direct"
	ShapeBorrow ShapePolicy = "borrow"
)

// ParseShapePolicy validates a policy name
func ParseShapePolicy(s string) (ShapePolicy, error) {
	switch p := ShapePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ShapeAuto, ShapeDirect, ShapeBorrow:
		return p, nil
	case "":
		return ShapeAuto, nil
	default:
		return "", apperror.Newf(apperror.CodeConfigurationError, "unknown shape %q", s)
	}
}

// Settings are the per-orchestrator trading parameters
type Settings struct {
	FeeV1          types.FeeSchedule
	FeeV2          types.FeeSchedule
	SlippageBps    uint32
	DeadlineWindow uint64
	Shape          ShapePolicy
	MinProfit      *uint256.Int
}

// DefaultSettings trades at the default fee on both venues with 0.5% slippage
// tolerance and a five minute deadline.
func DefaultSettings() Settings {
	return Settings{
		FeeV1:          types.DefaultFee,
		FeeV2:          types.DefaultFee,
		SlippageBps:    50,
		DeadlineWindow: 300,
		Shape:          ShapeAuto,
		MinProfit:      uint256.NewInt(0),
	}
}

// Validate checks the settings
func (s Settings) Validate() error {
	for _, fee := range []types.FeeSchedule{s.FeeV1, s.FeeV2} {
		if err := fee.Validate(); err != nil {
			return apperror.New(apperror.CodeInvalidFee, apperror.WithCause(err))
		}
	}
	if s.SlippageBps >= umath.Bps {
		return apperror.Newf(apperror.CodeConfigurationError, "slippage %d bps leaves no minimum output", s.SlippageBps)
	}
	if _, err := ParseShapePolicy(string(s.Shape)); err != nil {
		return err
	}
	return nil
}

// Deps are the venues and ledger the orchestrator trades against, all acting
// as Account.
type Deps struct {
	Account common.Address
	Ledger  dex.Ledger
	V1      dex.LegacyExchange
	V2      dex.Pair
	WETH    dex.WrappedNative
	Token   dex.Token
}

// Result describes how an attempt ended
type Result struct {
	State          State
	Reason         apperror.Code
	Opportunity    *types.ArbitrageOpportunity
	Plan           *types.ExecutionPlan
	RealizedProfit *big.Int
	Transitions    []State
	Attempt        uint64
}

// Recorder persists finished attempts
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.ArbitrageMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRecorder records every finished attempt
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator sizes and executes arbitrage attempts for one account. It is
// also that account's flash-swap callee.
type Orchestrator struct {
	deps     Deps
	settings Settings
	venues   *dex.Venues
	router   *dex.Router
	guard    flashloan.Lender
	sizer    *arbitrage.Sizer
	planner  *Planner

	logger   *zap.Logger
	metrics  *metrics.ArbitrageMetrics
	recorder Recorder

	attempts atomic.Uint64

	mu     sync.Mutex
	active *attempt
}

// New resolves the pair ordering and wires the orchestrator
func New(ctx context.Context, deps Deps, settings Settings, opts ...Option) (*Orchestrator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.MinProfit == nil {
		settings.MinProfit = uint256.NewInt(0)
	}
	if settings.Shape == "" {
		settings.Shape = ShapeAuto
	}

	o := &Orchestrator{
		deps:     deps,
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("account", deps.Account.Hex()))

	o.venues = dex.NewVenues(deps.V1, deps.V2, deps.WETH.Address(), deps.Ledger)
	slot, err := o.venues.ReferenceSlot(ctx)
	if err != nil {
		return nil, err
	}

	o.router = dex.NewRouter(deps.Account, deps.V1, deps.V2, deps.WETH, deps.Token, deps.Ledger, settings.FeeV2, slot, o.logger)
	o.guard = flashloan.NewGuard(deps.V2, deps.Account, deps.Ledger, settings.FeeV2, o.logger)
	o.sizer = arbitrage.NewSizer(settings.FeeV1, settings.FeeV2, settings.MinProfit, o.logger, o.metrics)
	o.planner = NewPlanner(settings, Assets{
		Pair:  deps.V2.Address(),
		Token: deps.Token.Address(),
		WETH:  deps.WETH.Address(),
	})
	return o, nil
}

// BuildPlan turns a sized opportunity into an execution plan for shape
func (o *Orchestrator) BuildPlan(snap types.MarketSnapshot, opp *types.ArbitrageOpportunity, shape types.ExecutionShape) (*types.ExecutionPlan, error) {
	return o.planner.Build(snap, opp, shape)
}

// Guard exposes the callback guard, mainly for metric registration
func (o *Orchestrator) Guard() flashloan.Lender {
	return o.guard
}

// Settings returns the orchestrator's trading parameters
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// Run performs one attempt against freshly read reserves
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	return o.run(ctx, o.sizer.Size, nil)
}

// RunWithRetry re-runs from scratch while the failure is execution-time
// staleness, at most maxRetries extra times.
func (o *Orchestrator) RunWithRetry(ctx context.Context, maxRetries int) (*Result, error) {
	for retry := 0; ; retry++ {
		res, err := o.Run(ctx)
		if err == nil || !apperror.Retryable(err) || retry >= maxRetries {
			return res, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, err
		}
		o.logger.Info("Retrying after stale execution",
			zap.Int("retry", retry+1),
			zap.Int("max_retries", maxRetries),
			zap.String("reason", string(res.Reason)),
		)
	}
}

// ExecuteBorrow flash-borrows exactly tokens from the V2 pair, sells them on
// V1 and repays the pair's minimum in WETH.
func (o *Orchestrator) ExecuteBorrow(ctx context.Context, tokens *uint256.Int) (*Result, error) {
	shape := types.ShapeBorrow
	return o.run(ctx, func(snap types.MarketSnapshot) (*types.ArbitrageOpportunity, error) {
		return o.planner.FixedBorrow(snap, tokens)
	}, &shape)
}

type sizeFunc func(types.MarketSnapshot) (*types.ArbitrageOpportunity, error)

func (o *Orchestrator) run(ctx context.Context, size sizeFunc, forced *types.ExecutionShape) (*Result, error) {
	a := newAttempt(o.attempts.Add(1), o.logger, o.metrics)
	res := &Result{Attempt: a.id}

	if err := a.to(Sizing); err != nil {
		return o.fail(ctx, a, res, err)
	}
	snap, err := o.venues.Snapshot(ctx)
	if err != nil {
		return o.fail(ctx, a, res, err)
	}
	opp, err := size(snap)
	if err != nil {
		return o.fail(ctx, a, res, err)
	}
	if !opp.Profitable() {
		return o.fail(ctx, a, res, apperror.Newf(apperror.CodeNoOpportunity, "v1=%s v2=%s", snap.V1, snap.V2))
	}
	res.Opportunity = opp

	shape, err := o.chooseShape(ctx, opp, forced)
	if err != nil {
		return o.fail(ctx, a, res, err)
	}
	plan, err := o.BuildPlan(snap, opp, shape)
	if err != nil {
		return o.fail(ctx, a, res, err)
	}
	res.Plan = plan
	a.setPlan(plan)

	start := time.Now()
	profit, err := o.execute(ctx, a, plan)
	if o.metrics != nil {
		o.metrics.ExecutionLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return o.fail(ctx, a, res, err)
	}

	if err := a.to(Settled); err != nil {
		return o.fail(ctx, a, res, err)
	}
	res.State = Settled
	res.RealizedProfit = profit
	res.Transitions = a.transitions()

	if o.metrics != nil {
		o.metrics.Attempts.WithLabelValues("settled").Inc()
		f, _ := new(big.Float).SetInt(profit).Float64()
		o.metrics.RealizedProfitWei.Add(f)
		o.metrics.LastProfitWei.Set(f)
	}
	o.logger.Info("Arbitrage settled",
		zap.Uint64("attempt", a.id),
		zap.Stringer("direction", opp.Direction),
		zap.Stringer("shape", plan.Shape),
		zap.String("expected_profit", opp.ExpectedProfit.String()),
		zap.String("realized_profit", profit.String()),
	)
	o.record(ctx, res)
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, a *attempt, res *Result, err error) (*Result, error) {
	if tErr := a.to(Failed); tErr != nil {
		o.logger.Error("Cannot mark attempt failed", zap.Error(tErr))
	}
	res.State = Failed
	res.Reason = apperror.GetCode(err)
	res.Transitions = a.transitions()

	if o.metrics != nil {
		o.metrics.Attempts.WithLabelValues(strings.ToLower(string(res.Reason))).Inc()
	}
	if res.Reason == apperror.CodeNoOpportunity {
		o.logger.Debug("Attempt found nothing to do", zap.Uint64("attempt", a.id))
	} else {
		o.logger.Warn("Arbitrage attempt failed",
			zap.Uint64("attempt", a.id),
			zap.String("reason", string(res.Reason)),
			zap.Error(err),
		)
	}
	o.record(ctx, res)
	return res, err
}

func (o *Orchestrator) record(ctx context.Context, res *Result) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, res); err != nil {
		o.logger.Warn("Failed to record attempt", zap.Uint64("attempt", res.Attempt), zap.Error(err))
	}
}

func (o *Orchestrator) chooseShape(ctx context.Context, opp *types.ArbitrageOpportunity, forced *types.ExecutionShape) (types.ExecutionShape, error) {
	if forced != nil {
		return *forced, nil
	}
	switch o.settings.Shape {
	case ShapeDirect:
		return types.ShapeDirect, nil
	case ShapeBorrow:
		return types.ShapeBorrow, nil
	}

	balance, err := o.deps.Ledger.NativeBalance(ctx, o.deps.Account)
	if err != nil {
		return 0, dex.Wrap(dex.KindNetwork, "nativeBalance", err)
	}
	if balance.Lt(opp.InputAmount) {
		return types.ShapeBorrow, nil
	}
	return types.ShapeDirect, nil
}

func (o *Orchestrator) setActive(a *attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = a
}

func (o *Orchestrator) current() *attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) String() string {
	return fmt.Sprintf("orchestrator(%s, shape=%s)", o.deps.Account.Hex(), o.settings.Shape)
}
