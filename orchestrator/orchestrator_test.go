package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/simulator"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

const optimalProfit = "563065806062303385"

var whale = common.HexToAddress("0x000000000000000000000000000000000000face")

type harness struct {
	scenario *simulator.Scenario
	orch     *Orchestrator
	metrics  *metrics.ArbitrageMetrics
	recorder *memoryRecorder
}

type memoryRecorder struct {
	mu      sync.Mutex
	results []*Result
}

func (r *memoryRecorder) Record(ctx context.Context, res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func mirroredConfig() simulator.ScenarioConfig {
	cfg := simulator.DefaultScenarioConfig()
	cfg.V1Tokens, cfg.V2Tokens = umath.Ether(2000), umath.Ether(1000)
	return cfg
}

func newHarness(t *testing.T, cfg simulator.ScenarioConfig, settings Settings) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, err := simulator.NewScenario(cfg, simulator.WithLogger(logger))
	require.NoError(t, err)
	s.Ledger.SetNativeBalance(whale, umath.Ether(50))

	m := metrics.NewArbitrageMetrics("test", prometheus.NewRegistry())
	rec := &memoryRecorder{}
	session := s.Ledger.Session(s.Arber)
	o, err := New(ctx, Deps{
		Account: s.Arber,
		Ledger:  s.Ledger,
		V1:      session.Exchange(s.Exchange),
		V2:      session.Pair(s.Pair),
		WETH:    session.WETH(s.WETH),
		Token:   session.Token(s.Token),
	}, settings, WithLogger(logger), WithMetrics(m), WithRecorder(rec))
	require.NoError(t, err)
	s.Ledger.RegisterCallee(s.Arber, o)

	return &harness{scenario: s, orch: o, metrics: m, recorder: rec}
}

func settingsWith(shape ShapePolicy) Settings {
	s := DefaultSettings()
	s.Shape = shape
	return s
}

func (h *harness) eth(t *testing.T) *uint256.Int {
	bal, err := h.scenario.Ledger.NativeBalance(context.Background(), h.scenario.Arber)
	require.NoError(t, err)
	return bal
}

func TestRunSettles(t *testing.T) {
	tests := []struct {
		name      string
		cfg       simulator.ScenarioConfig
		shape     ShapePolicy
		direction types.Direction
		planShape types.ExecutionShape
		path      []State
	}{
		{
			name:      "direct sell on v2",
			cfg:       simulator.DefaultScenarioConfig(),
			shape:     ShapeDirect,
			direction: types.Direction{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
			planShape: types.ShapeDirect,
			path:      []State{Idle, Sizing, ExecutingLeg1, ExecutingLeg2, Settled},
		},
		{
			name:      "direct sell on v1",
			cfg:       mirroredConfig(),
			shape:     ShapeDirect,
			direction: types.Direction{BuyVenue: types.VenueV2, SellVenue: types.VenueV1},
			planShape: types.ShapeDirect,
			path:      []State{Idle, Sizing, ExecutingLeg1, ExecutingLeg2, Settled},
		},
		{
			name:      "borrow tokens",
			cfg:       simulator.DefaultScenarioConfig(),
			shape:     ShapeBorrow,
			direction: types.Direction{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
			planShape: types.ShapeBorrow,
			path:      []State{Idle, Sizing, ExecutingLeg1, AwaitingCallback, ExecutingLeg2, Settled},
		},
		{
			name:      "borrow weth",
			cfg:       mirroredConfig(),
			shape:     ShapeBorrow,
			direction: types.Direction{BuyVenue: types.VenueV2, SellVenue: types.VenueV1},
			planShape: types.ShapeBorrow,
			path:      []State{Idle, Sizing, ExecutingLeg1, AwaitingCallback, ExecutingLeg2, Settled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, settingsWith(tt.shape))
			ctx := context.Background()

			res, err := h.orch.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, Settled, res.State)
			assert.Equal(t, tt.direction, res.Opportunity.Direction)
			assert.Equal(t, tt.planShape, res.Plan.Shape)
			assert.Equal(t, tt.path, res.Transitions)
			assert.Equal(t, optimalProfit, res.RealizedProfit.String())
			assert.Equal(t, "1373428641589349758", res.Opportunity.InputAmount.Dec())

			want := new(uint256.Int).Add(umath.Ether(100), umath.MustFromDecimal(optimalProfit))
			assert.Equal(t, want, h.eth(t))
			assert.True(t, h.scenario.Ledger.TokenBalance(h.scenario.WETH, h.scenario.Arber).IsZero())

			// The market is now balanced to within fees.
			res, err = h.orch.Run(ctx)
			assert.True(t, errors.Is(err, apperror.ErrNoOpportunity))
			assert.Equal(t, Failed, res.State)
			assert.Equal(t, apperror.CodeNoOpportunity, res.Reason)
		})
	}
}

func TestAutoShapeBorrowsWithoutCapital(t *testing.T) {
	cfg := simulator.DefaultScenarioConfig()
	cfg.ArberBalance = uint256.NewInt(0)
	h := newHarness(t, cfg, settingsWith(ShapeAuto))

	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ShapeBorrow, res.Plan.Shape)
	assert.Equal(t, optimalProfit, res.RealizedProfit.String())
	assert.Equal(t, optimalProfit, h.eth(t).Dec())
}

func TestAutoShapeUsesCapital(t *testing.T) {
	h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeAuto))
	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ShapeDirect, res.Plan.Shape)
}

func TestExecuteBorrowFixedSize(t *testing.T) {
	cfg := simulator.DefaultScenarioConfig()
	cfg.ArberBalance = uint256.NewInt(0)
	h := newHarness(t, cfg, settingsWith(ShapeDirect))

	res, err := h.orch.ExecuteBorrow(context.Background(), umath.Ether(200))
	require.NoError(t, err)
	assert.Equal(t, types.ShapeBorrow, res.Plan.Shape)
	assert.Equal(t, "1114454474534715257", res.Plan.Borrow.RepayAmount.Dec())
	assert.Equal(t, "1662497915624478906", res.Opportunity.ExpectedOutput.Dec())
	assert.Equal(t, "548043441089763649", res.RealizedProfit.String())
	assert.Equal(t, "548043441089763649", h.eth(t).Dec())

	t.Run("unprofitable size", func(t *testing.T) {
		res, err := h.orch.ExecuteBorrow(context.Background(), umath.Ether(1500))
		assert.True(t, errors.Is(err, apperror.ErrNoOpportunity))
		assert.Equal(t, Failed, res.State)
	})
}

func TestFrontRunRevertsEverything(t *testing.T) {
	for _, shape := range []ShapePolicy{ShapeDirect, ShapeBorrow} {
		t.Run(string(shape), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(shape))
			twin := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(shape))

			h.scenario.FrontRun(whale, types.VenueV2, true, umath.Ether(5))
			res, err := h.orch.Run(ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrSlippageExceeded), "got %v", err)
			assert.Equal(t, apperror.CodeSlippageExceeded, res.Reason)
			assert.Equal(t, Failed, res.State)

			// Only the whale's trade survived.
			_, err = twin.scenario.Swap(ctx, whale, types.VenueV2, true, umath.Ether(5))
			require.NoError(t, err)

			got, err := h.scenario.Venues().Snapshot(ctx)
			require.NoError(t, err)
			want, err := twin.scenario.Venues().Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, want.V1, got.V1)
			assert.Equal(t, want.V2, got.V2)

			assert.Equal(t, umath.Ether(100), h.eth(t))
			assert.True(t, h.scenario.Ledger.TokenBalance(h.scenario.Token, h.scenario.Arber).IsZero())
			assert.True(t, h.scenario.Ledger.TokenBalance(h.scenario.WETH, h.scenario.Arber).IsZero())
			assert.Nil(t, h.orch.Guard().Pending())
		})
	}
}

func TestDeadlineExpired(t *testing.T) {
	for _, shape := range []ShapePolicy{ShapeDirect, ShapeBorrow} {
		t.Run(string(shape), func(t *testing.T) {
			settings := settingsWith(shape)
			settings.DeadlineWindow = 0
			h := newHarness(t, simulator.DefaultScenarioConfig(), settings)

			res, err := h.orch.Run(context.Background())
			assert.True(t, errors.Is(err, apperror.ErrDeadlineExpired), "got %v", err)
			assert.Equal(t, apperror.CodeDeadlineExpired, res.Reason)
			assert.Equal(t, umath.Ether(100), h.eth(t))
		})
	}
}

func TestUnauthorizedCallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeBorrow))
	s := h.scenario

	callers := map[string]common.Address{
		"stranger":         common.HexToAddress("0xBAD"),
		"pair out of turn": s.Pair,
	}
	for name, caller := range callers {
		t.Run(name, func(t *testing.T) {
			err := s.Ledger.Session(caller).InvokeCallback(ctx, s.Arber, umath.Ether(200), uint256.NewInt(0), []byte{1})
			assert.True(t, errors.Is(err, apperror.ErrUnauthorizedCallback), "got %v", err)
			assert.Equal(t, umath.Ether(100), h.eth(t))
			assert.True(t, s.Ledger.TokenBalance(s.Token, s.Arber).IsZero())
		})
	}
}

func TestNoOpportunity(t *testing.T) {
	t.Run("equal prices", func(t *testing.T) {
		cfg := simulator.DefaultScenarioConfig()
		cfg.V1Tokens = umath.Ether(2000)
		h := newHarness(t, cfg, DefaultSettings())

		res, err := h.orch.Run(context.Background())
		assert.True(t, errors.Is(err, apperror.ErrNoOpportunity))
		assert.Equal(t, []State{Idle, Sizing, Failed}, res.Transitions)
		assert.Nil(t, res.Plan)
		assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("no_opportunity")))
	})

	t.Run("below min profit", func(t *testing.T) {
		settings := DefaultSettings()
		settings.MinProfit = umath.Ether(1)
		h := newHarness(t, simulator.DefaultScenarioConfig(), settings)

		_, err := h.orch.Run(context.Background())
		assert.True(t, errors.Is(err, apperror.ErrNoOpportunity))
	})
}

func TestRunWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers after front-run", func(t *testing.T) {
		h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
		h.scenario.FrontRun(whale, types.VenueV2, true, umath.Ether(1))

		res, err := h.orch.RunWithRetry(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, Settled, res.State)
		assert.Equal(t, uint64(2), res.Attempt)
		assert.True(t, res.RealizedProfit.Sign() > 0)

		h.recorder.mu.Lock()
		defer h.recorder.mu.Unlock()
		require.Len(t, h.recorder.results, 2)
		assert.Equal(t, apperror.CodeSlippageExceeded, h.recorder.results[0].Reason)
	})

	t.Run("gives up", func(t *testing.T) {
		h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
		h.scenario.FrontRun(whale, types.VenueV2, true, umath.Ether(1))

		_, err := h.orch.RunWithRetry(ctx, 0)
		assert.True(t, errors.Is(err, apperror.ErrSlippageExceeded))
	})

	t.Run("does not retry adapter errors", func(t *testing.T) {
		h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
		// the account is drained after sizing, so wrapping ETH fails
		h.scenario.Ledger.BeforeNextTx(func(ctx context.Context, l *simulator.Ledger) error {
			l.SetNativeBalance(h.scenario.Arber, uint256.NewInt(100_000_000_000_000_000))
			return nil
		})

		res, err := h.orch.RunWithRetry(ctx, 5)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeAdapterError))
		assert.False(t, apperror.Retryable(err))

		var adapterErr *dex.AdapterError
		require.True(t, errors.As(err, &adapterErr))
		assert.Equal(t, dex.KindInsufficientBalance, adapterErr.Kind)

		assert.Equal(t, Failed, res.State)
		assert.Equal(t, apperror.CodeAdapterError, res.Reason)
		assert.Equal(t, uint64(1), res.Attempt)
		h.recorder.mu.Lock()
		defer h.recorder.mu.Unlock()
		assert.Len(t, h.recorder.results, 1)
	})

	t.Run("retries slippage until the budget runs out", func(t *testing.T) {
		h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
		// a competing trade lands ahead of every attempt
		var frontRun simulator.Hook
		frontRun = func(ctx context.Context, l *simulator.Ledger) error {
			l.BeforeNextTx(frontRun)
			_, err := h.scenario.Trade(ctx, whale, types.VenueV2, true, umath.Ether(1))
			return err
		}
		h.scenario.Ledger.BeforeNextTx(frontRun)

		res, err := h.orch.RunWithRetry(ctx, 1)
		assert.True(t, errors.Is(err, apperror.ErrSlippageExceeded))
		assert.Equal(t, uint64(2), res.Attempt)
	})

	t.Run("does not retry non-retryable", func(t *testing.T) {
		cfg := simulator.DefaultScenarioConfig()
		cfg.V1Tokens = umath.Ether(2000)
		h := newHarness(t, cfg, DefaultSettings())

		res, err := h.orch.RunWithRetry(ctx, 5)
		assert.True(t, errors.Is(err, apperror.ErrNoOpportunity))
		assert.Equal(t, uint64(1), res.Attempt)
	})
}

func TestConcurrentRunsSettleOnce(t *testing.T) {
	h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
	ctx := context.Background()

	const runners = 4
	results := make([]*Result, runners)
	var wg sync.WaitGroup
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = h.orch.Run(ctx)
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.State == Settled {
			settled++
			continue
		}
		assert.Contains(t, []apperror.Code{apperror.CodeSlippageExceeded, apperror.CodeNoOpportunity}, res.Reason)
	}
	assert.Equal(t, 1, settled)
}

func TestMetricsAfterSettlement(t *testing.T) {
	h := newHarness(t, simulator.DefaultScenarioConfig(), settingsWith(ShapeDirect))
	res, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("settled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.OpportunitiesSeen))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Transitions.WithLabelValues("executing_leg2")))
	assert.InDelta(t, 5.63065806062303385e17, testutil.ToFloat64(h.metrics.LastProfitWei), 1e3)
	assert.Equal(t, res.Attempt, uint64(1))
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.SlippageBps = umath.Bps
	assert.True(t, errors.Is(s.Validate(), apperror.ErrConfiguration))

	s = DefaultSettings()
	s.FeeV2 = types.FeeSchedule{Numerator: 1}
	assert.True(t, errors.Is(s.Validate(), apperror.ErrInvalidFee))

	s = DefaultSettings()
	s.Shape = "sideways"
	assert.True(t, errors.Is(s.Validate(), apperror.ErrConfiguration))
}
