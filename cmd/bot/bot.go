package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/config"
	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/dex/uniswap"
	"github.com/michaelpento.lv/candyarb/gas"
	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/strategies/arbitrage"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	"github.com/michaelpento.lv/candyarb/utils/metrics"
)

// Sources are the read-only venue views a bot quotes from
type Sources struct {
	V1    dex.LegacyReserveReader
	V2    dex.PairReader
	Clock dex.Clock
}

// Quote is one sized, planned and gas-priced opportunity
type Quote struct {
	Snapshot    types.MarketSnapshot
	Opportunity *types.ArbitrageOpportunity
	Plan        *types.ExecutionPlan
	Net         gas.NetProfit
	Calls       []uniswap.Call
}

// QuoteRecorder persists opportunities the quote loop sees for the first time
type QuoteRecorder interface {
	RecordQuote(ctx context.Context, opp *types.ArbitrageOpportunity, shape types.ExecutionShape) error
}

// Bot quotes arbitrage between a V1 exchange and a V2 pair. It never signs
// or sends transactions.
type Bot struct {
	cfg       *config.Config
	venues    *dex.Venues
	sizer     *arbitrage.Sizer
	planner   *orchestrator.Planner
	estimator *gas.Estimator
	liveGas   bool
	shape     types.ExecutionShape
	contracts uniswap.Contracts
	recorder  QuoteRecorder
	logger    *zap.Logger

	mu              sync.Mutex
	lastFingerprint uint64
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// New creates a bot over src. A configured gas price is used as is;
// otherwise the estimator is refreshed from its source before each quote.
func New(cfg *config.Config, src Sources, estimator *gas.Estimator, logger *zap.Logger, m *metrics.ArbitrageMetrics) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	token, err := config.Address("token", cfg.Contracts.Token)
	if err != nil {
		return nil, err
	}
	weth, err := config.Address("weth", cfg.Contracts.WETH)
	if err != nil {
		return nil, err
	}
	var account common.Address
	if cfg.Contracts.Account != "" {
		if account, err = config.Address("account", cfg.Contracts.Account); err != nil {
			return nil, err
		}
	}

	liveGas := cfg.Gas.PriceGwei == ""
	if !liveGas {
		if err := estimator.SetGasPrice(cfg.Gas.PriceGwei); err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
		}
	}

	// quoting has no balance to inspect, so auto quotes the capital-free shape
	shape := types.ShapeBorrow
	if settings.Shape == orchestrator.ShapeDirect {
		shape = types.ShapeDirect
	}

	return &Bot{
		cfg:       cfg,
		venues:    dex.NewVenues(src.V1, src.V2, weth, src.Clock),
		sizer:     arbitrage.NewSizer(settings.FeeV1, settings.FeeV2, settings.MinProfit, logger, m),
		planner:   orchestrator.NewPlanner(settings, orchestrator.Assets{Pair: src.V2.Address(), Token: token, WETH: weth}),
		estimator: estimator,
		liveGas:   liveGas,
		shape:     shape,
		contracts: uniswap.Contracts{
			Exchange: src.V1.Address(),
			Pair:     src.V2.Address(),
			Token:    token,
			WETH:     weth,
			Receiver: account,
		},
		logger: logger,
	}, nil
}

// Dial connects to cfg.RPCEndpoint and builds a bot over the configured contracts
func Dial(ctx context.Context, cfg *config.Config, logger *zap.Logger, am *metrics.ArbitrageMetrics, rm *metrics.RPCMetrics) (*Bot, func(), error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	exchange, err := config.Address("v1_exchange", cfg.Contracts.V1Exchange)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	pair, err := config.Address("v2_pair", cfg.Contracts.V2Pair)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	cache, err := uniswap.NewMetadataCache(cfg.MetadataCacheSize)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	caller := uniswap.NewCaller(cfg.CallerConfig(), rm, logger)
	src := Sources{
		V1:    uniswap.NewExchangeReader(exchange, client, caller, cache),
		V2:    uniswap.NewPairReader(pair, client, caller, cache),
		Clock: uniswap.NewChainClock(client, caller),
	}
	b, err := New(cfg, src, gas.NewEstimator(client, logger), logger, am)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return b, client.Close, nil
}

// Quote reads fresh reserves and prices the best trade. It returns a
// NO_OPPORTUNITY error when there is none.
func (b *Bot) Quote(ctx context.Context) (*Quote, error) {
	snap, err := b.venues.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	opp, err := b.sizer.Size(snap)
	if err != nil {
		return nil, err
	}
	if !opp.Profitable() {
		return nil, apperror.Newf(apperror.CodeNoOpportunity, "v1=%s v2=%s", snap.V1, snap.V2)
	}

	plan, err := b.planner.Build(snap, opp, b.shape)
	if err != nil {
		return nil, err
	}

	if b.liveGas {
		if err := b.estimator.Update(ctx); err != nil {
			return nil, dex.Wrap(dex.KindNetwork, "gasPrice", err)
		}
	}
	units := b.cfg.Gas.DirectUnits
	if plan.Shape == types.ShapeBorrow {
		units = b.cfg.Gas.BorrowUnits
	}
	net, err := b.estimator.NetProfit(plan, units)
	if err != nil {
		return nil, err
	}

	calls, err := uniswap.BuildPlanCalls(plan, b.contracts, snap.V2ReferenceSlot)
	if err != nil {
		return nil, err
	}

	return &Quote{Snapshot: snap, Opportunity: opp, Plan: plan, Net: net, Calls: calls}, nil
}

// SetRecorder makes the quote loop journal each new opportunity
func (b *Bot) SetRecorder(r QuoteRecorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// Start polls every interval until ctx is done or Stop is called
func (b *Bot) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("quote loop already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.logger.Info("Starting quote loop", zap.Duration("interval", interval))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			b.poll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop ends the quote loop and waits for it to exit
func (b *Bot) Stop() {
	b.logger.Info("Stopping quote loop")
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// poll quotes once and logs opportunities it has not logged before
func (b *Bot) poll(ctx context.Context) {
	q, err := b.Quote(ctx)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeNoOpportunity) || ctx.Err() != nil {
			return
		}
		b.logger.Error("Failed to quote", zap.Error(err))
		return
	}
	if !b.markSeen(q.Opportunity.Fingerprint) {
		return
	}

	b.logger.Info("Opportunity",
		zap.Stringer("direction", q.Opportunity.Direction),
		zap.Stringer("shape", q.Plan.Shape),
		zap.String("input", q.Opportunity.InputAmount.Dec()),
		zap.String("expected_profit", q.Opportunity.ExpectedProfit.String()),
		zap.String("gas_cost", q.Net.GasCost.String()),
		zap.String("net_profit", q.Net.Net.String()),
		zap.Bool("profitable_after_gas", q.Net.Profitable()),
	)

	b.mu.Lock()
	recorder := b.recorder
	b.mu.Unlock()
	if recorder == nil {
		return
	}
	if err := recorder.RecordQuote(ctx, q.Opportunity, q.Plan.Shape); err != nil {
		b.logger.Error("Failed to journal quote", zap.Error(err))
	}
}

// markSeen records fingerprint and reports whether it is new
func (b *Bot) markSeen(fingerprint uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fingerprint == b.lastFingerprint {
		return false
	}
	b.lastFingerprint = fingerprint
	return true
}
