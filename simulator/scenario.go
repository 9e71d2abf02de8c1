package simulator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/candyarb/dex"
	"github.com/michaelpento.lv/candyarb/types"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// Well-known fixture addresses
var (
	CandyToken    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WrappedEther  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	CandyExchange = common.HexToAddress("0x2a1530C4C41db0B0b2bB646CB5Eb1A67b7158667")
	CandyPair     = common.HexToAddress("0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11")
	Arber         = common.HexToAddress("0x00000000000000000000000000000000000A4B3E")
)

// ScenarioConfig sizes the two-venue market
type ScenarioConfig struct {
	Token        common.Address
	V1Eth        *uint256.Int
	V1Tokens     *uint256.Int
	V2Weth       *uint256.Int
	V2Tokens     *uint256.Int
	FeeV1        types.FeeSchedule
	FeeV2        types.FeeSchedule
	ArberBalance *uint256.Int
	Genesis      uint64
}

// DefaultScenarioConfig is the candy shop market: V1 prices 1 ETH at 100
// tokens, V2 prices it at 200.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Token:        CandyToken,
		V1Eth:        umath.Ether(10),
		V1Tokens:     umath.Ether(1000),
		V2Weth:       umath.Ether(10),
		V2Tokens:     umath.Ether(2000),
		FeeV1:        types.DefaultFee,
		FeeV2:        types.DefaultFee,
		ArberBalance: umath.Ether(100),
		Genesis:      1_600_000_000,
	}
}

// Scenario is a deployed two-venue market with one funded trader
type Scenario struct {
	Ledger   *Ledger
	Config   ScenarioConfig
	Token    common.Address
	WETH     common.Address
	Exchange common.Address
	Pair     common.Address
	Arber    common.Address
}

// NewScenario deploys and seeds both venues
func NewScenario(cfg ScenarioConfig, opts ...Option) (*Scenario, error) {
	if cfg.Token == (common.Address{}) {
		cfg.Token = CandyToken
	}
	l := NewLedger(cfg.Genesis, opts...)

	l.DeployWETH(WrappedEther)
	l.DeployExchange(CandyExchange, cfg.Token, cfg.FeeV1)
	l.DeployPair(CandyPair, cfg.Token, WrappedEther, cfg.FeeV2)

	if err := l.SeedExchange(CandyExchange, cfg.V1Eth, cfg.V1Tokens); err != nil {
		return nil, err
	}
	// WETH in the pair is backed by ETH held by the wrapper.
	l.SetNativeBalance(WrappedEther, cfg.V2Weth)
	if err := l.SeedPair(CandyPair, cfg.Token, cfg.V2Tokens, WrappedEther, cfg.V2Weth); err != nil {
		return nil, err
	}
	if cfg.ArberBalance != nil {
		l.SetNativeBalance(Arber, cfg.ArberBalance)
	}

	return &Scenario{
		Ledger:   l,
		Config:   cfg,
		Token:    cfg.Token,
		WETH:     WrappedEther,
		Exchange: CandyExchange,
		Pair:     CandyPair,
		Arber:    Arber,
	}, nil
}

// Venues returns a snapshot reader over the scenario's market
func (s *Scenario) Venues() *dex.Venues {
	session := s.Ledger.Session(s.Arber)
	return dex.NewVenues(session.Exchange(s.Exchange), session.Pair(s.Pair), s.WETH, s.Ledger)
}

// Router returns a leg router acting as account
func (s *Scenario) Router(ctx context.Context, account common.Address, logger *zap.Logger) (*dex.Router, error) {
	session := s.Ledger.Session(account)
	pair := session.Pair(s.Pair)
	slot, err := dex.ResolvePairSlot(ctx, pair, s.WETH)
	if err != nil {
		return nil, err
	}
	return dex.NewRouter(account, session.Exchange(s.Exchange), pair, session.WETH(s.WETH),
		session.Token(s.Token), s.Ledger, s.Config.FeeV2, slot, logger), nil
}

// Trade runs a single exact-in swap as account without opening a
// transaction of its own.
func (s *Scenario) Trade(ctx context.Context, account common.Address, venue types.Venue, sellReference bool, amountIn *uint256.Int) (*uint256.Int, error) {
	router, err := s.Router(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	now, _ := s.Ledger.Now(ctx)
	leg := types.SwapLeg{
		Venue:        venue,
		TokenIn:      s.Token,
		TokenOut:     s.WETH,
		AmountIn:     amountIn,
		MinAmountOut: uint256.NewInt(1),
		Deadline:     now + s.Ledger.blockTime,
	}
	if sellReference {
		leg.TokenIn, leg.TokenOut = s.WETH, s.Token
	}
	return router.Swap(ctx, leg)
}

// Swap runs Trade in its own transaction. Tests and the CLI use it to move
// prices between attempts.
func (s *Scenario) Swap(ctx context.Context, account common.Address, venue types.Venue, sellReference bool, amountIn *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.Ledger.Atomic(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Trade(ctx, account, venue, sellReference, amountIn)
		return err
	})
	return out, err
}

// FrontRun queues a trade that lands just ahead of the next transaction
func (s *Scenario) FrontRun(account common.Address, venue types.Venue, sellReference bool, amountIn *uint256.Int) {
	s.Ledger.BeforeNextTx(func(ctx context.Context, _ *Ledger) error {
		_, err := s.Trade(ctx, account, venue, sellReference, amountIn)
		return err
	})
}
