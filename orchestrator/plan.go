package orchestrator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// Assets are the contracts a plan trades
type Assets struct {
	Pair  common.Address
	Token common.Address
	WETH  common.Address
}

// Planner turns sized opportunities into execution plans. It only reads the
// snapshot it is given.
type Planner struct {
	settings Settings
	assets   Assets
}

// NewPlanner creates a planner. A nil MinProfit is treated as zero.
func NewPlanner(settings Settings, assets Assets) *Planner {
	if settings.MinProfit == nil {
		settings.MinProfit = uint256.NewInt(0)
	}
	return &Planner{settings: settings, assets: assets}
}

// Build turns a sized opportunity into legs for shape. Legs are listed in
// execution order: for the borrow shape the first leg is the pair's flash
// swap and the second runs inside its callback.
func (p *Planner) Build(snap types.MarketSnapshot, opp *types.ArbitrageOpportunity, shape types.ExecutionShape) (*types.ExecutionPlan, error) {
	if !opp.Profitable() {
		return nil, apperror.New(apperror.CodeNoOpportunity)
	}
	deadline := snap.Timestamp + p.settings.DeadlineWindow

	var (
		plan *types.ExecutionPlan
		err  error
	)
	switch shape {
	case types.ShapeDirect:
		plan = p.directPlan(opp, deadline)
	case types.ShapeBorrow:
		if opp.Direction.SellVenue == types.VenueV2 {
			plan, err = p.borrowTokenPlan(snap, opp, deadline)
		} else {
			plan, err = p.borrowReferencePlan(snap, opp, deadline)
		}
	default:
		return nil, apperror.Newf(apperror.CodeInvalidState, "unknown shape %s", shape)
	}
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithCause(err))
	}
	return plan, nil
}

// minOut is the slippage floor for expected. It never rounds a positive
// amount down to zero, which the venues reject as an order without a minimum.
func (p *Planner) minOut(expected *uint256.Int) *uint256.Int {
	floor := umath.ApplyBps(expected, p.settings.SlippageBps)
	if floor.IsZero() && expected != nil && !expected.IsZero() {
		return uint256.NewInt(1)
	}
	return floor
}

func (p *Planner) sellReference(venue types.Venue, amountIn, minOut *uint256.Int, deadline uint64) types.SwapLeg {
	return types.SwapLeg{
		Venue:        venue,
		TokenIn:      p.assets.WETH,
		TokenOut:     p.assets.Token,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Deadline:     deadline,
	}
}

func (p *Planner) buyReference(venue types.Venue, amountIn, minOut *uint256.Int, deadline uint64) types.SwapLeg {
	return types.SwapLeg{
		Venue:        venue,
		TokenIn:      p.assets.Token,
		TokenOut:     p.assets.WETH,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Deadline:     deadline,
	}
}

// directPlan sells InputAmount on SellVenue and sells the tokens back on BuyVenue
func (p *Planner) directPlan(opp *types.ArbitrageOpportunity, deadline uint64) *types.ExecutionPlan {
	return &types.ExecutionPlan{
		Shape:       types.ShapeDirect,
		Opportunity: opp,
		Legs: []types.SwapLeg{
			p.sellReference(opp.Direction.SellVenue, opp.InputAmount, p.minOut(opp.IntermediateAmount), deadline),
			p.buyReference(opp.Direction.BuyVenue, opp.IntermediateAmount, p.minOut(opp.ExpectedOutput), deadline),
		},
	}
}

// borrowTokenPlan borrows the intermediate tokens from the pair, sells them on
// V1 and repays the pair in WETH.
func (p *Planner) borrowTokenPlan(snap types.MarketSnapshot, opp *types.ArbitrageOpportunity, deadline uint64) (*types.ExecutionPlan, error) {
	borrowed := opp.IntermediateAmount
	repay, err := amm.GetAmountIn(snap.V2.Reference, snap.V2.Token, borrowed, p.settings.FeeV2)
	if err != nil {
		return nil, err
	}

	return &types.ExecutionPlan{
		Shape:       types.ShapeBorrow,
		Opportunity: opp,
		Legs: []types.SwapLeg{
			p.sellReference(types.VenueV2, repay, borrowed, deadline),
			p.buyReference(types.VenueV1, borrowed, p.minOut(opp.ExpectedOutput), deadline),
		},
		Borrow: &types.BorrowObligation{
			Pair:           p.assets.Pair,
			BorrowAsset:    p.assets.Token,
			RepayAsset:     p.assets.WETH,
			BorrowSlot:     snap.V2ReferenceSlot.Other(),
			AmountBorrowed: borrowed,
			RepayAmount:    repay,
			MinProfit:      p.settings.MinProfit,
			Deadline:       deadline,
		},
	}, nil
}

// borrowReferencePlan borrows the expected WETH from the pair, buys just
// enough tokens on V1 to cover the pair's requirement and repays in tokens.
func (p *Planner) borrowReferencePlan(snap types.MarketSnapshot, opp *types.ArbitrageOpportunity, deadline uint64) (*types.ExecutionPlan, error) {
	borrowed := opp.ExpectedOutput
	repay, err := amm.GetAmountIn(snap.V2.Token, snap.V2.Reference, borrowed, p.settings.FeeV2)
	if err != nil {
		return nil, err
	}
	cost, err := amm.GetAmountIn(snap.V1.Reference, snap.V1.Token, repay, p.settings.FeeV1)
	if err != nil {
		return nil, err
	}

	return &types.ExecutionPlan{
		Shape:       types.ShapeBorrow,
		Opportunity: opp,
		Legs: []types.SwapLeg{
			p.buyReference(types.VenueV2, repay, borrowed, deadline),
			p.sellReference(types.VenueV1, cost, repay, deadline),
		},
		Borrow: &types.BorrowObligation{
			Pair:           p.assets.Pair,
			BorrowAsset:    p.assets.WETH,
			RepayAsset:     p.assets.Token,
			BorrowSlot:     snap.V2ReferenceSlot,
			AmountBorrowed: borrowed,
			RepayAmount:    repay,
			MinProfit:      p.settings.MinProfit,
			Deadline:       deadline,
		},
	}, nil
}

// FixedBorrow prices a flash swap of exactly tokens out of the pair, sold on
// V1. It returns nil when that trade does not clear MinProfit.
func (p *Planner) FixedBorrow(snap types.MarketSnapshot, tokens *uint256.Int) (*types.ArbitrageOpportunity, error) {
	if tokens == nil || tokens.IsZero() {
		return nil, apperror.New(apperror.CodeInvalidAmount, apperror.WithContext("borrow size is zero"))
	}
	repay, err := amm.GetAmountIn(snap.V2.Reference, snap.V2.Token, tokens, p.settings.FeeV2)
	if err != nil {
		return nil, err
	}
	out, err := amm.GetAmountOut(snap.V1.Token, snap.V1.Reference, tokens, p.settings.FeeV1)
	if err != nil {
		return nil, err
	}

	profit := umath.SignedDiff(out, repay)
	if profit.Sign() <= 0 || profit.Cmp(p.settings.MinProfit.ToBig()) < 0 {
		return nil, nil
	}
	return &types.ArbitrageOpportunity{
		Direction:          types.Direction{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
		InputAmount:        repay,
		IntermediateAmount: new(uint256.Int).Set(tokens),
		ExpectedOutput:     out,
		ExpectedProfit:     profit,
		Fingerprint:        snap.Fingerprint(),
	}, nil
}
