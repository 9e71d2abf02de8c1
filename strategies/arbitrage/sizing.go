package arbitrage

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/michaelpento.lv/candyarb/amm"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

// maxRefineSteps bounds both the integer hill-climb and the truncation walk-back.
const maxRefineSteps = 32

// ternaryIterations is used when the closed form cannot be evaluated exactly.
const ternaryIterations = 256

// directions are evaluated in this order; on equal profit the first wins.
var directions = []types.Direction{
	{BuyVenue: types.VenueV1, SellVenue: types.VenueV2},
	{BuyVenue: types.VenueV2, SellVenue: types.VenueV1},
}

// FindOptimalArbitrage returns the most profitable trade between the two venues,
// or nil when neither direction yields a positive profit. The result depends
// only on its arguments.
func FindOptimalArbitrage(reservesV1, reservesV2 types.ReserveState, feeV1, feeV2 types.FeeSchedule) (*types.ArbitrageOpportunity, error) {
	if reservesV1.IsZero() || reservesV2.IsZero() {
		return nil, apperror.Newf(apperror.CodeInvalidReserves, "v1=%s v2=%s", reservesV1, reservesV2)
	}
	for _, fee := range []types.FeeSchedule{feeV1, feeV2} {
		if err := fee.Validate(); err != nil {
			return nil, apperror.New(apperror.CodeInvalidFee, apperror.WithCause(err))
		}
	}

	venues := map[types.Venue]venue{
		types.VenueV1: {reserves: reservesV1, fee: feeV1},
		types.VenueV2: {reserves: reservesV2, fee: feeV2},
	}

	var best *types.ArbitrageOpportunity
	for _, dir := range directions {
		c := newCycle(dir, venues[dir.SellVenue], venues[dir.BuyVenue])
		opp := c.size()
		if opp == nil {
			continue
		}
		if best == nil || opp.ExpectedProfit.Cmp(best.ExpectedProfit) > 0 {
			best = opp
		}
	}

	if best != nil {
		best.Fingerprint = types.MarketSnapshot{V1: reservesV1, V2: reservesV2}.Fingerprint()
	}
	return best, nil
}

type venue struct {
	reserves types.ReserveState
	fee      types.FeeSchedule
}

// cycle sells the reference asset on one venue and buys it back on the other.
type cycle struct {
	dir  types.Direction
	sell amm.Hop
	buy  amm.Hop
}

func newCycle(dir types.Direction, sell, buy venue) *cycle {
	return &cycle{
		dir:  dir,
		sell: amm.Hop{ReserveIn: sell.reserves.Reference, ReserveOut: sell.reserves.Token, Fee: sell.fee},
		buy:  amm.Hop{ReserveIn: buy.reserves.Token, ReserveOut: buy.reserves.Reference, Fee: buy.fee},
	}
}

// closedForm solves d/dx [A*x/(B+C*x) - x] = 0 for the composed curve
//
//	A = m1*m2*pOut*qOut, B = d1*d2*pIn*qIn, C = m1*(d2*qIn + m2*pOut)
//	x* = (sqrt(A*B) - B) / C
//
// where m = d-n. It returns nil when A <= B, i.e. the marginal rate of the
// round trip is not above one.
func (c *cycle) closedForm() *big.Int {
	pIn, pOut := c.sell.ReserveIn.ToBig(), c.sell.ReserveOut.ToBig()
	qIn, qOut := c.buy.ReserveIn.ToBig(), c.buy.ReserveOut.ToBig()
	m1, d1 := new(big.Int).SetUint64(c.sell.Fee.Multiplier()), new(big.Int).SetUint64(c.sell.Fee.Denominator)
	m2, d2 := new(big.Int).SetUint64(c.buy.Fee.Multiplier()), new(big.Int).SetUint64(c.buy.Fee.Denominator)

	a := new(big.Int).Mul(m1, m2)
	a.Mul(a, pOut).Mul(a, qOut)

	b := new(big.Int).Mul(d1, d2)
	b.Mul(b, pIn).Mul(b, qIn)

	if a.Cmp(b) <= 0 {
		return nil
	}

	cc := new(big.Int).Mul(d2, qIn)
	cc.Add(cc, new(big.Int).Mul(m2, pOut))
	cc.Mul(cc, m1)

	x := umath.ISqrt(new(big.Int).Mul(a, b))
	x.Sub(x, b)
	if x.Sign() <= 0 {
		return nil
	}
	return x.Quo(x, cc)
}

// evaluate runs the exact integer pricing for input x. ok is false when x
// cannot be traded at all (zero, overflow, or drains a reserve).
func (c *cycle) evaluate(x *big.Int) (profit *big.Int, amounts []*uint256.Int, ok bool) {
	if x.Sign() <= 0 {
		return nil, nil, false
	}
	in, err := umath.FromBig(x)
	if err != nil {
		return nil, nil, false
	}
	amounts, err = amm.ChainOut(in, c.sell, c.buy)
	if err != nil {
		return nil, nil, false
	}
	return umath.SignedDiff(amounts[1], in), amounts, true
}

func (c *cycle) size() *types.ArbitrageOpportunity {
	seed := c.closedForm()
	if seed == nil {
		return nil
	}
	if seed.Sign() == 0 {
		seed.SetInt64(1)
	}

	x := seed
	profit, _, ok := c.evaluate(x)
	if !ok {
		// Closed form landed outside what the curve can price; search below it.
		x = TernarySearch(big.NewInt(1), seed, ternaryIterations, c.profitOrFloor)
		if profit, _, ok = c.evaluate(x); !ok {
			return nil
		}
	}

	x, profit = c.refine(x, profit)

	// Truncation can leave the continuous optimum slightly underwater.
	for i := 0; profit.Sign() < 0 && x.Cmp(big.NewInt(1)) > 0 && i < maxRefineSteps; i++ {
		x = new(big.Int).Sub(x, big.NewInt(1))
		if profit, _, ok = c.evaluate(x); !ok {
			return nil
		}
	}
	if profit.Sign() <= 0 {
		return nil
	}

	// Forward re-check: the reported output must be exactly what the venues pay.
	input, _ := umath.FromBig(x)
	amounts, err := amm.ChainOut(input, c.sell, c.buy)
	if err != nil || umath.SignedDiff(amounts[1], input).Cmp(profit) != 0 {
		return nil
	}

	return &types.ArbitrageOpportunity{
		Direction:          c.dir,
		InputAmount:        input,
		IntermediateAmount: amounts[0],
		ExpectedOutput:     amounts[1],
		ExpectedProfit:     profit,
	}
}

// refine hill-climbs one unit at a time while the integer profit improves.
func (c *cycle) refine(x, profit *big.Int) (*big.Int, *big.Int) {
	one := big.NewInt(1)
	for i := 0; i < maxRefineSteps; i++ {
		up := new(big.Int).Add(x, one)
		if p, _, ok := c.evaluate(up); ok && p.Cmp(profit) > 0 {
			x, profit = up, p
			continue
		}
		down := new(big.Int).Sub(x, one)
		if p, _, ok := c.evaluate(down); ok && p.Cmp(profit) > 0 {
			x, profit = down, p
			continue
		}
		break
	}
	return x, profit
}

// profitOrFloor maps untradeable inputs to a very negative profit so the
// search moves away from them.
func (c *cycle) profitOrFloor(x *big.Int) *big.Int {
	if p, _, ok := c.evaluate(x); ok {
		return p
	}
	return new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 300))
}
