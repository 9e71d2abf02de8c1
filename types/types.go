package types

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Venue identifies one of the two AMM venues
type Venue uint8

const (
	// VenueV1 is the legacy single-token exchange trading native ETH
	VenueV1 Venue = iota + 1
	// VenueV2 is the constant-product pair trading wrapped ETH
	VenueV2
)

func (v Venue) String() string {
	switch v {
	case VenueV1:
		return "v1"
	case VenueV2:
		return "v2"
	default:
		return fmt.Sprintf("venue(%d)", uint8(v))
	}
}

// Other returns the opposite venue
func (v Venue) Other() Venue {
	if v == VenueV1 {
		return VenueV2
	}
	return VenueV1
}

// ReserveState is a venue's reserves normalised to the reference asset
// (ETH or WETH) and the partner token.
type ReserveState struct {
	Reference *uint256.Int
	Token     *uint256.Int
}

// NewReserveState copies both reserves
func NewReserveState(reference, token *uint256.Int) ReserveState {
	return ReserveState{
		Reference: new(uint256.Int).Set(reference),
		Token:     new(uint256.Int).Set(token),
	}
}

// IsZero reports whether either reserve is missing or zero
func (r ReserveState) IsZero() bool {
	return r.Reference == nil || r.Token == nil || r.Reference.IsZero() || r.Token.IsZero()
}

// Fingerprint hashes both reserves. Equal snapshots have equal fingerprints.
func (r ReserveState) Fingerprint() uint64 {
	d := xxhash.New()
	writeU256(d, r.Reference)
	writeU256(d, r.Token)
	return d.Sum64()
}

func (r ReserveState) String() string {
	return fmt.Sprintf("{ref:%s token:%s}", decOrNil(r.Reference), decOrNil(r.Token))
}

// FeeSchedule is the fraction Numerator/Denominator of the input withheld as fee
type FeeSchedule struct {
	Numerator   uint64 `json:"numerator" yaml:"numerator"`
	Denominator uint64 `json:"denominator" yaml:"denominator"`
}

// DefaultFee is the 0.3% tier both venues ship with.
var DefaultFee = FeeSchedule{Numerator: 3, Denominator: 1000}

// Validate checks that the fee is a proper fraction
func (f FeeSchedule) Validate() error {
	if f.Denominator == 0 {
		return fmt.Errorf("fee denominator is zero")
	}
	if f.Numerator >= f.Denominator {
		return fmt.Errorf("fee %d/%d consumes the whole input", f.Numerator, f.Denominator)
	}
	return nil
}

// Multiplier returns Denominator - Numerator
func (f FeeSchedule) Multiplier() uint64 {
	return f.Denominator - f.Numerator
}

func (f FeeSchedule) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

// Direction names where the reference asset is bought and where it is sold.
// An arbitrage cycle sells the reference asset on SellVenue for the token,
// then buys it back on BuyVenue with that token.
type Direction struct {
	BuyVenue  Venue
	SellVenue Venue
}

func (d Direction) String() string {
	return fmt.Sprintf("buy@%s/sell@%s", d.BuyVenue, d.SellVenue)
}

// ArbitrageOpportunity is one sized trade computed from a reserve snapshot.
// InputAmount, ExpectedOutput and ExpectedProfit are in the reference asset.
type ArbitrageOpportunity struct {
	Direction          Direction
	InputAmount        *uint256.Int
	IntermediateAmount *uint256.Int
	ExpectedOutput     *uint256.Int
	ExpectedProfit     *big.Int
	Fingerprint        uint64
}

// Profitable reports whether the opportunity is actionable
func (o *ArbitrageOpportunity) Profitable() bool {
	return o != nil && o.ExpectedProfit != nil && o.ExpectedProfit.Sign() > 0
}

// MarketSnapshot is a pair of reserve states read at the same point in time.
// V2ReferenceSlot records which pair slot holds the reference asset.
type MarketSnapshot struct {
	V1              ReserveState
	V2              ReserveState
	V2ReferenceSlot AssetSlot
	Timestamp       uint64
}

// Fingerprint combines both venues' reserve fingerprints
func (s MarketSnapshot) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.V1.Fingerprint())
	_, _ = d.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], s.V2.Fingerprint())
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// SwapLeg is a single exchange call
type SwapLeg struct {
	Venue        Venue
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Deadline     uint64
}

func (l SwapLeg) String() string {
	return fmt.Sprintf("%s %s->%s in=%s min=%s deadline=%d",
		l.Venue, l.TokenIn.Hex(), l.TokenOut.Hex(), decOrNil(l.AmountIn), decOrNil(l.MinAmountOut), l.Deadline)
}

// ExecutionShape selects how the first leg is funded
type ExecutionShape uint8

const (
	// ShapeDirect funds leg one from the caller's own balance
	ShapeDirect ExecutionShape = iota + 1
	// ShapeBorrow flash-swaps leg one out of the V2 pair and repays inside the callback
	ShapeBorrow
)

func (s ExecutionShape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeBorrow:
		return "borrow"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// BorrowObligation describes what the V2 pair lends and what it must get back
// before its swap call returns.
type BorrowObligation struct {
	Pair           common.Address
	BorrowAsset    common.Address
	RepayAsset     common.Address
	BorrowSlot     AssetSlot
	AmountBorrowed *uint256.Int
	RepayAmount    *uint256.Int
	MinProfit      *uint256.Int
	Deadline       uint64
}

// ExecutionPlan is consumed once by the orchestrator
type ExecutionPlan struct {
	Shape       ExecutionShape
	Opportunity *ArbitrageOpportunity
	Legs        []SwapLeg
	Borrow      *BorrowObligation
}

// Validate checks structural consistency of the plan
func (p *ExecutionPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("nil plan")
	}
	if len(p.Legs) < 1 || len(p.Legs) > 2 {
		return fmt.Errorf("plan has %d legs, want 1 or 2", len(p.Legs))
	}
	switch p.Shape {
	case ShapeDirect:
		if p.Borrow != nil {
			return fmt.Errorf("direct plan carries a borrow obligation")
		}
	case ShapeBorrow:
		if p.Borrow == nil {
			return fmt.Errorf("borrow plan without obligation")
		}
	default:
		return fmt.Errorf("unknown shape %s", p.Shape)
	}
	for i, leg := range p.Legs {
		if leg.AmountIn == nil || leg.MinAmountOut == nil {
			return fmt.Errorf("leg %d has nil amounts", i)
		}
	}
	return nil
}

func writeU256(d *xxhash.Digest, x *uint256.Int) {
	if x == nil {
		_, _ = d.Write([]byte{0})
		return
	}
	b := x.Bytes32()
	_, _ = d.Write(b[:])
}

func decOrNil(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
