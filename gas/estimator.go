package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	arbtypes "github.com/michaelpento.lv/candyarb/types"
)

const (
	txBaseGas = uint64(21000)
	// per-leg swap cost, approximate: storage reads, two transfers, the swap itself
	gasPerLeg = uint64(100000)
	// flash swap callback overhead on top of the legs
	callbackGas = uint64(40000)
)

var weiPerGwei = decimal.New(1, 9)

// FeeSource is the node surface used to price gas. *ethclient.Client satisfies it.
type FeeSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator prices an execution plan in gas and nets it against expected profit
type Estimator struct {
	source      FeeSource
	logger      *zap.Logger
	baseFee     *big.Int
	priorityFee *big.Int
	mu          sync.RWMutex
}

// NewEstimator creates an estimator. source may be nil, in which case only a
// price set with SetGasPrice is used.
func NewEstimator(source FeeSource, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		source:      source,
		logger:      logger,
		baseFee:     big.NewInt(0),
		priorityFee: big.NewInt(0),
	}
}

// SetGasPrice fixes the gas price, given in gwei as a decimal string
func (e *Estimator) SetGasPrice(gwei string) error {
	price, err := decimal.NewFromString(gwei)
	if err != nil {
		return fmt.Errorf("invalid gas price %q: %w", gwei, err)
	}
	if price.IsNegative() {
		return fmt.Errorf("negative gas price %q", gwei)
	}

	e.mu.Lock()
	e.baseFee = price.Mul(weiPerGwei).BigInt()
	e.priorityFee = big.NewInt(0)
	e.mu.Unlock()
	return nil
}

// Update fetches the latest base fee and suggested tip
func (e *Estimator) Update(ctx context.Context) error {
	if e.source == nil {
		return fmt.Errorf("no fee source configured")
	}

	header, err := e.source.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	priorityFee, err := e.source.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = new(big.Int).Set(baseFee)
	e.priorityFee = new(big.Int).Set(priorityFee)
	e.mu.Unlock()

	e.logger.Debug("Gas price updated",
		zap.String("base_fee", baseFee.String()),
		zap.String("priority_fee", priorityFee.String()),
	)
	return nil
}

// GasPrice returns base fee plus tip in wei
func (e *Estimator) GasPrice() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Add(e.baseFee, e.priorityFee)
}

// EstimateGasCost returns gasLimit times the current gas price in wei
func (e *Estimator) EstimateGasCost(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(e.GasPrice(), new(big.Int).SetUint64(gasLimit))
}

// EstimatePlanGas estimates gas for a plan of the given shape and leg count
func (e *Estimator) EstimatePlanGas(shape arbtypes.ExecutionShape, legs int) uint64 {
	gas := txBaseGas + gasPerLeg*uint64(legs)
	if shape == arbtypes.ShapeBorrow {
		gas += callbackGas
	}
	return gas
}

// NetProfit is an opportunity's expected profit less the gas cost of
// executing it, in wei
type NetProfit struct {
	Gross   decimal.Decimal
	GasUsed uint64
	GasCost decimal.Decimal
	Net     decimal.Decimal
}

// Profitable reports whether profit survives gas
func (n NetProfit) Profitable() bool {
	return n.Net.IsPositive()
}

// NetProfit subtracts the plan's gas cost from its expected profit. gasUnits
// of zero falls back to EstimatePlanGas.
func (e *Estimator) NetProfit(plan *arbtypes.ExecutionPlan, gasUnits uint64) (NetProfit, error) {
	if plan == nil || plan.Opportunity == nil || plan.Opportunity.ExpectedProfit == nil {
		return NetProfit{}, fmt.Errorf("plan has no expected profit")
	}
	if gasUnits == 0 {
		gasUnits = e.EstimatePlanGas(plan.Shape, len(plan.Legs))
	}

	gross := decimal.NewFromBigInt(plan.Opportunity.ExpectedProfit, 0)
	cost := decimal.NewFromBigInt(e.EstimateGasCost(gasUnits), 0)
	return NetProfit{
		Gross:   gross,
		GasUsed: gasUnits,
		GasCost: cost,
		Net:     gross.Sub(cost),
	}, nil
}
