package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	arbtypes "github.com/michaelpento.lv/candyarb/types"
)

type staticSource struct {
	baseFee *big.Int
	tip     *big.Int
	err     error
}

func (s staticSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.Header{BaseFee: s.baseFee}, nil
}

func (s staticSource) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return s.tip, nil
}

func plan(shape arbtypes.ExecutionShape, legs int, profit int64) *arbtypes.ExecutionPlan {
	return &arbtypes.ExecutionPlan{
		Shape:       shape,
		Legs:        make([]arbtypes.SwapLeg, legs),
		Opportunity: &arbtypes.ArbitrageOpportunity{ExpectedProfit: big.NewInt(profit)},
	}
}

func TestUpdateFromSource(t *testing.T) {
	e := NewEstimator(staticSource{baseFee: big.NewInt(30e9), tip: big.NewInt(2e9)}, zaptest.NewLogger(t))
	require.NoError(t, e.Update(context.Background()))
	assert.Equal(t, big.NewInt(32e9), e.GasPrice())
	assert.Equal(t, big.NewInt(32e9*21000), e.EstimateGasCost(21000))
}

func TestUpdateErrors(t *testing.T) {
	assert.Error(t, NewEstimator(nil, nil).Update(context.Background()))

	e := NewEstimator(staticSource{err: errors.New("down")}, zaptest.NewLogger(t))
	assert.Error(t, e.Update(context.Background()))
}

func TestSetGasPrice(t *testing.T) {
	e := NewEstimator(nil, nil)
	require.NoError(t, e.SetGasPrice("1.5"))
	assert.Equal(t, big.NewInt(1_500_000_000), e.GasPrice())

	assert.Error(t, e.SetGasPrice("fast"))
	assert.Error(t, e.SetGasPrice("-1"))
}

func TestEstimatePlanGas(t *testing.T) {
	e := NewEstimator(nil, nil)
	direct := e.EstimatePlanGas(arbtypes.ShapeDirect, 2)
	borrow := e.EstimatePlanGas(arbtypes.ShapeBorrow, 1)
	assert.Equal(t, uint64(221000), direct)
	assert.Equal(t, uint64(161000), borrow)
}

func TestNetProfit(t *testing.T) {
	e := NewEstimator(nil, nil)
	require.NoError(t, e.SetGasPrice("10"))

	tests := []struct {
		name       string
		plan       *arbtypes.ExecutionPlan
		gasUnits   uint64
		wantNet    string
		profitable bool
	}{
		{"covers gas", plan(arbtypes.ShapeDirect, 2, 1e16), 200000, "8000000000000000", true},
		{"eaten by gas", plan(arbtypes.ShapeDirect, 2, 1e15), 200000, "-1000000000000000", false},
		{"default units", plan(arbtypes.ShapeBorrow, 1, 1e16), 0, "8390000000000000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.NetProfit(tt.plan, tt.gasUnits)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNet, got.Net.String())
			assert.Equal(t, tt.profitable, got.Profitable())
		})
	}

	_, err := e.NetProfit(&arbtypes.ExecutionPlan{}, 0)
	assert.Error(t, err)
}
