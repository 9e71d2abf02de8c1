package amm

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
	umath "github.com/michaelpento.lv/candyarb/utils/math"
)

func TestGetAmountOut(t *testing.T) {
	t.Run("legacy exchange token to eth", func(t *testing.T) {
		// 200 tokens into a 1000 token / 10 ETH exchange
		out, err := GetAmountOut(umath.Ether(1000), umath.Ether(10), umath.Ether(200), types.DefaultFee)
		require.NoError(t, err)
		assert.Equal(t, "1662497915624478906", out.Dec())
	})

	t.Run("fee is per venue", func(t *testing.T) {
		cheap, err := GetAmountOut(umath.Ether(100), umath.Ether(100), umath.Ether(1), types.FeeSchedule{Numerator: 1, Denominator: 1000})
		require.NoError(t, err)
		dear, err := GetAmountOut(umath.Ether(100), umath.Ether(100), umath.Ether(1), types.FeeSchedule{Numerator: 10, Denominator: 1000})
		require.NoError(t, err)
		assert.True(t, cheap.Gt(dear))
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name       string
			rIn, rOut  *uint256.Int
			in         *uint256.Int
			fee        types.FeeSchedule
			wantTarget error
		}{
			{"zero reserve in", uint256.NewInt(0), uint256.NewInt(10), uint256.NewInt(1), types.DefaultFee, apperror.ErrInvalidReserves},
			{"zero reserve out", uint256.NewInt(10), uint256.NewInt(0), uint256.NewInt(1), types.DefaultFee, apperror.ErrInvalidReserves},
			{"zero amount", uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(0), types.DefaultFee, apperror.ErrInvalidAmount},
			{"bad fee", uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(1), types.FeeSchedule{}, apperror.ErrInvalidFee},
			{"overflow", uint256.NewInt(10), uint256.NewInt(10), new(uint256.Int).SetAllOne(), types.DefaultFee, apperror.ErrInvalidAmount},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := GetAmountOut(tt.rIn, tt.rOut, tt.in, tt.fee)
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantTarget), "got %v", err)
			})
		}
	})
}

func TestGetAmountIn(t *testing.T) {
	t.Run("pair repayment for 200 tokens", func(t *testing.T) {
		in, err := GetAmountIn(umath.Ether(10), umath.Ether(2000), umath.Ether(200), types.DefaultFee)
		require.NoError(t, err)
		assert.Equal(t, "1114454474534715257", in.Dec())
	})

	t.Run("insufficient liquidity", func(t *testing.T) {
		_, err := GetAmountIn(umath.Ether(10), umath.Ether(10), umath.Ether(10), types.DefaultFee)
		assert.True(t, errors.Is(err, apperror.ErrInsufficientLiquidity))

		_, err = GetAmountIn(umath.Ether(10), umath.Ether(10), umath.Ether(11), types.DefaultFee)
		assert.True(t, errors.Is(err, apperror.ErrInsufficientLiquidity))
	})

	t.Run("zero inputs", func(t *testing.T) {
		_, err := GetAmountIn(uint256.NewInt(0), umath.Ether(10), umath.Ether(1), types.DefaultFee)
		assert.True(t, errors.Is(err, apperror.ErrInvalidReserves))
		_, err = GetAmountIn(umath.Ether(10), umath.Ether(10), uint256.NewInt(0), types.DefaultFee)
		assert.True(t, errors.Is(err, apperror.ErrInvalidAmount))
	})
}

func randomAmount(r *rand.Rand, maxDigits int) *uint256.Int {
	z := uint256.NewInt(uint64(r.Int63n(1_000_000_000) + 1))
	for i := r.Intn(maxDigits); i > 0; i-- {
		z.Mul(z, uint256.NewInt(10))
	}
	return z
}

func randomFee(r *rand.Rand) types.FeeSchedule {
	fees := []types.FeeSchedule{
		types.DefaultFee,
		{Numerator: 1, Denominator: 1000},
		{Numerator: 25, Denominator: 10000},
		{Numerator: 0, Denominator: 1},
	}
	return fees[r.Intn(len(fees))]
}

func TestGetAmountOutMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		rIn, rOut, fee := randomAmount(r, 18), randomAmount(r, 18), randomFee(r)
		a := randomAmount(r, 15)
		b := new(uint256.Int).Add(a, randomAmount(r, 12))

		outA, err := GetAmountOut(rIn, rOut, a, fee)
		require.NoError(t, err)
		outB, err := GetAmountOut(rIn, rOut, b, fee)
		require.NoError(t, err)

		assert.False(t, outB.Lt(outA), "out(%s)=%s > out(%s)=%s", a.Dec(), outA.Dec(), b.Dec(), outB.Dec())
		assert.True(t, outA.Lt(rOut))
	}
}

func TestRoundTripNeverUnderSupplies(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		rIn, rOut, fee := randomAmount(r, 18), randomAmount(r, 18), randomFee(r)
		want := new(uint256.Int).Div(new(uint256.Int).Mul(rOut, uint256.NewInt(uint64(r.Intn(99)+1))), uint256.NewInt(100))
		if want.IsZero() {
			continue
		}

		in, err := GetAmountIn(rIn, rOut, want, fee)
		require.NoError(t, err)

		got, err := GetAmountOut(rIn, rOut, in, fee)
		require.NoError(t, err)
		assert.False(t, got.Lt(want), "round trip %s -> %s -> %s", want.Dec(), in.Dec(), got.Dec())
	}
}

func TestConstantProductNeverDecreases(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	for i := 0; i < 200; i++ {
		rIn, rOut := randomAmount(r, 18), randomAmount(r, 18)
		in := randomAmount(r, 15)
		out, err := GetAmountOut(rIn, rOut, in, types.DefaultFee)
		require.NoError(t, err)

		before := new(uint256.Int).Mul(rIn, rOut)
		after := new(uint256.Int).Mul(new(uint256.Int).Add(rIn, in), new(uint256.Int).Sub(rOut, out))
		assert.False(t, after.Lt(before))
	}
}

func TestChainOut(t *testing.T) {
	amounts, err := ChainOut(umath.Ether(1),
		Hop{ReserveIn: umath.Ether(10), ReserveOut: umath.Ether(2000), Fee: types.DefaultFee},
		Hop{ReserveIn: umath.Ether(1000), ReserveOut: umath.Ether(10), Fee: types.DefaultFee},
	)
	require.NoError(t, err)
	require.Len(t, amounts, 2)

	first, err := GetAmountOut(umath.Ether(10), umath.Ether(2000), umath.Ether(1), types.DefaultFee)
	require.NoError(t, err)
	assert.Equal(t, first, amounts[0])
	assert.True(t, amounts[1].Gt(umath.Ether(1)))
}

func TestQuote(t *testing.T) {
	q, err := Quote(umath.Ether(1), umath.Ether(10), umath.Ether(2000))
	require.NoError(t, err)
	assert.Equal(t, umath.Ether(200), q)
}
