package math

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestISqrt(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{15, 3},
		{16, 4},
		{17, 4},
		{-4, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ISqrt(big.NewInt(tt.in)).Int64(), "isqrt(%d)", tt.in)
	}
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, int64(4), CeilDiv(big.NewInt(10), big.NewInt(3)).Int64())
	assert.Equal(t, int64(5), CeilDiv(big.NewInt(10), big.NewInt(2)).Int64())
	assert.Equal(t, int64(0), CeilDiv(big.NewInt(0), big.NewInt(7)).Int64())
}

func TestFromBig(t *testing.T) {
	z, err := FromBig(big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), z.Uint64())

	_, err = FromBig(big.NewInt(-1))
	assert.Error(t, err)

	_, err = FromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)

	z, err = FromBig(maxUint256)
	require.NoError(t, err)
	assert.Equal(t, maxUint256, z.ToBig())
}

func TestApplyBps(t *testing.T) {
	assert.Equal(t, uint64(9950), ApplyBps(uint256.NewInt(10000), 50).Uint64())
	assert.Equal(t, uint64(0), ApplyBps(uint256.NewInt(10000), Bps).Uint64())
	assert.Equal(t, uint64(10000), ApplyBps(uint256.NewInt(10000), 0).Uint64())
}

func TestSignedDiff(t *testing.T) {
	assert.Equal(t, int64(-3), SignedDiff(uint256.NewInt(2), uint256.NewInt(5)).Int64())
	assert.Equal(t, "1000000000000000000", Ether(1).Dec())
}
