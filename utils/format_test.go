package utils

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEther(t *testing.T) {
	profit, _ := new(big.Int).SetString("563065806062303385", 10)
	assert.Equal(t, "0.563066", FormatEther(profit))
	assert.Equal(t, "-0.001000", FormatEther(big.NewInt(-1e15)))
	assert.Equal(t, "0.000000", FormatEther(nil))
	assert.Equal(t, "10.000000", FormatEtherU256(uint256.NewInt(1e18).Mul(uint256.NewInt(1e18), uint256.NewInt(10))))
}

func TestFormatGwei(t *testing.T) {
	assert.Equal(t, "32.50", FormatGwei(big.NewInt(32_500_000_000)))
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"200", "200000000000000000000", false},
		{"1.5", "1500000000000000000", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
		{"two", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Dec())
		})
	}
}
