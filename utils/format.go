package utils

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// FormatEther renders a wei amount as ether with six decimals
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.000000"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).StringFixed(6)
}

// FormatEtherU256 is FormatEther for unsigned amounts
func FormatEtherU256(wei *uint256.Int) string {
	if wei == nil {
		return FormatEther(nil)
	}
	return FormatEther(wei.ToBig())
}

// FormatGwei renders a wei amount as gwei with two decimals
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0.00"
	}
	return decimal.NewFromBigInt(wei, -9).StringFixed(2)
}

// ParseEther converts a decimal amount of a 18-decimal asset into base
// units. Precision beyond 18 decimals is rejected.
func ParseEther(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(etherDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, etherDecimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return v, nil
}
