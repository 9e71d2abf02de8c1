// Package uniswap reads the V1 exchange and V2 pair over JSON-RPC and builds
// the unsigned calldata for an execution plan.
package uniswap

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Mainnet contract addresses
var (
	MainnetV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetWETH      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	// V2PairInitCodeHash is keccak256 of the V2 pair creation code
	V2PairInitCodeHash = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

// SortTokens orders two tokens the way the V2 factory does
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) < 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// PairAddress computes the CREATE2 address of the V2 pair for two tokens
func PairAddress(factory, tokenA, tokenB common.Address, initCodeHash []byte) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt, initCodeHash)[12:])
}
