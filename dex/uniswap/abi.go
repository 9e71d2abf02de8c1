package uniswap

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "amount0Out", "type": "uint256"},
		{"name": "amount1Out", "type": "uint256"},
		{"name": "to", "type": "address"},
		{"name": "data", "type": "bytes"}
	],
	"name": "swap",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const exchangeABIJson = `[{
	"inputs": [],
	"name": "tokenAddress",
	"outputs": [{"name": "", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "min_tokens", "type": "uint256"},
		{"name": "deadline", "type": "uint256"}
	],
	"name": "ethToTokenSwapInput",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "payable",
	"type": "function"
}, {
	"inputs": [
		{"name": "tokens_sold", "type": "uint256"},
		{"name": "min_eth", "type": "uint256"},
		{"name": "deadline", "type": "uint256"}
	],
	"name": "tokenToEthSwapInput",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const erc20ABIJson = `[{
	"inputs": [{"name": "owner", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "to", "type": "address"},
		{"name": "amount", "type": "uint256"}
	],
	"name": "transfer",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"name": "spender", "type": "address"},
		{"name": "amount", "type": "uint256"}
	],
	"name": "approve",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [],
	"name": "deposit",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
}, {
	"inputs": [{"name": "wad", "type": "uint256"}],
	"name": "withdraw",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var (
	pairABI     = mustParseABI("pair", pairABIJson)
	exchangeABI = mustParseABI("exchange", exchangeABIJson)
	// erc20ABI also carries WETH's deposit and withdraw.
	erc20ABI = mustParseABI("erc20", erc20ABIJson)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s ABI: %v", name, err))
	}
	return parsed
}

// PairABI returns the V2 pair ABI subset used by the readers and calldata builders
func PairABI() abi.ABI { return pairABI }

// ExchangeABI returns the V1 exchange ABI subset
func ExchangeABI() abi.ABI { return exchangeABI }

// ERC20ABI returns the token ABI subset, including WETH deposit and withdraw
func ERC20ABI() abi.ABI { return erc20ABI }
