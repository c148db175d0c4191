package pool

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const yieldSpacePoolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint32", "name": "maturity", "type": "uint32"},
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "int256", "name": "base", "type": "int256"},
      {"indexed": false, "internalType": "int256", "name": "fyTokens", "type": "int256"}
    ],
    "name": "Trade",
    "type": "event"
  },
  {"inputs": [], "name": "getBaseBalance", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getFYTokenBalance", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "baseDecimals", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "maturity", "outputs": [{"internalType": "uint32", "name": "", "type": "uint32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "base", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "fyToken", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint128", "name": "baseIn", "type": "uint128"}], "name": "sellBasePreview", "outputs": [{"internalType": "uint128", "name": "fyTokenOut", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint128", "name": "baseOut", "type": "uint128"}], "name": "buyBasePreview", "outputs": [{"internalType": "uint128", "name": "fyTokenIn", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint128", "name": "fyTokenIn", "type": "uint128"}], "name": "sellFYTokenPreview", "outputs": [{"internalType": "uint128", "name": "baseOut", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint128", "name": "fyTokenOut", "type": "uint128"}], "name": "buyFYTokenPreview", "outputs": [{"internalType": "uint128", "name": "baseIn", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint128", "name": "min", "type": "uint128"}], "name": "sellBase", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "to", "type": "address"}, {"internalType": "uint128", "name": "tokenOut", "type": "uint128"}, {"internalType": "uint128", "name": "max", "type": "uint128"}], "name": "buyBase", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	yieldSpacePoolABI     abi.ABI
	yieldSpacePoolABIOnce sync.Once
	yieldSpacePoolABIErr  error
)

// ABI returns the parsed YieldSpace pool ABI.
func ABI() (abi.ABI, error) {
	yieldSpacePoolABIOnce.Do(func() {
		yieldSpacePoolABI, yieldSpacePoolABIErr = abi.JSON(strings.NewReader(yieldSpacePoolABIJSON))
	})
	return yieldSpacePoolABI, yieldSpacePoolABIErr
}
