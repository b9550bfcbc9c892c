package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const v2FactoryABIJSON = `[
	{"name":"getPair","type":"function","stateMutability":"view",
	 "inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
	 "outputs":[{"name":"pair","type":"address"}]}
]`

const v2PairABIJSON = `[
	{"name":"getReserves","type":"function","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]}
]`

const v2RouterABIJSON = `[
	{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const quoterV2ABIJSON = `[
	{"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"amountIn","type":"uint256"},
		{"name":"fee","type":"uint24"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[
		{"name":"amountOut","type":"uint256"},
		{"name":"sqrtPriceX96After","type":"uint160"},
		{"name":"initializedTicksCrossed","type":"uint32"},
		{"name":"gasEstimate","type":"uint256"}]}
]`

const quoterV1ABIJSON = `[
	{"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"amountIn","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const v3RouterABIJSON = `[
	{"name":"exactInputSingle","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"params","type":"tuple","components":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"},
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMinimum","type":"uint256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const erc20ABIJSON = `[
	{"name":"allowance","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	V2FactoryABI = mustParseABI("v2 factory", v2FactoryABIJSON)
	V2PairABI    = mustParseABI("v2 pair", v2PairABIJSON)
	V2RouterABI  = mustParseABI("v2 router", v2RouterABIJSON)
	QuoterV2ABI  = mustParseABI("quoter v2", quoterV2ABIJSON)
	QuoterV1ABI  = mustParseABI("quoter v1", quoterV1ABIJSON)
	V3RouterABI  = mustParseABI("v3 router", v3RouterABIJSON)
	ERC20ABI     = mustParseABI("erc20", erc20ABIJSON)
)

func mustParseABI(name, raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s abi: %v", name, err))
	}
	return &parsed
}

// QuoteExactInputSingleParams is the QuoterV2 call tuple.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputSingleParams is the v3 router call tuple.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}
