// Package blockchaintest provides an in-memory node for tests of code that talks to the chain.
package blockchaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Responder answers one eth_call with the raw return data.
type Responder func(input []byte) ([]byte, error)

type callKey struct {
	to       common.Address
	selector [4]byte
}

// RevertError mimics the JSON-RPC error a node returns for a reverted eth_call.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(e.Data)
}

// NewRevertError encodes reason as Error(string) revert data.
func NewRevertError(reason string) *RevertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
	return &RevertError{Reason: reason, Data: data}
}

// Backend is a scriptable node. The zero value is not usable; call NewBackend.
type Backend struct {
	mu         sync.Mutex
	responders map[callKey]Responder
	callCount  map[callKey]int

	ChainIDValue *big.Int
	Header       *types.Header
	HeaderErr    error
	Nonce        uint64
	NonceErr     error
	TipCap       *big.Int
	TipCapErr    error
	Gas          uint64
	GasErr       error
	SendErr      error

	// Rewards are the per-block priority fees returned by FeeHistory.
	Rewards    []*big.Int
	HistoryErr error

	Sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	// AutoReceipt, when set, produces a receipt for every sent transaction.
	AutoReceipt func(tx *types.Transaction) *types.Receipt
}

func NewBackend() *Backend {
	return &Backend{
		responders:   make(map[callKey]Responder),
		callCount:    make(map[callKey]int),
		receipts:     make(map[common.Hash]*types.Receipt),
		ChainIDValue: big.NewInt(8453),
		Header:       &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000)},
		TipCap:       big.NewInt(1_000_000),
		Gas:          150_000,
	}
}

func key(to common.Address, contract *abi.ABI, method string) callKey {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	return callKey{to: to, selector: sel}
}

// Handle installs a responder for calls of method on the contract at to.
func (b *Backend) Handle(to common.Address, contract *abi.ABI, method string, r Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[key(to, contract, method)] = r
}

// Returns answers method with the ABI encoding of values.
func (b *Backend) Returns(to common.Address, contract *abi.ABI, method string, values ...interface{}) {
	out, err := contract.Methods[method].Outputs.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("pack %s outputs: %v", method, err))
	}
	b.Handle(to, contract, method, func([]byte) ([]byte, error) { return out, nil })
}

// Reverts makes method revert with reason.
func (b *Backend) Reverts(to common.Address, contract *abi.ABI, method, reason string) {
	b.Handle(to, contract, method, func([]byte) ([]byte, error) { return nil, NewRevertError(reason) })
}

// Fails makes method fail with a transport error.
func (b *Backend) Fails(to common.Address, contract *abi.ABI, method string, err error) {
	b.Handle(to, contract, method, func([]byte) ([]byte, error) { return nil, err })
}

func (b *Backend) CallCount(to common.Address, contract *abi.ABI, method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount[key(to, contract, method)]
}

func (b *Backend) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[hash] = receipt
}

func (b *Backend) SentTransactions() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.Sent))
	copy(out, b.Sent)
	return out
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

// CallContract dispatches on (to, selector). Unknown calls behave like a call to an
// account without code and return no data.
func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("invalid call")
	}
	var k callKey
	k.to = *call.To
	copy(k.selector[:], call.Data[:4])

	b.mu.Lock()
	b.callCount[k]++
	r, ok := b.responders[k]
	b.mu.Unlock()

	if !ok {
		return []byte{}, nil
	}
	return r(call.Data)
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HeaderErr != nil {
		return nil, b.HeaderErr
	}
	return types.CopyHeader(b.Header), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, b.NonceErr
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.TipCapErr != nil {
		return nil, b.TipCapErr
	}
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HistoryErr != nil {
		return nil, b.HistoryErr
	}
	history := &ethereum.FeeHistory{OldestBlock: big.NewInt(1)}
	for _, r := range b.Rewards {
		row := make([]*big.Int, len(rewardPercentiles))
		for i := range row {
			row[i] = new(big.Int).Set(r)
		}
		history.Reward = append(history.Reward, row)
		history.BaseFee = append(history.BaseFee, new(big.Int).Set(b.Header.BaseFee))
		history.GasUsedRatio = append(history.GasUsedRatio, 0.5)
	}
	return history, nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Gas, b.GasErr
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Nonce++
	if b.AutoReceipt != nil {
		if r := b.AutoReceipt(tx); r != nil {
			b.receipts[tx.Hash()] = r
		}
	}
	return nil
}
