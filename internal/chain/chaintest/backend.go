// Package chaintest provides an in-memory node for exercising contract reads
// and transactions without an RPC endpoint.
package chaintest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
)

// Handler answers a call with decoded arguments.
type Handler func(args []interface{}) ([]interface{}, error)

// SendResult scripts the outcome of a transaction.
type SendResult struct {
	// Reject fails Send before broadcast.
	Reject error
	// Revert mines the transaction as failed with this reason.
	Revert string
	Logs   []types.Log
	// Pending keeps the transaction unmined until WaitForReceipt times out.
	Pending bool
}

// SendHandler scripts a transaction from its decoded arguments.
type SendHandler func(args []interface{}) SendResult

// Invocation is a recorded call or transaction.
type Invocation struct {
	To     common.Address
	Method string
	Args   []interface{}
}

type key struct {
	to     common.Address
	method string
}

// Backend implements chain.Caller and chain.Submitter.
type Backend struct {
	mu sync.Mutex

	from      common.Address
	contracts map[common.Address]abi.ABI
	calls     map[key]Handler
	sends     map[key]SendHandler
	receipts  map[common.Hash]chain.Receipt
	pending   map[common.Hash]bool
	block     uint64

	called []Invocation
	sent   []Invocation
}

// New creates a backend sending from the given account.
func New(from common.Address) *Backend {
	return &Backend{
		from:      from,
		contracts: make(map[common.Address]abi.ABI),
		calls:     make(map[key]Handler),
		sends:     make(map[key]SendHandler),
		receipts:  make(map[common.Hash]chain.Receipt),
		pending:   make(map[common.Hash]bool),
		block:     100,
	}
}

// Register deploys a contract ABI at address.
func (b *Backend) Register(address common.Address, parsed abi.ABI) {
	b.mu.Lock()
	b.contracts[address] = parsed
	b.mu.Unlock()
}

// OnCall installs a read handler.
func (b *Backend) OnCall(address common.Address, method string, h Handler) {
	b.mu.Lock()
	b.calls[key{address, method}] = h
	b.mu.Unlock()
}

// Returns answers method with fixed values.
func (b *Backend) Returns(address common.Address, method string, values ...interface{}) {
	b.OnCall(address, method, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// OnSend installs a transaction handler.
func (b *Backend) OnSend(address common.Address, method string, h SendHandler) {
	b.mu.Lock()
	b.sends[key{address, method}] = h
	b.mu.Unlock()
}

// Calls returns how many times method was read.
func (b *Backend) Calls(method string) int {
	return count(b.snapshot(false), method)
}

// Sent returns the recorded transactions calling method.
func (b *Backend) Sent(method string) []Invocation {
	var out []Invocation
	for _, inv := range b.snapshot(true) {
		if inv.Method == method {
			out = append(out, inv)
		}
	}
	return out
}

// SentTotal returns the number of broadcast transactions.
func (b *Backend) SentTotal() int {
	return len(b.snapshot(true))
}

func (b *Backend) snapshot(sent bool) []Invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.called
	if sent {
		src = b.sent
	}
	return append([]Invocation(nil), src...)
}

func count(invs []Invocation, method string) int {
	n := 0
	for _, inv := range invs {
		if inv.Method == method {
			n++
		}
	}
	return n
}

func (b *Backend) decode(to *common.Address, data []byte) (common.Address, *abi.Method, []interface{}, error) {
	if to == nil {
		return common.Address{}, nil, nil, fmt.Errorf("contract creation not supported")
	}
	b.mu.Lock()
	parsed, ok := b.contracts[*to]
	b.mu.Unlock()
	if !ok {
		return *to, nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return *to, nil, nil, fmt.Errorf("short calldata")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return *to, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return *to, nil, nil, err
	}
	return *to, method, args, nil
}

// CallContract implements chain.Caller.
func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	to, method, args, err := b.decode(msg.To, msg.Data)
	if err != nil {
		return nil, Revert(err.Error())
	}

	b.mu.Lock()
	h, ok := b.calls[key{to, method.Name}]
	b.called = append(b.called, Invocation{To: to, Method: method.Name, Args: args})
	b.mu.Unlock()
	if !ok {
		return nil, Revert("no handler for " + method.Name)
	}

	values, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

// From implements chain.Submitter.
func (b *Backend) From() common.Address {
	return b.from
}

// Send implements chain.Submitter.
func (b *Backend) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	addr, method, args, err := b.decode(&to, data)
	if err != nil {
		return common.Hash{}, err
	}

	b.mu.Lock()
	h := b.sends[key{addr, method.Name}]
	b.mu.Unlock()

	result := SendResult{}
	if h != nil {
		result = h(args)
	}
	if result.Reject != nil {
		return common.Hash{}, result.Reject
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, Invocation{To: addr, Method: method.Name, Args: args})
	b.block++

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(len(b.sent)))
	hash := crypto.Keccak256Hash(seed[:], data)

	if result.Pending {
		b.pending[hash] = true
		return hash, nil
	}
	logs := make([]types.Log, len(result.Logs))
	for i, lg := range result.Logs {
		lg.TxHash = hash
		lg.BlockNumber = b.block
		logs[i] = lg
	}
	b.receipts[hash] = chain.Receipt{
		TxHash:       hash,
		Succeeded:    result.Revert == "",
		BlockNumber:  b.block,
		Logs:         logs,
		RevertReason: result.Revert,
	}
	return hash, nil
}

// WaitForReceipt implements chain.Submitter.
func (b *Backend) WaitForReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error) {
	b.mu.Lock()
	receipt, ok := b.receipts[hash]
	pending := b.pending[hash]
	b.mu.Unlock()

	if ok {
		return receipt, nil
	}
	if pending {
		<-ctx.Done()
		return chain.Receipt{TxHash: hash}, fmt.Errorf("%w: %s", model.ErrReceiptTimeout, hash.Hex())
	}
	return chain.Receipt{}, fmt.Errorf("unknown transaction %s", hash.Hex())
}

// Revert builds the node error for a call reverting with reason.
func Revert(reason string) error {
	return revertError{reason: reason, data: hexutil.Encode(encodeReason(reason))}
}

type revertError struct {
	reason string
	data   string
}

func (e revertError) Error() string          { return "execution reverted: " + e.reason }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

var errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

func encodeReason(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		return nil
	}
	return append(append([]byte(nil), errorSelector...), packed...)
}
