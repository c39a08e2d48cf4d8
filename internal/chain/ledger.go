// Package chain is an in-process, EVM-shaped execution host. Contracts are Go
// types registered by code hash and dispatched by ABI selector; everything
// else (balances, nonces, CREATE2, proxies, logs) follows Ethereum rules.
package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/quantumauth-io/account-registry/internal/derive"
)

const maxCallDepth = 64

// Contract is native code that can be installed on the ledger.
type Contract interface {
	Run(env *Env, input []byte) ([]byte, error)
}

type Config struct {
	ChainID *big.Int
	// Clock stamps blocks; defaults to the wall clock.
	Clock clock.Clock
	// Alloc is the genesis balance of each listed account.
	Alloc map[common.Address]*uint256.Int
	// Genesis identifies this ledger instance. A random one is drawn when
	// zero, so two ledgers built from the same config never share tx hashes.
	Genesis common.Hash
}

type Header struct {
	Number uint64
	Time   uint64
}

type Message struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Data  []byte
}

type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	BlockTime   uint64
	ReturnData  []byte
	Logs        []*types.Log
}

type FilterQuery struct {
	FromBlock uint64
	Addresses []common.Address
	// Topics[i] lists the accepted values at position i; empty matches any.
	Topics [][]common.Hash
}

// Ledger applies transactions one at a time. Each transaction is mined into
// its own block and either commits entirely or leaves no trace.
type Ledger struct {
	mu      sync.Mutex
	chainID *big.Int
	genesis common.Hash
	clock   clock.Clock
	state   *StateDB
	natives map[common.Hash]Contract
	head    Header
	logs    []*types.Log

	feedMu  sync.Mutex
	logFeed event.Feed
}

func NewLedger(cfg Config) *Ledger {
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = big.NewInt(1337)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	genesis := cfg.Genesis
	if genesis == (common.Hash{}) {
		id := uuid.New()
		genesis = crypto.Keccak256Hash(math.U256Bytes(new(big.Int).Set(chainID)), id[:])
	}
	l := &Ledger{
		chainID: new(big.Int).Set(chainID),
		genesis: genesis,
		clock:   clk,
		state:   NewStateDB(),
		natives: make(map[common.Hash]Contract),
		head:    Header{Time: uint64(clk.Now().Unix())},
	}
	for addr, bal := range cfg.Alloc {
		l.state.AddBalance(addr, bal)
	}
	l.state.Finalise()
	return l
}

// NativeCode is the runtime code stored for a native contract. The leading
// INVALID opcode keeps it from ever being mistaken for executable bytecode.
func NativeCode(name string) []byte {
	return append([]byte{0xfe}, []byte("native:"+name)...)
}

func (l *Ledger) ChainID() *big.Int {
	return new(big.Int).Set(l.chainID)
}

// Genesis identifies this ledger instance.
func (l *Ledger) Genesis() common.Hash { return l.genesis }

func (l *Ledger) Head() Header {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

func (l *Ledger) BalanceAt(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetBalance(addr)
}

func (l *Ledger) CodeAt(addr common.Address) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return common.CopyBytes(l.state.GetCode(addr))
}

func (l *Ledger) NonceAt(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetNonce(addr)
}

// Deploy installs contract under a fresh CREATE address of from and runs ctor
// in the new contract's context. The deployment is a transaction of its own.
// Every contract deployed under one name shares its code, so a name can only
// ever be bound to a single Contract value.
func (l *Ledger) Deploy(ctx context.Context, from common.Address, name string, contract Contract, ctor func(env *Env) error) (common.Address, *Receipt, error) {
	if contract == nil {
		return common.Address{}, nil, errors.Wrapf(ErrUnknownCode, "deploy %s", name)
	}
	var addr common.Address
	code := NativeCode(name)
	receipt, err := l.apply(ctx, from, code, func(block Header) ([]byte, error) {
		nonce := l.state.GetNonce(from)
		addr = crypto.CreateAddress(from, nonce)
		if len(l.state.GetCode(addr)) > 0 || l.state.GetNonce(addr) > 0 {
			return nil, ErrContractAddressCollision
		}
		codeHash := crypto.Keccak256Hash(code)
		existing, bound := l.natives[codeHash]
		if bound && existing != contract {
			return nil, errors.Wrapf(ErrNativeNameTaken, "%q", name)
		}
		if !bound {
			l.natives[codeHash] = contract
		}
		fail := func(err error) ([]byte, error) {
			if !bound {
				delete(l.natives, codeHash)
			}
			return nil, err
		}
		l.state.SetNonce(addr, 1)
		l.state.SetCode(addr, code)
		if ctor == nil {
			return nil, nil
		}
		env := &Env{
			ledger: l,
			block:  block,
			origin: from,
			caller: from,
			self:   addr,
			code:   addr,
			value:  new(uint256.Int),
		}
		if err := ctor(env); err != nil {
			return fail(err)
		}
		return nil, nil
	})
	if err != nil {
		return common.Address{}, nil, errors.Wrapf(err, "deploy %s", name)
	}
	return addr, receipt, nil
}

// Transact executes msg as a state-changing transaction.
func (l *Ledger) Transact(ctx context.Context, msg Message) (*Receipt, error) {
	return l.apply(ctx, msg.From, txPayload(msg), func(block Header) ([]byte, error) {
		f := frame{origin: msg.From, block: block}
		return l.call(msg.From, msg.To, msg.Value, msg.Data, f)
	})
}

// Call executes msg against the pending block in read-only mode. Nothing it
// does is kept.
func (l *Ledger) Call(ctx context.Context, msg Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.state.Snapshot()
	defer l.state.RevertToSnapshot(snap)

	f := frame{origin: msg.From, block: l.pendingHeader(), readOnly: true}
	return l.call(msg.From, msg.To, nil, msg.Data, f)
}

// SubscribeLogs delivers the logs of every committed transaction, in commit
// order.
func (l *Ledger) SubscribeLogs(ch chan<- []*types.Log) event.Subscription {
	return l.logFeed.Subscribe(ch)
}

func (l *Ledger) FilterLogs(q FilterQuery) []*types.Log {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.Log
	for _, lg := range l.logs {
		if lg.BlockNumber < q.FromBlock {
			continue
		}
		if matchLog(lg, q) {
			cp := *lg
			out = append(out, &cp)
		}
	}
	return out
}

func matchLog(lg *types.Log, q FilterQuery) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Topics) > len(lg.Topics) {
		return false
	}
	for i, accepted := range q.Topics {
		if len(accepted) == 0 {
			continue
		}
		found := false
		for _, t := range accepted {
			if t == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (l *Ledger) pendingHeader() Header {
	now := uint64(l.clock.Now().Unix())
	if now < l.head.Time {
		now = l.head.Time
	}
	return Header{Number: l.head.Number + 1, Time: now}
}

// txPayload is what a transaction's hash commits to besides sender, nonce and
// block.
func txPayload(msg Message) []byte {
	var value [32]byte
	if msg.Value != nil {
		value = msg.Value.Bytes32()
	}
	out := make([]byte, 0, common.AddressLength+32+len(msg.Data))
	out = append(out, msg.To.Bytes()...)
	out = append(out, value[:]...)
	return append(out, msg.Data...)
}

// txHash binds a transaction to this ledger instance and to its payload.
func (l *Ledger) txHash(from common.Address, nonce uint64, block Header, payload []byte) common.Hash {
	return crypto.Keccak256Hash(
		l.genesis.Bytes(),
		from.Bytes(),
		math.U256Bytes(new(big.Int).SetUint64(nonce)),
		math.U256Bytes(block.Number256()),
		crypto.Keccak256(payload),
	)
}

// apply runs fn as one transaction from sender. On failure every state change
// fn made is reverted and no block is produced.
func (l *Ledger) apply(ctx context.Context, from common.Address, payload []byte, fn func(block Header) ([]byte, error)) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	locked := true
	defer func() {
		if locked {
			l.mu.Unlock()
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	block := l.pendingHeader()
	nonce := l.state.GetNonce(from)
	snap := l.state.Snapshot()
	ret, err := fn(block)
	if err != nil {
		l.state.RevertToSnapshot(snap)
		l.state.Finalise()
		return nil, err
	}
	txHash := l.txHash(from, nonce, block, payload)
	l.state.SetNonce(from, nonce+1)
	logs := l.state.Finalise()
	for i, lg := range logs {
		lg.BlockNumber = block.Number
		lg.TxHash = txHash
		lg.TxIndex = 0
		lg.Index = uint(i)
	}
	l.head = block
	l.logs = append(l.logs, logs...)

	receipt := &Receipt{
		TxHash:      txHash,
		BlockNumber: block.Number,
		BlockTime:   block.Time,
		ReturnData:  ret,
		Logs:        logs,
	}

	// Hand the feed lock over before releasing the state lock so that
	// subscribers observe blocks in commit order.
	l.feedMu.Lock()
	l.mu.Unlock()
	locked = false
	defer l.feedMu.Unlock()
	if len(logs) > 0 {
		delivered := make([]*types.Log, len(logs))
		for i, lg := range logs {
			cp := *lg
			delivered[i] = &cp
		}
		l.logFeed.Send(delivered)
	}
	return receipt, nil
}

func (h Header) Number256() *big.Int {
	return new(big.Int).SetUint64(h.Number)
}

type frame struct {
	origin   common.Address
	block    Header
	depth    int
	readOnly bool
}

// call transfers value and runs the code at to. A contract's failure reverts
// everything done inside the call, including the transfer.
func (l *Ledger) call(caller, to common.Address, value *uint256.Int, input []byte, f frame) ([]byte, error) {
	if f.depth > maxCallDepth {
		return nil, ErrDepth
	}
	if value == nil {
		value = new(uint256.Int)
	}
	snap := l.state.Snapshot()
	if !value.IsZero() {
		if f.readOnly {
			return nil, ErrWriteProtection
		}
		if err := l.state.Transfer(caller, to, value); err != nil {
			l.state.RevertToSnapshot(snap)
			return nil, err
		}
	}

	code := l.state.GetCode(to)
	if len(code) == 0 {
		return nil, nil
	}
	env := &Env{
		ledger:   l,
		block:    f.block,
		origin:   f.origin,
		caller:   caller,
		self:     to,
		code:     to,
		value:    value,
		readOnly: f.readOnly,
		depth:    f.depth,
	}
	if impl, args, ok := derive.ParseProxy(code); ok {
		env.code = impl
		env.args = args
		code = l.state.GetCode(impl)
		if len(code) == 0 {
			return nil, nil
		}
	}
	contract, ok := l.natives[crypto.Keccak256Hash(code)]
	if !ok {
		l.state.RevertToSnapshot(snap)
		return nil, errors.Wrapf(ErrUnknownCode, "at %s", env.code.Hex())
	}
	ret, err := contract.Run(env, input)
	if err != nil {
		l.state.RevertToSnapshot(snap)
		return nil, err
	}
	return ret, nil
}

func (l *Ledger) create2(parent *Env, value *uint256.Int, salt common.Hash, initCode []byte) (common.Address, error) {
	if parent.depth+1 > maxCallDepth {
		return common.Address{}, ErrDepth
	}
	runtime, ok := derive.RuntimeFromCreationCode(initCode)
	if !ok {
		return common.Address{}, ErrUnsupportedInitCode
	}
	addr := derive.Address(parent.self, salt, crypto.Keccak256Hash(initCode))
	if len(l.state.GetCode(addr)) > 0 || l.state.GetNonce(addr) > 0 {
		return common.Address{}, ErrContractAddressCollision
	}

	snap := l.state.Snapshot()
	l.state.SetNonce(parent.self, l.state.GetNonce(parent.self)+1)
	l.state.SetNonce(addr, 1)
	l.state.SetCode(addr, runtime)
	if err := l.state.Transfer(parent.self, addr, value); err != nil {
		l.state.RevertToSnapshot(snap)
		return common.Address{}, err
	}
	return addr, nil
}
