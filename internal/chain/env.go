package chain

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Env is the execution context of one call frame. When a contract runs
// behind a minimal proxy, Self is the proxy (storage, balance and logs live
// there) and CodeAddress is the implementation.
type Env struct {
	ledger   *Ledger
	block    Header
	origin   common.Address
	caller   common.Address
	self     common.Address
	code     common.Address
	value    *uint256.Int
	args     []byte
	readOnly bool
	depth    int
}

func (e *Env) Caller() common.Address      { return e.caller }
func (e *Env) Origin() common.Address      { return e.origin }
func (e *Env) Self() common.Address        { return e.self }
func (e *Env) CodeAddress() common.Address { return e.code }
func (e *Env) Value() *uint256.Int         { return new(uint256.Int).Set(e.value) }
func (e *Env) ReadOnly() bool              { return e.readOnly }
func (e *Env) BlockNumber() uint64         { return e.block.Number }
func (e *Env) Time() uint64                { return e.block.Time }
func (e *Env) ChainID() *big.Int           { return e.ledger.ChainID() }

// Delegated reports whether the frame runs behind a proxy.
func (e *Env) Delegated() bool { return e.self != e.code }

// CloneArgs returns the immutable arguments appended to the proxy code, or
// nil outside a proxy.
func (e *Env) CloneArgs() []byte { return common.CopyBytes(e.args) }

func (e *Env) GetState(key common.Hash) common.Hash {
	return e.ledger.state.GetState(e.self, key)
}

func (e *Env) SetState(key, value common.Hash) error {
	if e.readOnly {
		return ErrWriteProtection
	}
	e.ledger.state.SetState(e.self, key, value)
	return nil
}

func (e *Env) Balance(addr common.Address) *uint256.Int {
	return e.ledger.state.GetBalance(addr)
}

func (e *Env) CodeSize(addr common.Address) int {
	return len(e.ledger.state.GetCode(addr))
}

func (e *Env) CodeHash(addr common.Address) common.Hash {
	return e.ledger.state.GetCodeHash(addr)
}

// Call invokes to with value and data on behalf of Self.
func (e *Env) Call(to common.Address, value *uint256.Int, data []byte) ([]byte, error) {
	return e.ledger.call(e.self, to, value, data, e.child(e.readOnly))
}

// StaticCall invokes to without allowing any state change.
func (e *Env) StaticCall(to common.Address, data []byte) ([]byte, error) {
	return e.ledger.call(e.self, to, nil, data, e.child(true))
}

// Create2 deploys initCode at the CREATE2 address of Self. Only minimal-proxy
// init code is executable on this host.
func (e *Env) Create2(value *uint256.Int, salt common.Hash, initCode []byte) (common.Address, error) {
	if e.readOnly {
		return common.Address{}, ErrWriteProtection
	}
	if value == nil {
		value = new(uint256.Int)
	}
	return e.ledger.create2(e, value, salt, initCode)
}

// Emit appends a raw log from Self.
func (e *Env) Emit(topics []common.Hash, data []byte) error {
	if e.readOnly {
		return ErrWriteProtection
	}
	e.ledger.state.AddLog(&types.Log{
		Address: e.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    common.CopyBytes(data),
	})
	return nil
}

// EmitEvent encodes args against ev, indexed inputs going to topics, and
// emits the result.
func (e *Env) EmitEvent(ev abi.Event, args ...interface{}) error {
	if len(args) != len(ev.Inputs) {
		return errors.Newf("event %s: got %d args, want %d", ev.Name, len(args), len(ev.Inputs))
	}
	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		word, err := abi.Arguments{{Type: in.Type}}.Pack(args[i])
		if err != nil {
			return errors.Wrapf(err, "event %s: topic %s", ev.Name, in.Name)
		}
		topics = append(topics, common.BytesToHash(word))
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return errors.Wrapf(err, "event %s", ev.Name)
	}
	return e.Emit(topics, packed)
}

func (e *Env) child(readOnly bool) frame {
	return frame{
		origin:   e.origin,
		block:    e.block,
		depth:    e.depth + 1,
		readOnly: readOnly,
	}
}
