package chain

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Backend is what a contract binding needs from the ledger.
type Backend interface {
	Call(ctx context.Context, msg Message) ([]byte, error)
	Transact(ctx context.Context, msg Message) (*Receipt, error)
}

type CallOpts struct {
	From    common.Address
	Context context.Context
}

type TransactOpts struct {
	From    common.Address
	Value   *uint256.Int
	Context context.Context
}

func (o *CallOpts) ctx() context.Context {
	if o == nil || o.Context == nil {
		return context.Background()
	}
	return o.Context
}

func (o *TransactOpts) ctx() context.Context {
	if o == nil || o.Context == nil {
		return context.Background()
	}
	return o.Context
}

// BoundContract packs calls and unpacks results for one deployed contract.
type BoundContract struct {
	address common.Address
	abi     abi.ABI
	backend Backend
}

func NewBoundContract(address common.Address, contractABI abi.ABI, backend Backend) *BoundContract {
	return &BoundContract{address: address, abi: contractABI, backend: backend}
}

func (c *BoundContract) Address() common.Address { return c.address }

func (c *BoundContract) ABI() abi.ABI { return c.abi }

// Call runs a read-only method and returns its unpacked outputs.
func (c *BoundContract) Call(opts *CallOpts, method string, params ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	var from common.Address
	if opts != nil {
		from = opts.From
	}
	out, err := c.backend.Call(opts.ctx(), Message{From: from, To: c.address, Data: input})
	if err != nil {
		return nil, err
	}
	return c.abi.Unpack(method, out)
}

// Transact sends a state-changing call to method.
func (c *BoundContract) Transact(opts *TransactOpts, method string, params ...interface{}) (*Receipt, error) {
	input, err := c.abi.Pack(method, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	return c.RawTransact(opts, input)
}

// RawTransact sends input as is; empty input is a plain value transfer.
func (c *BoundContract) RawTransact(opts *TransactOpts, input []byte) (*Receipt, error) {
	if opts == nil {
		return nil, errors.New("transact: missing opts")
	}
	return c.backend.Transact(opts.ctx(), Message{
		From:  opts.From,
		To:    c.address,
		Value: opts.Value,
		Data:  input,
	})
}

// UnpackTransactResult decodes the return data of a transaction.
func (c *BoundContract) UnpackTransactResult(method string, receipt *Receipt) ([]interface{}, error) {
	if receipt == nil {
		return nil, errors.New("nil receipt")
	}
	return c.abi.Unpack(method, receipt.ReturnData)
}

// UnpackLog decodes lg as event into out, which must be a pointer to a struct
// whose fields are the camel-cased event inputs.
func (c *BoundContract) UnpackLog(out interface{}, event string, lg types.Log) error {
	ev, ok := c.abi.Events[event]
	if !ok {
		return errors.Newf("unknown event %s", event)
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return errors.Newf("log is not a %s event", event)
	}
	if len(lg.Data) > 0 {
		if err := c.abi.UnpackIntoInterface(out, event, lg.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return abi.ParseTopics(out, indexed, lg.Topics[1:])
}

// FindLogs returns the logs in receipt that this contract emitted as event.
func (c *BoundContract) FindLogs(receipt *Receipt, event string) []types.Log {
	ev, ok := c.abi.Events[event]
	if !ok || receipt == nil {
		return nil
	}
	var out []types.Log
	for _, lg := range receipt.Logs {
		if lg.Address == c.address && len(lg.Topics) > 0 && lg.Topics[0] == ev.ID {
			out = append(out, *lg)
		}
	}
	return out
}
