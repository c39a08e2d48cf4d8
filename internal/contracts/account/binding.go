package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quantumauth-io/account-registry/internal/chain"
)

// Account is a typed client for one deployed account instance.
type Account struct {
	*chain.BoundContract
}

func NewAccount(address common.Address, backend chain.Backend) *Account {
	return &Account{BoundContract: chain.NewBoundContract(address, ABI, backend)}
}

func (a *Account) Owner(opts *chain.CallOpts) (common.Address, error) {
	out, err := a.Call(opts, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (a *Account) Registry(opts *chain.CallOpts) (common.Address, error) {
	out, err := a.Call(opts, "registry")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (a *Account) IsValidSignature(opts *chain.CallOpts, hash common.Hash, sig []byte) ([4]byte, error) {
	out, err := a.Call(opts, "isValidSignature", hash, sig)
	if err != nil {
		return [4]byte{}, err
	}
	return out[0].([4]byte), nil
}

func (a *Account) SupportsInterface(opts *chain.CallOpts, id [4]byte) (bool, error) {
	out, err := a.Call(opts, "supportsInterface", id)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (a *Account) ExecuteCall(opts *chain.TransactOpts, target common.Address, value *big.Int, data []byte) (*chain.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	return a.Transact(opts, "executeCall", target, value, data)
}

func (a *Account) SetOwner(opts *chain.TransactOpts, newOwner common.Address) (*chain.Receipt, error) {
	return a.Transact(opts, "setOwner", newOwner)
}

// Initialize is only accepted from the registry that deployed the instance.
func (a *Account) Initialize(opts *chain.TransactOpts, owner common.Address) (*chain.Receipt, error) {
	return a.Transact(opts, "initialize", owner)
}

type OwnerUpdated struct {
	PreviousOwner common.Address
	NewOwner      common.Address
	Raw           types.Log
}

type TransactionExecuted struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
	Raw    types.Log
}

func (a *Account) ParseOwnerUpdated(lg types.Log) (*OwnerUpdated, error) {
	ev := new(OwnerUpdated)
	if err := a.UnpackLog(ev, "OwnerUpdated", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

func (a *Account) ParseTransactionExecuted(lg types.Log) (*TransactionExecuted, error) {
	ev := new(TransactionExecuted)
	if err := a.UnpackLog(ev, "TransactionExecuted", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

// EncodeInitialize returns calldata for initialize(owner), the default
// one-time setup call a registry applies to a new instance.
func EncodeInitialize(owner common.Address) []byte {
	data, err := ABI.Pack("initialize", owner)
	if err != nil {
		panic(err)
	}
	return data
}
