package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

// Registry is a typed client for one registry clone.
type Registry struct {
	*chain.BoundContract
}

func NewRegistry(address common.Address, backend chain.Backend) *Registry {
	return &Registry{BoundContract: chain.NewBoundContract(address, ABI, backend)}
}

// Assignment is the argument list of assignAccount.
type Assignment struct {
	verifier.Authorization
	InitData []byte
}

func (r *Registry) Account(opts *chain.CallOpts, salt common.Hash) (common.Address, error) {
	out, err := r.Call(opts, "account", salt)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (r *Registry) Implementation(opts *chain.CallOpts) (common.Address, error) {
	out, err := r.Call(opts, "implementation")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (r *Registry) Owner(opts *chain.CallOpts) (common.Address, error) {
	out, err := r.Call(opts, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (r *Registry) Factory(opts *chain.CallOpts) (common.Address, error) {
	out, err := r.Call(opts, "factory")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Signer returns the configured signer as its tagged variant, or nil if none
// is set.
func (r *Registry) Signer(opts *chain.CallOpts) (verifier.Signer, error) {
	out, err := r.Call(opts, "signer")
	if err != nil {
		return nil, err
	}
	addr, isContract := out[0].(common.Address), out[1].(bool)
	if addr == (common.Address{}) {
		return nil, nil
	}
	if isContract {
		return verifier.DelegatedSigner{Addr: addr}, nil
	}
	return verifier.RawKeySigner{Addr: addr}, nil
}

func (r *Registry) AuthorizationDigest(opts *chain.CallOpts, owner common.Address, salt common.Hash, expiration *big.Int) (common.Hash, error) {
	if expiration == nil {
		expiration = new(big.Int)
	}
	out, err := r.Call(opts, "authorizationDigest", owner, salt, expiration)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

// CreateAccount deploys the account for salt if needed and returns its
// address.
func (r *Registry) CreateAccount(opts *chain.TransactOpts, salt common.Hash) (common.Address, *chain.Receipt, error) {
	receipt, err := r.Transact(opts, "createAccount", salt)
	if err != nil {
		return common.Address{}, nil, err
	}
	out, err := r.UnpackTransactResult("createAccount", receipt)
	if err != nil {
		return common.Address{}, receipt, err
	}
	return out[0].(common.Address), receipt, nil
}

func (r *Registry) AssignAccount(opts *chain.TransactOpts, a Assignment) (common.Address, *chain.Receipt, error) {
	expiration := a.Expiration
	if expiration == nil {
		expiration = new(big.Int)
	}
	sig, initData := a.Signature, a.InitData
	if sig == nil {
		sig = []byte{}
	}
	if initData == nil {
		initData = []byte{}
	}
	receipt, err := r.Transact(opts, "assignAccount", a.Owner, a.Salt, expiration, a.Message, sig, initData)
	if err != nil {
		return common.Address{}, nil, err
	}
	out, err := r.UnpackTransactResult("assignAccount", receipt)
	if err != nil {
		return common.Address{}, receipt, err
	}
	return out[0].(common.Address), receipt, nil
}

func (r *Registry) SetSigner(opts *chain.TransactOpts, newSigner common.Address) (*chain.Receipt, error) {
	return r.Transact(opts, "setSigner", newSigner)
}

func (r *Registry) TransferOwnership(opts *chain.TransactOpts, newOwner common.Address) (*chain.Receipt, error) {
	return r.Transact(opts, "transferOwnership", newOwner)
}

type AccountCreated struct {
	Account        common.Address
	Implementation common.Address
	Salt           [32]byte
	Raw            types.Log
}

type AccountAssigned struct {
	Account common.Address
	Owner   common.Address
	Raw     types.Log
}

type SignerUpdated struct {
	Signer     common.Address
	IsContract bool
	Raw        types.Log
}

type OwnershipTransferred struct {
	PreviousOwner common.Address
	NewOwner      common.Address
	Raw           types.Log
}

func (r *Registry) ParseAccountCreated(lg types.Log) (*AccountCreated, error) {
	ev := new(AccountCreated)
	if err := r.UnpackLog(ev, "AccountCreated", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

func (r *Registry) ParseAccountAssigned(lg types.Log) (*AccountAssigned, error) {
	ev := new(AccountAssigned)
	if err := r.UnpackLog(ev, "AccountAssigned", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

func (r *Registry) ParseSignerUpdated(lg types.Log) (*SignerUpdated, error) {
	ev := new(SignerUpdated)
	if err := r.UnpackLog(ev, "SignerUpdated", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

func (r *Registry) ParseOwnershipTransferred(lg types.Log) (*OwnershipTransferred, error) {
	ev := new(OwnershipTransferred)
	if err := r.UnpackLog(ev, "OwnershipTransferred", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}
