// Package factory deploys one isolated registry clone per (deployer, index).
package factory

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/derive"
)

const abiJSON = `[
	{"type":"function","name":"registryImplementation","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"registry","stateMutability":"view",
		"inputs":[{"name":"deployer","type":"address"},{"name":"index","type":"uint256"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createRegistry","stateMutability":"nonpayable",
		"inputs":[{"name":"implementation","type":"address"},{"name":"index","type":"uint256"}],
		"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"RegistryCreated","anonymous":false,"inputs":[
		{"name":"registry","type":"address","indexed":false},
		{"name":"implementation","type":"address","indexed":true},
		{"name":"deployer","type":"address","indexed":true},
		{"name":"index","type":"uint256","indexed":false}]}
]`

var ABI = chain.MustParseABI(abiJSON)

var ErrInvalidRegistryImplementation = errors.New("factory: invalid registry implementation")

var slotRegistryImplementation = crypto.Keccak256Hash([]byte("factory.registryImplementation"))

const Name = "registry-factory"

func New() *chain.Native {
	return chain.NewNative(ABI, map[string]chain.Method{
		"registryImplementation": registryImplementation,
		"registry":               registryAddress,
		"createRegistry":         createRegistry,
	}, nil)
}

// Constructor fixes the registry implementation every clone forwards to.
func Constructor(registryImpl common.Address) func(env *chain.Env) error {
	return func(env *chain.Env) error {
		if registryImpl == (common.Address{}) || env.CodeSize(registryImpl) == 0 {
			return ErrInvalidRegistryImplementation
		}
		return env.SetState(slotRegistryImplementation, common.BytesToHash(registryImpl.Bytes()))
	}
}

func implOf(env *chain.Env) common.Address {
	return common.BytesToAddress(env.GetState(slotRegistryImplementation).Bytes())
}

func registryImplementation(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{implOf(env)}, nil
}

func registryAddress(env *chain.Env, args []interface{}) ([]interface{}, error) {
	deployer := args[0].(common.Address)
	index := args[1].(*big.Int)
	return []interface{}{derive.Registry(env.Self(), implOf(env), deployer, index)}, nil
}

// createRegistry is idempotent per (caller, index). A new clone starts with
// the caller as both signer and admin.
func createRegistry(env *chain.Env, args []interface{}) ([]interface{}, error) {
	accountImpl := args[0].(common.Address)
	index := args[1].(*big.Int)
	deployer := env.Caller()

	addr := derive.Registry(env.Self(), implOf(env), deployer, index)
	if env.CodeSize(addr) > 0 {
		return []interface{}{addr}, nil
	}

	initCode := derive.ProxyCreationCode(implOf(env), env.Self().Bytes())
	got, err := env.Create2(nil, derive.RegistrySalt(deployer, index), initCode)
	if err != nil {
		return nil, errors.Wrap(err, "deploy registry")
	}
	if got != addr {
		return nil, errors.AssertionFailedf("deployed %s, derived %s", got.Hex(), addr.Hex())
	}

	input, err := registry.ABI.Pack("initialize", accountImpl, deployer, deployer)
	if err != nil {
		return nil, err
	}
	if _, err := env.Call(addr, nil, input); err != nil {
		return nil, errors.Wrap(err, "initialize registry")
	}
	if err := env.EmitEvent(ABI.Events["RegistryCreated"], addr, accountImpl, deployer, index); err != nil {
		return nil, err
	}
	return []interface{}{addr}, nil
}

// Factory is a typed client for a deployed factory.
type Factory struct {
	*chain.BoundContract
}

func NewFactory(address common.Address, backend chain.Backend) *Factory {
	return &Factory{BoundContract: chain.NewBoundContract(address, ABI, backend)}
}

func (f *Factory) RegistryImplementation(opts *chain.CallOpts) (common.Address, error) {
	out, err := f.Call(opts, "registryImplementation")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (f *Factory) Registry(opts *chain.CallOpts, deployer common.Address, index *big.Int) (common.Address, error) {
	out, err := f.Call(opts, "registry", deployer, bigOrZero(index))
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (f *Factory) CreateRegistry(opts *chain.TransactOpts, accountImpl common.Address, index *big.Int) (common.Address, *chain.Receipt, error) {
	receipt, err := f.Transact(opts, "createRegistry", accountImpl, bigOrZero(index))
	if err != nil {
		return common.Address{}, nil, err
	}
	out, err := f.UnpackTransactResult("createRegistry", receipt)
	if err != nil {
		return common.Address{}, receipt, err
	}
	return out[0].(common.Address), receipt, nil
}

type RegistryCreated struct {
	Registry       common.Address
	Implementation common.Address
	Deployer       common.Address
	Index          *big.Int
	Raw            types.Log
}

func (f *Factory) ParseRegistryCreated(lg types.Log) (*RegistryCreated, error) {
	ev := new(RegistryCreated)
	if err := f.UnpackLog(ev, "RegistryCreated", lg); err != nil {
		return nil, err
	}
	ev.Raw = lg
	return ev, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
