// Package account is the wallet deployed behind every registry clone: a
// single owner, owner-gated call execution and ERC-1271 signature checks.
// Token receipt hooks accept everything so assets can land before an owner
// exists.
package account

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

var (
	ErrNotOwner           = errors.New("account: caller is not the owner")
	ErrInvalidOwner       = errors.New("account: invalid owner")
	ErrAlreadyInitialized = errors.New("account: already initialized")
	ErrNotRegistry        = errors.New("account: caller is not the deploying registry")
	ErrCallFailed         = errors.New("account: forwarded call failed")
)

var (
	slotOwner       = crypto.Keccak256Hash([]byte("account.owner"))
	slotInitialized = crypto.Keccak256Hash([]byte("account.initialized"))
)

// Name is the code name the implementation is installed under.
const Name = "account"

// New returns the account implementation.
func New() *chain.Native {
	return chain.NewNative(ABI, map[string]chain.Method{
		"initialize":             initialize,
		"owner":                  owner,
		"registry":               registry,
		"executeCall":            executeCall,
		"setOwner":               setOwner,
		"isValidSignature":       isValidSignature,
		"supportsInterface":      supportsInterface,
		"onERC721Received":       returns(erc721Received),
		"onERC1155Received":      returns(erc1155Received),
		"onERC1155BatchReceived": returns(erc1155BatchReceived),
	}, receive)
}

func ownerOf(env *chain.Env) common.Address {
	return common.BytesToAddress(env.GetState(slotOwner).Bytes())
}

// registryOf is the clone argument written by the registry at deployment.
func registryOf(env *chain.Env) common.Address {
	args := env.CloneArgs()
	if len(args) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(args[:common.AddressLength])
}

func onlyOwner(env *chain.Env) error {
	current := ownerOf(env)
	if current == (common.Address{}) || env.Caller() != current {
		return ErrNotOwner
	}
	return nil
}

func writeOwner(env *chain.Env, next common.Address) error {
	prev := ownerOf(env)
	if err := env.SetState(slotOwner, common.BytesToHash(next.Bytes())); err != nil {
		return err
	}
	return env.EmitEvent(ABI.Events["OwnerUpdated"], prev, next)
}

func initialize(env *chain.Env, args []interface{}) ([]interface{}, error) {
	newOwner := args[0].(common.Address)

	reg := registryOf(env)
	if reg == (common.Address{}) || env.Caller() != reg {
		return nil, ErrNotRegistry
	}
	if env.GetState(slotInitialized) != (common.Hash{}) {
		return nil, ErrAlreadyInitialized
	}
	if newOwner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	if err := env.SetState(slotInitialized, common.BytesToHash([]byte{1})); err != nil {
		return nil, err
	}
	return nil, writeOwner(env, newOwner)
}

func owner(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{ownerOf(env)}, nil
}

func registry(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{registryOf(env)}, nil
}

func executeCall(env *chain.Env, args []interface{}) ([]interface{}, error) {
	target := args[0].(common.Address)
	value := args[1].(*big.Int)
	data := args[2].([]byte)

	if err := onlyOwner(env); err != nil {
		return nil, err
	}
	amount, overflow := uint256.FromBig(value)
	if overflow {
		return nil, errors.Wrap(chain.ErrInvalidInput, "value overflows uint256")
	}
	result, err := env.Call(target, amount, data)
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, ErrCallFailed), "call %s", target.Hex())
	}
	if err := env.EmitEvent(ABI.Events["TransactionExecuted"], target, value, data); err != nil {
		return nil, err
	}
	if result == nil {
		result = []byte{}
	}
	return []interface{}{result}, nil
}

func setOwner(env *chain.Env, args []interface{}) ([]interface{}, error) {
	next := args[0].(common.Address)
	if err := onlyOwner(env); err != nil {
		return nil, err
	}
	if next == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	return nil, writeOwner(env, next)
}

// isValidSignature answers for the current owner and never fails: an unowned
// account or a bad signature yields the invalid value.
func isValidSignature(env *chain.Env, args []interface{}) ([]interface{}, error) {
	hash := common.Hash(args[0].([32]byte))
	sig := args[1].([]byte)

	current := ownerOf(env)
	if current != (common.Address{}) && verifier.IsValidSignatureNow(env, current, hash, sig) {
		return []interface{}{verifier.ERC1271MagicValue}, nil
	}
	return []interface{}{verifier.ERC1271InvalidValue}, nil
}

func supportsInterface(_ *chain.Env, args []interface{}) ([]interface{}, error) {
	id := args[0].([4]byte)
	switch id {
	case InterfaceERC165, InterfaceERC1271, InterfaceERC721Receiver, InterfaceERC1155Receiver:
		return []interface{}{true}, nil
	}
	return []interface{}{false}, nil
}

func returns(selector [4]byte) chain.Method {
	return func(*chain.Env, []interface{}) ([]interface{}, error) {
		return []interface{}{selector}, nil
	}
}

func receive(*chain.Env) error { return nil }
