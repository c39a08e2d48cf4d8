// Package derive computes deterministic contract addresses for account and
// registry clones.
//
// All functions are pure: the same inputs always produce the same address,
// whether or not anything has been deployed there yet. The ledger host uses
// the exact same functions when it executes CREATE2, so a derived address
// and a deployed address can never disagree.
package derive

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// creation header: PUSH2 <runtime length> RETURNDATASIZE DUP2 PUSH1 0x0a RETURNDATASIZE CODECOPY RETURN
	creationPrefix = []byte{0x61}
	creationInfix  = common.FromHex("3d81600a3d39f3")

	// EIP-1167 forwarder split around the 20-byte implementation address.
	runtimePrefix = common.FromHex("363d3d373d3d3d363d73")
	runtimeSuffix = common.FromHex("5af43d82803e903d91602b57fd5bf3")
)

const (
	creationHeaderLen = 10
	// RuntimeLen is the size of the forwarder without immutable args.
	RuntimeLen = 45
	implOffset = 10
	maxArgsLen = 0xffff - RuntimeLen
)

// ProxyRuntimeCode returns the runtime bytecode of a minimal proxy that
// delegates every call to implementation, followed by args.
func ProxyRuntimeCode(implementation common.Address, args []byte) []byte {
	out := make([]byte, 0, RuntimeLen+len(args))
	out = append(out, runtimePrefix...)
	out = append(out, implementation.Bytes()...)
	out = append(out, runtimeSuffix...)
	out = append(out, args...)
	return out
}

// ProxyCreationCode returns the init code that deploys ProxyRuntimeCode.
// It panics if args do not fit a PUSH2 length.
func ProxyCreationCode(implementation common.Address, args []byte) []byte {
	if len(args) > maxArgsLen {
		panic("derive: clone args too long")
	}
	n := RuntimeLen + len(args)
	out := make([]byte, 0, creationHeaderLen+n)
	out = append(out, creationPrefix...)
	out = append(out, byte(n>>8), byte(n))
	out = append(out, creationInfix...)
	out = append(out, ProxyRuntimeCode(implementation, args)...)
	return out
}

// ParseProxy reports whether runtime is a minimal proxy and, if so, returns
// its implementation and immutable args.
func ParseProxy(runtime []byte) (implementation common.Address, args []byte, ok bool) {
	if len(runtime) < RuntimeLen {
		return common.Address{}, nil, false
	}
	if !bytes.Equal(runtime[:implOffset], runtimePrefix) {
		return common.Address{}, nil, false
	}
	if !bytes.Equal(runtime[implOffset+common.AddressLength:RuntimeLen], runtimeSuffix) {
		return common.Address{}, nil, false
	}
	implementation = common.BytesToAddress(runtime[implOffset : implOffset+common.AddressLength])
	if len(runtime) > RuntimeLen {
		args = common.CopyBytes(runtime[RuntimeLen:])
	}
	return implementation, args, true
}

// RuntimeFromCreationCode extracts the runtime bytecode produced by proxy
// init code. Any other init code is rejected.
func RuntimeFromCreationCode(initCode []byte) ([]byte, bool) {
	if len(initCode) < creationHeaderLen+RuntimeLen {
		return nil, false
	}
	if initCode[0] != creationPrefix[0] || !bytes.Equal(initCode[3:creationHeaderLen], creationInfix) {
		return nil, false
	}
	n := int(initCode[1])<<8 | int(initCode[2])
	runtime := initCode[creationHeaderLen:]
	if n != len(runtime) {
		return nil, false
	}
	if _, _, ok := ParseProxy(runtime); !ok {
		return nil, false
	}
	return common.CopyBytes(runtime), true
}

// Address is the CREATE2 rule: keccak256(0xff ++ deployer ++ salt ++ codeHash)[12:].
func Address(deployer common.Address, salt common.Hash, codeHash common.Hash) common.Address {
	return crypto.CreateAddress2(deployer, salt, codeHash.Bytes())
}

// AccountSalt is the salt strategy for account clones: the service salt is
// used as is.
func AccountSalt(salt common.Hash) common.Hash {
	return salt
}

// RegistrySalt is the salt strategy for registry clones:
// keccak256(abi.encode(deployer, index)).
func RegistrySalt(deployer common.Address, index *big.Int) common.Hash {
	if index == nil {
		index = new(big.Int)
	}
	return crypto.Keccak256Hash(
		common.LeftPadBytes(deployer.Bytes(), 32),
		math.U256Bytes(new(big.Int).Set(index)),
	)
}

// Account returns the address of the account clone for salt under the given
// registry and implementation. The registry address is carried by the clone
// as its immutable argument.
func Account(registry, implementation common.Address, salt common.Hash) common.Address {
	initCode := ProxyCreationCode(implementation, registry.Bytes())
	return Address(registry, AccountSalt(salt), crypto.Keccak256Hash(initCode))
}

// Registry returns the address of the registry clone a factory creates for
// (deployer, index).
func Registry(factory, registryImplementation, deployer common.Address, index *big.Int) common.Address {
	initCode := ProxyCreationCode(registryImplementation, factory.Bytes())
	return Address(factory, RegistrySalt(deployer, index), crypto.Keccak256Hash(initCode))
}
