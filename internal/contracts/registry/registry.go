// Package registry maps service salts to deterministic account clones and
// hands ownership of a clone to whoever presents an authorization signed by
// the registry's signer.
//
// Per salt the registry has two states, Unset and Deployed, derived from
// whether code exists at the salt's address. The only transition is
// Unset -> Deployed; it happens on the first createAccount or assignAccount
// and commits together with the instance's one-time initialization or not at
// all.
package registry

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/derive"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

var (
	ErrInitializationFailed  = errors.New("registry: account initialization failed")
	ErrInvalidImplementation = errors.New("registry: invalid implementation")
	ErrUnauthorized          = verifier.ErrUnauthorized
	ErrNotAdmin              = errors.New("registry: caller is not the admin")
	ErrNotFactory            = errors.New("registry: caller is not the deploying factory")
	ErrAlreadyInitialized    = errors.New("registry: already initialized")
	ErrInvalidOwner          = errors.New("registry: invalid owner")
)

var (
	slotImplementation = crypto.Keccak256Hash([]byte("registry.implementation"))
	slotSigner         = crypto.Keccak256Hash([]byte("registry.signer"))
	slotAdmin          = crypto.Keccak256Hash([]byte("registry.admin"))
	slotInitialized    = crypto.Keccak256Hash([]byte("registry.initialized"))
)

const Name = "account-registry"

// New returns the registry implementation. Registries are used through
// clones created by the factory.
func New() *chain.Native {
	return chain.NewNative(ABI, map[string]chain.Method{
		"initialize":          initialize,
		"account":             accountAddress,
		"createAccount":       createAccount,
		"assignAccount":       assignAccount,
		"setSigner":           setSigner,
		"transferOwnership":   transferOwnership,
		"implementation":      implementation,
		"signer":              signer,
		"owner":               owner,
		"factory":             factory,
		"authorizationDigest": authorizationDigest,
	}, nil)
}

func readAddress(env *chain.Env, slot common.Hash) common.Address {
	return common.BytesToAddress(env.GetState(slot).Bytes())
}

func writeAddress(env *chain.Env, slot common.Hash, addr common.Address) error {
	return env.SetState(slot, common.BytesToHash(addr.Bytes()))
}

func factoryOf(env *chain.Env) common.Address {
	args := env.CloneArgs()
	if len(args) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(args[:common.AddressLength])
}

func domainOf(env *chain.Env) verifier.Domain {
	return verifier.Domain{ChainID: env.ChainID(), Registry: env.Self()}
}

func onlyAdmin(env *chain.Env) error {
	admin := readAddress(env, slotAdmin)
	if admin == (common.Address{}) || env.Caller() != admin {
		return ErrNotAdmin
	}
	return nil
}

func initialize(env *chain.Env, args []interface{}) ([]interface{}, error) {
	impl := args[0].(common.Address)
	signerAddr := args[1].(common.Address)
	admin := args[2].(common.Address)

	f := factoryOf(env)
	if f == (common.Address{}) || env.Caller() != f {
		return nil, ErrNotFactory
	}
	if env.GetState(slotInitialized) != (common.Hash{}) {
		return nil, ErrAlreadyInitialized
	}
	if admin == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	if err := env.SetState(slotInitialized, common.BytesToHash([]byte{1})); err != nil {
		return nil, err
	}
	if err := writeAddress(env, slotImplementation, impl); err != nil {
		return nil, err
	}
	if err := storeSigner(env, signerAddr); err != nil {
		return nil, err
	}
	if err := writeAddress(env, slotAdmin, admin); err != nil {
		return nil, err
	}
	return nil, env.EmitEvent(ABI.Events["OwnershipTransferred"], common.Address{}, admin)
}

func accountAddress(env *chain.Env, args []interface{}) ([]interface{}, error) {
	salt := common.Hash(args[0].([32]byte))
	impl := readAddress(env, slotImplementation)
	return []interface{}{derive.Account(env.Self(), impl, salt)}, nil
}

// deploy moves salt from Unset to Deployed. On Deployed it returns the
// existing address and reports created as false.
func deploy(env *chain.Env, salt common.Hash) (addr common.Address, created bool, err error) {
	impl := readAddress(env, slotImplementation)
	addr = derive.Account(env.Self(), impl, salt)
	if env.CodeSize(addr) > 0 {
		return addr, false, nil
	}
	if impl == (common.Address{}) || env.CodeSize(impl) == 0 {
		return common.Address{}, false, ErrInvalidImplementation
	}

	initCode := derive.ProxyCreationCode(impl, env.Self().Bytes())
	got, err := env.Create2(nil, derive.AccountSalt(salt), initCode)
	if err != nil {
		return common.Address{}, false, errors.Wrap(err, "deploy account")
	}
	if got != addr {
		return common.Address{}, false, errors.AssertionFailedf("deployed %s, derived %s", got.Hex(), addr.Hex())
	}
	if err := env.EmitEvent(ABI.Events["AccountCreated"], addr, impl, salt); err != nil {
		return common.Address{}, false, err
	}
	return addr, true, nil
}

func createAccount(env *chain.Env, args []interface{}) ([]interface{}, error) {
	salt := common.Hash(args[0].([32]byte))
	addr, _, err := deploy(env, salt)
	if err != nil {
		return nil, err
	}
	return []interface{}{addr}, nil
}

func assignAccount(env *chain.Env, args []interface{}) ([]interface{}, error) {
	auth := verifier.Authorization{
		Owner:      args[0].(common.Address),
		Salt:       common.Hash(args[1].([32]byte)),
		Expiration: args[2].(*big.Int),
		Message:    common.Hash(args[3].([32]byte)),
		Signature:  args[4].([]byte),
	}
	initData := args[5].([]byte)

	current, err := loadSigner(env)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if err := verifier.Verify(env, domainOf(env), current, auth); err != nil {
		return nil, err
	}

	addr, created, err := deploy(env, auth.Salt)
	if err != nil {
		return nil, err
	}
	if created {
		if len(initData) == 0 {
			initData = account.EncodeInitialize(auth.Owner)
		}
		if err := initializeAccount(env, addr, auth.Owner, initData); err != nil {
			return nil, err
		}
	} else {
		// An instance deployed through createAccount has no owner yet; the
		// first valid assignment completes its ownership. initData is only
		// ever applied on the deployment edge.
		owner, err := accountOwner(env, addr)
		if err != nil {
			return nil, errors.Mark(err, ErrInitializationFailed)
		}
		if owner == (common.Address{}) {
			if err := initializeAccount(env, addr, auth.Owner, account.EncodeInitialize(auth.Owner)); err != nil {
				return nil, err
			}
		}
	}

	if err := env.EmitEvent(ABI.Events["AccountAssigned"], addr, auth.Owner); err != nil {
		return nil, err
	}
	return []interface{}{addr}, nil
}

// initializeAccount applies the one-time setup call and requires it to leave
// the signed owner in control. initData is not covered by the signature, so
// the postcondition is what keeps a front-runner from redirecting ownership.
func initializeAccount(env *chain.Env, addr, owner common.Address, initData []byte) error {
	if _, err := env.Call(addr, nil, initData); err != nil {
		return errors.Wrap(errors.Mark(err, ErrInitializationFailed), "initialize account")
	}
	got, err := accountOwner(env, addr)
	if err != nil {
		return errors.Wrap(errors.Mark(err, ErrInitializationFailed), "read account owner")
	}
	if got != owner {
		return errors.Wrapf(ErrInitializationFailed, "owner is %s, authorized %s", got.Hex(), owner.Hex())
	}
	return nil
}

func accountOwner(env *chain.Env, addr common.Address) (common.Address, error) {
	input, err := account.ABI.Pack("owner")
	if err != nil {
		return common.Address{}, err
	}
	ret, err := env.StaticCall(addr, input)
	if err != nil {
		return common.Address{}, err
	}
	out, err := account.ABI.Unpack("owner", ret)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func loadSigner(env *chain.Env) (verifier.Signer, error) {
	return verifier.DecodeSigner(env.GetState(slotSigner))
}

// storeSigner replaces the signer and its kind in one write. The kind is
// probed from the code at addr now and not re-evaluated later.
func storeSigner(env *chain.Env, addr common.Address) error {
	s := verifier.ProbeSigner(addr, env.CodeSize(addr))
	if err := env.SetState(slotSigner, verifier.EncodeSigner(s)); err != nil {
		return err
	}
	return env.EmitEvent(ABI.Events["SignerUpdated"], addr, s.Kind() == verifier.KindDelegated)
}

func setSigner(env *chain.Env, args []interface{}) ([]interface{}, error) {
	if err := onlyAdmin(env); err != nil {
		return nil, err
	}
	return nil, storeSigner(env, args[0].(common.Address))
}

func transferOwnership(env *chain.Env, args []interface{}) ([]interface{}, error) {
	next := args[0].(common.Address)
	if err := onlyAdmin(env); err != nil {
		return nil, err
	}
	if next == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	prev := readAddress(env, slotAdmin)
	if err := writeAddress(env, slotAdmin, next); err != nil {
		return nil, err
	}
	return nil, env.EmitEvent(ABI.Events["OwnershipTransferred"], prev, next)
}

func implementation(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{readAddress(env, slotImplementation)}, nil
}

func signer(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	s, err := loadSigner(env)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return []interface{}{common.Address{}, false}, nil
	}
	return []interface{}{s.Address(), s.Kind() == verifier.KindDelegated}, nil
}

func owner(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{readAddress(env, slotAdmin)}, nil
}

func factory(env *chain.Env, _ []interface{}) ([]interface{}, error) {
	return []interface{}{factoryOf(env)}, nil
}

func authorizationDigest(env *chain.Env, args []interface{}) ([]interface{}, error) {
	digest := domainOf(env).Digest(
		args[0].(common.Address),
		common.Hash(args[1].([32]byte)),
		args[2].(*big.Int),
	)
	return []interface{}{digest}, nil
}
