package factory_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/factory"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/derive"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

var (
	serviceA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	serviceB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

func setup(t *testing.T) (*chain.Ledger, *node.Stack) {
	t.Helper()
	l := chain.NewLedger(chain.Config{
		ChainID: big.NewInt(31337),
		Alloc:   map[common.Address]*uint256.Int{serviceA: uint256.NewInt(1)},
	})
	stack, err := node.DeployStack(context.Background(), l, serviceA, big.NewInt(0))
	require.NoError(t, err)
	return l, stack
}

func TestRegistryAddressIsDerived(t *testing.T) {
	_, stack := setup(t)
	f := stack.Factory

	impl, err := f.RegistryImplementation(nil)
	require.NoError(t, err)
	assert.Equal(t, stack.RegistryImplementation, impl)

	got, err := f.Registry(nil, serviceA, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, stack.Registry.Address(), got)
	assert.Equal(t, derive.Registry(f.Address(), impl, serviceA, big.NewInt(0)), got)

	other, err := f.Registry(nil, serviceB, big.NewInt(0))
	require.NoError(t, err)
	assert.NotEqual(t, got, other)
	next, err := f.Registry(nil, serviceA, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, got, next)
}

func TestCreateRegistryIsIdempotentPerDeployer(t *testing.T) {
	l, stack := setup(t)
	f := stack.Factory
	opts := &chain.TransactOpts{From: serviceB}

	first, receipt, err := f.CreateRegistry(opts, stack.AccountImplementation, big.NewInt(3))
	require.NoError(t, err)
	logs := f.FindLogs(receipt, "RegistryCreated")
	require.Len(t, logs, 1)
	ev, err := f.ParseRegistryCreated(logs[0])
	require.NoError(t, err)
	assert.Equal(t, first, ev.Registry)
	assert.Equal(t, stack.AccountImplementation, ev.Implementation)
	assert.Equal(t, serviceB, ev.Deployer)
	assert.Equal(t, int64(3), ev.Index.Int64())

	again, receipt, err := f.CreateRegistry(opts, stack.AccountImplementation, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Empty(t, f.FindLogs(receipt, "RegistryCreated"))

	reg := registry.NewRegistry(first, l)
	admin, err := reg.Owner(nil)
	require.NoError(t, err)
	assert.Equal(t, serviceB, admin)
	s, err := reg.Signer(nil)
	require.NoError(t, err)
	assert.Equal(t, verifier.RawKeySigner{Addr: serviceB}, s)
}

func TestRegistriesAreIsolated(t *testing.T) {
	l, stack := setup(t)
	addrB, _, err := stack.Factory.CreateRegistry(&chain.TransactOpts{From: serviceB}, stack.AccountImplementation, big.NewInt(0))
	require.NoError(t, err)
	regB := registry.NewRegistry(addrB, l)

	salt := common.HexToHash("0x42")
	a, err := stack.Registry.Account(nil, salt)
	require.NoError(t, err)
	b, err := regB.Account(nil, salt)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestConstructorRejectsMissingImplementation(t *testing.T) {
	l := chain.NewLedger(chain.Config{ChainID: big.NewInt(31337)})
	_, _, err := l.Deploy(context.Background(), serviceA, factory.Name, factory.New(), factory.Constructor(common.Address{}))
	assert.ErrorIs(t, err, factory.ErrInvalidRegistryImplementation)
}
