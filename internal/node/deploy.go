package node

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/contracts/factory"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
)

// Stack is the set of contracts one service runs against.
type Stack struct {
	AccountImplementation  common.Address
	RegistryImplementation common.Address
	Factory                *factory.Factory
	Registry               *registry.Registry
}

// DeployStack installs the account and registry implementations and the
// factory, then has deployer create its registry at index. deployer becomes
// the registry's admin and initial signer.
func DeployStack(
	ctx context.Context,
	l *chain.Ledger,
	deployer common.Address,
	index *big.Int,
) (*Stack, error) {

	if l == nil {
		return nil, fmt.Errorf("deploy: missing ledger")
	}
	if deployer == (common.Address{}) {
		return nil, fmt.Errorf("deploy: missing deployer")
	}

	accountImpl, _, err := l.Deploy(ctx, deployer, account.Name, account.New(), nil)
	if err != nil {
		return nil, fmt.Errorf("deploy account implementation: %w", err)
	}

	registryImpl, _, err := l.Deploy(ctx, deployer, registry.Name, registry.New(), nil)
	if err != nil {
		return nil, fmt.Errorf("deploy registry implementation: %w", err)
	}

	factoryAddr, _, err := l.Deploy(ctx, deployer, factory.Name, factory.New(), factory.Constructor(registryImpl))
	if err != nil {
		return nil, fmt.Errorf("deploy registry factory: %w", err)
	}

	f := factory.NewFactory(factoryAddr, l)
	registryAddr, _, err := f.CreateRegistry(&chain.TransactOpts{From: deployer, Context: ctx}, accountImpl, index)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	log.Info("contracts deployed",
		"account_impl", accountImpl.Hex(),
		"registry_impl", registryImpl.Hex(),
		"factory", factoryAddr.Hex(),
		"registry", registryAddr.Hex(),
	)

	return &Stack{
		AccountImplementation:  accountImpl,
		RegistryImplementation: registryImpl,
		Factory:                f,
		Registry:               registry.NewRegistry(registryAddr, l),
	}, nil
}
