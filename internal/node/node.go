package node

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/account-registry/internal/authz"
	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/indexer"
	"github.com/quantumauth-io/account-registry/internal/store"
)

// Storage is everything the node persists.
type Storage interface {
	store.Authorizations
	store.Events
}

type Config struct {
	ChainID *big.Int
	Alloc   map[common.Address]*uint256.Int
	Clock   clock.Clock

	// RegistryIndex selects which of the signer's registries this node serves.
	RegistryIndex *big.Int
	// AuthorizationTTL is the default lifetime of issued authorizations.
	AuthorizationTTL time.Duration

	Signer  authz.HashSigner
	Storage Storage
}

// Node is a running ledger with this service's registry deployed on it.
type Node struct {
	Ledger  *chain.Ledger
	Stack   *Stack
	Issuer  *authz.Issuer
	Indexer *indexer.Indexer
	Storage Storage
	Signer  common.Address

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("node: missing signer")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("node: missing storage")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	l := chain.NewLedger(chain.Config{
		ChainID: cfg.ChainID,
		Clock:   clk,
		Alloc:   cfg.Alloc,
	})

	ix := indexer.New(l, cfg.Storage)

	signer := cfg.Signer.Address()
	stack, err := DeployStack(ctx, l, signer, cfg.RegistryIndex)
	if err != nil {
		return nil, err
	}

	log.Info("node ready",
		"chain_id", l.ChainID().String(),
		"signer", signer.Hex(),
		"registry", stack.Registry.Address().Hex(),
	)

	return &Node{
		Ledger:  l,
		Stack:   stack,
		Issuer:  authz.NewIssuer(stack.Registry, cfg.Signer, cfg.Storage, authz.Config{TTL: cfg.AuthorizationTTL, Clock: clk}),
		Indexer: ix,
		Storage: cfg.Storage,
		Signer:  signer,
	}, nil
}

// Start runs the indexer in the background until Stop or ctx is done.
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Indexer.Run(ctx); err != nil {
			log.Error("indexer stopped", "error", err)
		}
	}()
}

func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}
