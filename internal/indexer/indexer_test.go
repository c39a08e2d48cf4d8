package indexer_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/indexer"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/store/sqlite"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

func TestDecodeUnknownLog(t *testing.T) {
	_, ok, err := indexer.Decode(&types.Log{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Other()"))}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = indexer.Decode(&types.Log{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexerFollowsLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	service := crypto.PubkeyToAddress(key.PublicKey)

	l := chain.NewLedger(chain.Config{ChainID: big.NewInt(31337)})
	stack, err := node.DeployStack(ctx, l, service, big.NewInt(0))
	require.NoError(t, err)

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	ix := indexer.New(l, db)
	ix.RetryDelay = 10 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	// Events committed before Run are backfilled.
	setupHead := l.Head().Number
	require.Eventually(t, func() bool { return ix.Head() >= setupHead }, 5*time.Second, 10*time.Millisecond)
	all, err := db.ListEvents(ctx, l.Genesis(), common.Address{})
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, ev := range all {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "RegistryCreated")
	assert.Contains(t, names, "SignerUpdated")

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	salt := common.HexToHash("0x51")
	digest, err := stack.Registry.AuthorizationDigest(nil, owner, salt, nil)
	require.NoError(t, err)
	sig, err := verifier.Sign(digest, key)
	require.NoError(t, err)

	acct, receipt, err := stack.Registry.AssignAccount(&chain.TransactOpts{From: owner}, registry.Assignment{
		Authorization: verifier.Authorization{Owner: owner, Salt: salt, Message: digest, Signature: sig},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ix.Head() >= receipt.BlockNumber }, 5*time.Second, 10*time.Millisecond)
	evs, err := db.ListEvents(ctx, l.Genesis(), acct)
	require.NoError(t, err)
	got := make([]string, 0, len(evs))
	for _, ev := range evs {
		got = append(got, ev.Name)
	}
	assert.Equal(t, []string{"AccountCreated", "OwnerUpdated", "AccountAssigned"}, got)
	assert.Equal(t, salt.Hex(), evs[0].Fields["salt"])
	assert.Equal(t, owner.Hex(), evs[2].Fields["owner"])
	assert.Equal(t, stack.Registry.Address(), evs[2].Contract)
	assert.Equal(t, acct, evs[1].Contract)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
}
