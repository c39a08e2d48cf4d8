package node_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/account-registry/internal/authz"
	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/store/sqlite"
	"github.com/quantumauth-io/account-registry/internal/verifier"
	"github.com/quantumauth-io/account-registry/internal/wallet"
)

func TestNewRequiresDependencies(t *testing.T) {
	_, err := node.New(context.Background(), node.Config{})
	assert.Error(t, err)

	w, err := wallet.Generate()
	require.NoError(t, err)
	_, err = node.New(context.Background(), node.Config{Signer: w})
	assert.Error(t, err)
}

func TestNodeIssuesAndIndexes(t *testing.T) {
	ctx := context.Background()
	w, err := wallet.Generate()
	require.NoError(t, err)
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	defer db.Close()

	n, err := node.New(ctx, node.Config{
		ChainID:          big.NewInt(31337),
		AuthorizationTTL: time.Hour,
		Signer:           w,
		Storage:          db,
	})
	require.NoError(t, err)
	n.Start(ctx)
	defer n.Stop()

	s, err := n.Stack.Registry.Signer(nil)
	require.NoError(t, err)
	assert.Equal(t, verifier.RawKeySigner{Addr: w.Address()}, s)

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	salt, err := authz.CredentialSalt("carol@example.com")
	require.NoError(t, err)
	issued, err := n.Issuer.Issue(ctx, authz.Request{Owner: owner, Salt: salt})
	require.NoError(t, err)

	acct, receipt, err := n.Stack.Registry.AssignAccount(&chain.TransactOpts{From: n.Signer}, issued.Assignment(nil))
	require.NoError(t, err)
	got, err := account.NewAccount(acct, n.Ledger).Owner(nil)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	require.Eventually(t, func() bool { return n.Indexer.Head() >= receipt.BlockNumber }, 5*time.Second, 10*time.Millisecond)
	evs, err := db.ListEvents(ctx, n.Ledger.Genesis(), acct)
	require.NoError(t, err)
	assert.NotEmpty(t, evs)

	recs, err := db.ListAuthorizations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, issued.ID, recs[0].ID)
}

func TestRestartOnSameStorageIndexesNewLedger(t *testing.T) {
	ctx := context.Background()
	w, err := wallet.Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "node.db")

	createOn := func(salt common.Hash) (*node.Node, common.Address, func()) {
		db, err := sqlite.Open(ctx, path)
		require.NoError(t, err)
		n, err := node.New(ctx, node.Config{ChainID: big.NewInt(31337), Signer: w, Storage: db})
		require.NoError(t, err)
		n.Start(ctx)

		acct, receipt, err := n.Stack.Registry.CreateAccount(&chain.TransactOpts{From: n.Signer}, salt)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return n.Indexer.Head() >= receipt.BlockNumber }, 5*time.Second, 10*time.Millisecond)
		return n, acct, func() {
			n.Stop()
			_ = db.Close()
		}
	}

	first, firstAcct, stop := createOn(common.HexToHash("0xa1"))
	stop()

	second, secondAcct, stop := createOn(common.HexToHash("0xb2"))
	defer stop()
	require.NotEqual(t, first.Ledger.Genesis(), second.Ledger.Genesis())
	require.NotEqual(t, firstAcct, secondAcct)

	evs, err := second.Storage.ListEvents(ctx, second.Ledger.Genesis(), secondAcct)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "AccountCreated", evs[0].Name)

	stale, err := second.Storage.ListEvents(ctx, second.Ledger.Genesis(), firstAcct)
	require.NoError(t, err)
	assert.Empty(t, stale)

	last, err := second.Storage.LastBlock(ctx, second.Ledger.Genesis())
	require.NoError(t, err)
	assert.Equal(t, second.Ledger.Head().Number, last)
}
