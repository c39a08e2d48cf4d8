package authz_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/account-registry/internal/authz"
	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/account"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/node"
	"github.com/quantumauth-io/account-registry/internal/store"
	"github.com/quantumauth-io/account-registry/internal/wallet"
)

const genesisTime = 1_700_000_000

type memRecords struct {
	mu   sync.Mutex
	recs []store.Authorization
	fail error
}

func (m *memRecords) InsertAuthorization(_ context.Context, a store.Authorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.recs = append(m.recs, a)
	return nil
}

func (m *memRecords) GetAuthorization(_ context.Context, id string) (store.Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Authorization{}, store.ErrNotFound
}

func (m *memRecords) ListAuthorizations(_ context.Context, owner common.Address) ([]store.Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Authorization
	for _, r := range m.recs {
		if owner == (common.Address{}) || r.Owner == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

type fixture struct {
	ledger  *chain.Ledger
	clock   *clock.Mock
	stack   *node.Stack
	wallet  *wallet.Wallet
	records *memRecords
	issuer  *authz.Issuer
}

func setup(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Unix(genesisTime, 0))
	l := chain.NewLedger(chain.Config{ChainID: big.NewInt(31337), Clock: mock})
	stack, err := node.DeployStack(context.Background(), l, w.Address(), big.NewInt(0))
	require.NoError(t, err)

	recs := &memRecords{}
	return &fixture{
		ledger:  l,
		clock:   mock,
		stack:   stack,
		wallet:  w,
		records: recs,
		issuer:  authz.NewIssuer(stack.Registry, w, recs, authz.Config{TTL: ttl, Clock: mock}),
	}
}

func TestCredentialSalt(t *testing.T) {
	a, err := authz.CredentialSalt("Alice@Example.com")
	require.NoError(t, err)
	b, err := authz.CredentialSalt("  alice@example.com\n")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := authz.CredentialSalt("bob@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = authz.CredentialSalt("   ")
	assert.ErrorIs(t, err, authz.ErrInvalidCredential)
}

func TestIssuedAuthorizationAssigns(t *testing.T) {
	f := setup(t, 10*time.Minute)
	ctx := context.Background()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	salt, err := authz.CredentialSalt("alice@example.com")
	require.NoError(t, err)

	issued, err := f.issuer.Issue(ctx, authz.Request{Owner: owner, Salt: salt})
	require.NoError(t, err)
	assert.Equal(t, int64(genesisTime+600), issued.Expiration.Int64())
	assert.Equal(t, f.stack.Registry.Address(), issued.Registry)
	assert.Equal(t, f.wallet.Address(), issued.Signer)

	relayer := common.HexToAddress("0x000000000000000000000000000000000000beef")
	addr, _, err := f.stack.Registry.AssignAccount(&chain.TransactOpts{From: relayer}, issued.Assignment(nil))
	require.NoError(t, err)

	expected, err := f.stack.Registry.Account(nil, salt)
	require.NoError(t, err)
	assert.Equal(t, expected, addr)

	got, err := account.NewAccount(addr, f.ledger).Owner(nil)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	recs, err := f.records.ListAuthorizations(ctx, owner)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, issued.ID, recs[0].ID)
	assert.Equal(t, issued.Message, recs[0].Digest)
}

func TestIssuedAuthorizationExpires(t *testing.T) {
	f := setup(t, time.Minute)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	issued, err := f.issuer.Issue(context.Background(), authz.Request{Owner: owner, Salt: common.HexToHash("0x01")})
	require.NoError(t, err)

	f.clock.Add(time.Minute)
	_, _, err = f.stack.Registry.AssignAccount(&chain.TransactOpts{From: owner}, issued.Assignment(nil))
	assert.ErrorIs(t, err, registry.ErrUnauthorized)
}

func TestIssueWithoutTTLNeverExpires(t *testing.T) {
	f := setup(t, 0)
	issued, err := f.issuer.Issue(context.Background(), authz.Request{
		Owner: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Salt:  common.HexToHash("0x02"),
	})
	require.NoError(t, err)
	assert.Zero(t, issued.Expiration.Sign())
}

func TestIssueRejects(t *testing.T) {
	f := setup(t, time.Minute)
	ctx := context.Background()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	_, err := f.issuer.Issue(ctx, authz.Request{Salt: common.HexToHash("0x01")})
	assert.ErrorIs(t, err, authz.ErrInvalidOwner)

	_, err = f.issuer.Issue(ctx, authz.Request{Owner: owner, Expiration: big.NewInt(genesisTime)})
	assert.ErrorIs(t, err, authz.ErrInvalidExpiration)

	_, err = f.issuer.Issue(ctx, authz.Request{Owner: owner, Expiration: big.NewInt(-1)})
	assert.ErrorIs(t, err, authz.ErrInvalidExpiration)

	boom := errors.New("disk full")
	f.records.fail = boom
	_, err = f.issuer.Issue(ctx, authz.Request{Owner: owner})
	assert.ErrorIs(t, err, boom)
}

func TestIssueRefusesAfterSignerRotation(t *testing.T) {
	f := setup(t, time.Minute)
	ctx := context.Background()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	next, err := wallet.Generate()
	require.NoError(t, err)
	_, err = f.stack.Registry.SetSigner(&chain.TransactOpts{From: f.wallet.Address()}, next.Address())
	require.NoError(t, err)

	_, err = f.issuer.Issue(ctx, authz.Request{Owner: owner, Salt: common.HexToHash("0x03")})
	assert.ErrorIs(t, err, authz.ErrNotRegistrySigner)
	assert.Empty(t, f.records.recs, "nothing is recorded for a refused issuance")

	// Rotating back restores issuance.
	_, err = f.stack.Registry.SetSigner(&chain.TransactOpts{From: f.wallet.Address()}, f.wallet.Address())
	require.NoError(t, err)
	issued, err := f.issuer.Issue(ctx, authz.Request{Owner: owner, Salt: common.HexToHash("0x03")})
	require.NoError(t, err)
	_, _, err = f.stack.Registry.AssignAccount(&chain.TransactOpts{From: owner}, issued.Assignment(nil))
	assert.NoError(t, err)
}
