package verifier

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	now   uint64
	code  map[common.Address]int
	reply func(to common.Address, data []byte) ([]byte, error)
}

func (h *fakeHost) Time() uint64 { return h.now }

func (h *fakeHost) CodeSize(addr common.Address) int { return h.code[addr] }

func (h *fakeHost) StaticCall(to common.Address, data []byte) ([]byte, error) {
	if h.reply == nil {
		return nil, errors.New("no code")
	}
	return h.reply(to, data)
}

var (
	testDomain = Domain{ChainID: big.NewInt(31337), Registry: common.HexToAddress("0x5000000000000000000000000000000000000005")}
	testOwner  = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	testSalt   = crypto.Keccak256Hash([]byte("alice@example.com"))
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func authorize(t *testing.T, key *ecdsa.PrivateKey, owner common.Address, salt common.Hash, exp int64) Authorization {
	t.Helper()
	expiration := big.NewInt(exp)
	digest := testDomain.Digest(owner, salt, expiration)
	sig, err := Sign(digest, key)
	require.NoError(t, err)
	return Authorization{Owner: owner, Salt: salt, Expiration: expiration, Message: digest, Signature: sig}
}

func TestVerifyRawKey(t *testing.T) {
	key := newKey(t)
	signer := RawKeySigner{Addr: crypto.PubkeyToAddress(key.PublicKey)}
	host := &fakeHost{now: 1000}

	auth := authorize(t, key, testOwner, testSalt, 0)
	require.NoError(t, Verify(host, testDomain, signer, auth))

	// v in {0, 1} is accepted as well.
	auth.Signature[64] -= 27
	require.NoError(t, Verify(host, testDomain, signer, auth))
}

func TestVerifyBindsEveryField(t *testing.T) {
	key := newKey(t)
	signer := RawKeySigner{Addr: crypto.PubkeyToAddress(key.PublicKey)}
	host := &fakeHost{now: 1000}
	good := authorize(t, key, testOwner, testSalt, 5000)

	cases := map[string]func(a *Authorization){
		"owner": func(a *Authorization) { a.Owner = common.HexToAddress("0xdead") },
		"salt":  func(a *Authorization) { a.Salt = crypto.Keccak256Hash([]byte("mallory@example.com")) },
		"expiration": func(a *Authorization) {
			a.Expiration = big.NewInt(0)
		},
		"message":   func(a *Authorization) { a.Message = common.HexToHash("0x01") },
		"signature": func(a *Authorization) { a.Signature = append([]byte(nil), a.Signature[:64]...) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			auth := good
			auth.Signature = append([]byte(nil), good.Signature...)
			mutate(&auth)
			assert.ErrorIs(t, Verify(host, testDomain, signer, auth), ErrUnauthorized)
		})
	}
}

func TestVerifyRejectsOtherSignerAndDomain(t *testing.T) {
	key, other := newKey(t), newKey(t)
	signer := RawKeySigner{Addr: crypto.PubkeyToAddress(key.PublicKey)}
	host := &fakeHost{now: 1000}

	forged := authorize(t, other, testOwner, testSalt, 0)
	assert.ErrorIs(t, Verify(host, testDomain, signer, forged), ErrUnauthorized)

	auth := authorize(t, key, testOwner, testSalt, 0)
	otherChain := Domain{ChainID: big.NewInt(1), Registry: testDomain.Registry}
	assert.ErrorIs(t, Verify(host, otherChain, signer, auth), ErrUnauthorized)
	otherRegistry := Domain{ChainID: testDomain.ChainID, Registry: common.HexToAddress("0x6")}
	assert.ErrorIs(t, Verify(host, otherRegistry, signer, auth), ErrUnauthorized)

	assert.ErrorIs(t, Verify(host, testDomain, nil, auth), ErrUnauthorized)
	assert.ErrorIs(t, Verify(host, testDomain, RawKeySigner{}, auth), ErrUnauthorized)
}

func TestVerifyRejectsHighS(t *testing.T) {
	key := newKey(t)
	signer := RawKeySigner{Addr: crypto.PubkeyToAddress(key.PublicKey)}
	auth := authorize(t, key, testOwner, testSalt, 0)

	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(auth.Signature[32:64])
	highS := new(big.Int).Sub(n, s)
	malleable := make([]byte, 65)
	copy(malleable, auth.Signature[:32])
	copy(malleable[32:64], common.LeftPadBytes(highS.Bytes(), 32))
	malleable[64] = auth.Signature[64] ^ 1

	auth.Signature = malleable
	assert.ErrorIs(t, Verify(&fakeHost{}, testDomain, signer, auth), ErrUnauthorized)
}

func TestExpirationBoundary(t *testing.T) {
	key := newKey(t)
	signer := RawKeySigner{Addr: crypto.PubkeyToAddress(key.PublicKey)}
	auth := authorize(t, key, testOwner, testSalt, 2000)

	assert.NoError(t, Verify(&fakeHost{now: 1999}, testDomain, signer, auth))
	assert.ErrorIs(t, Verify(&fakeHost{now: 2000}, testDomain, signer, auth), ErrUnauthorized)
	assert.ErrorIs(t, Verify(&fakeHost{now: 2001}, testDomain, signer, auth), ErrUnauthorized)

	never := authorize(t, key, testOwner, testSalt, 0)
	assert.NoError(t, Verify(&fakeHost{now: 1 << 62}, testDomain, signer, never))
}

func TestVerifyDelegated(t *testing.T) {
	wallet := common.HexToAddress("0x7000000000000000000000000000000000000007")
	key := newKey(t)
	auth := authorize(t, key, testOwner, testSalt, 0)
	signer := DelegatedSigner{Addr: wallet}

	var seen []byte
	host := &fakeHost{
		now:  1000,
		code: map[common.Address]int{wallet: 45},
		reply: func(to common.Address, data []byte) ([]byte, error) {
			seen = data
			return common.RightPadBytes(ERC1271MagicValue[:], 32), nil
		},
	}
	require.NoError(t, Verify(host, testDomain, signer, auth))
	want, err := EncodeIsValidSignature(auth.Message, auth.Signature)
	require.NoError(t, err)
	assert.Equal(t, want, seen)

	host.reply = func(common.Address, []byte) ([]byte, error) {
		return common.RightPadBytes(ERC1271InvalidValue[:], 32), nil
	}
	assert.ErrorIs(t, Verify(host, testDomain, signer, auth), ErrUnauthorized)

	host.reply = func(common.Address, []byte) ([]byte, error) { return nil, errors.New("reverted") }
	assert.ErrorIs(t, Verify(host, testDomain, signer, auth), ErrUnauthorized)

	delete(host.code, wallet)
	host.reply = func(common.Address, []byte) ([]byte, error) {
		return common.RightPadBytes(ERC1271MagicValue[:], 32), nil
	}
	assert.ErrorIs(t, Verify(host, testDomain, signer, auth), ErrUnauthorized)
}

func TestIsValidSignatureNow(t *testing.T) {
	key := newKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	hash := crypto.Keccak256Hash([]byte("payload"))
	sig, err := Sign(hash, key)
	require.NoError(t, err)

	host := &fakeHost{}
	assert.True(t, IsValidSignatureNow(host, addr, hash, sig))
	assert.False(t, IsValidSignatureNow(host, addr, crypto.Keccak256Hash([]byte("other")), sig))
	assert.False(t, IsValidSignatureNow(host, common.Address{}, hash, sig))
}

func TestSignerEncoding(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	for _, s := range []Signer{RawKeySigner{Addr: addr}, DelegatedSigner{Addr: addr}} {
		got, err := DecodeSigner(EncodeSigner(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	word := EncodeSigner(DelegatedSigner{Addr: addr})
	assert.Equal(t, byte(KindDelegated), word[0])
	assert.Equal(t, addr.Bytes(), word[12:])

	none, err := DecodeSigner(common.Hash{})
	require.NoError(t, err)
	assert.Nil(t, none)

	word[0] = 9
	_, err = DecodeSigner(word)
	assert.Error(t, err)

	assert.Equal(t, KindDelegated, ProbeSigner(addr, 10).Kind())
	assert.Equal(t, KindRawKey, ProbeSigner(addr, 0).Kind())
}
