// Package verifier checks that an account assignment was authorized by the
// registry's signer.
//
// The signed payload is a versioned, domain separated digest:
//
//	inner  = keccak256(abi.encode(typeHash, chainId, registry, owner, salt, expiration))
//	digest = keccak256("\x19Ethereum Signed Message:\n32" ++ inner)
//
// Binding chainId and the registry address keeps an authorization from being
// replayed on another chain or against another service's registry.
package verifier

import (
	"bytes"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnauthorized is returned for every verification failure. Callers get no
// hint about which check failed.
var ErrUnauthorized = errors.New("unauthorized")

var (
	// AuthorizationTypeHash versions the digest layout.
	AuthorizationTypeHash = crypto.Keccak256Hash([]byte("AccountRegistry.Authorization.v1"))

	// ERC1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
	ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
	// ERC1271InvalidValue is what a conforming contract returns on rejection.
	ERC1271InvalidValue = [4]byte{0xff, 0xff, 0xff, 0xff}
)

const erc1271ABIJSON = `[{"type":"function","name":"isValidSignature","stateMutability":"view",
	"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
	"outputs":[{"name":"magicValue","type":"bytes4"}]}]`

var erc1271ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc1271ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Host is the view of the ledger verification needs.
type Host interface {
	Time() uint64
	CodeSize(addr common.Address) int
	StaticCall(to common.Address, data []byte) ([]byte, error)
}

// Domain scopes a digest to one registry on one chain.
type Domain struct {
	ChainID  *big.Int
	Registry common.Address
}

// Authorization is the evidence presented with an assignment request.
type Authorization struct {
	Owner      common.Address
	Salt       common.Hash
	Expiration *big.Int
	Message    common.Hash
	Signature  []byte
}

// Digest returns the canonical digest the signer signs for (owner, salt,
// expiration). A nil expiration is treated as 0, meaning it never expires.
func (d Domain) Digest(owner common.Address, salt common.Hash, expiration *big.Int) common.Hash {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	if expiration == nil {
		expiration = new(big.Int)
	}
	inner := crypto.Keccak256(
		AuthorizationTypeHash.Bytes(),
		math.U256Bytes(new(big.Int).Set(chainID)),
		common.LeftPadBytes(d.Registry.Bytes(), 32),
		common.LeftPadBytes(owner.Bytes(), 32),
		salt.Bytes(),
		math.U256Bytes(new(big.Int).Set(expiration)),
	)
	return common.BytesToHash(accounts.TextHash(inner))
}

// Verify accepts auth only if its message is the canonical digest of its
// fields, the signature is valid for signer, and it has not expired.
func Verify(host Host, domain Domain, signer Signer, auth Authorization) error {
	if signer == nil || signer.Address() == (common.Address{}) {
		return ErrUnauthorized
	}
	if auth.Expiration != nil && auth.Expiration.Sign() < 0 {
		return ErrUnauthorized
	}
	digest := domain.Digest(auth.Owner, auth.Salt, auth.Expiration)
	if auth.Message != digest {
		return ErrUnauthorized
	}

	var ok bool
	switch s := signer.(type) {
	case RawKeySigner:
		ok = recoversTo(digest, auth.Signature, s.Addr)
	case DelegatedSigner:
		ok = isValidERC1271(host, s.Addr, digest, auth.Signature)
	}
	if !ok {
		return ErrUnauthorized
	}

	if Expired(auth.Expiration, host.Time()) {
		return ErrUnauthorized
	}
	return nil
}

// Expired reports whether a non-zero expiration is at or before now.
func Expired(expiration *big.Int, now uint64) bool {
	if expiration == nil || expiration.Sign() == 0 {
		return false
	}
	return new(big.Int).SetUint64(now).Cmp(expiration) >= 0
}

// IsValidSignatureNow checks sig over hash for signer: through ERC-1271 when
// signer has code, otherwise through ecrecover.
func IsValidSignatureNow(host Host, signer common.Address, hash common.Hash, sig []byte) bool {
	if host.CodeSize(signer) > 0 {
		return isValidERC1271(host, signer, hash, sig)
	}
	return recoversTo(hash, sig, signer)
}

// Recover returns the address that produced sig over hash. sig is r ++ s ++ v
// with v in {0, 1, 27, 28}; high-s signatures are rejected.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Newf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	v := normalized[crypto.RecoveryIDOffset]
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, errors.New("invalid signature values")
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a 65-byte signature over hash with v in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func recoversTo(hash common.Hash, sig []byte, want common.Address) bool {
	if want == (common.Address{}) {
		return false
	}
	got, err := Recover(hash, sig)
	return err == nil && got == want
}

// EncodeIsValidSignature returns calldata for isValidSignature(hash, sig).
func EncodeIsValidSignature(hash common.Hash, sig []byte) ([]byte, error) {
	return erc1271ABI.Pack("isValidSignature", hash, sig)
}

func isValidERC1271(host Host, signer common.Address, hash common.Hash, sig []byte) bool {
	if host.CodeSize(signer) == 0 {
		return false
	}
	data, err := EncodeIsValidSignature(hash, sig)
	if err != nil {
		return false
	}
	ret, err := host.StaticCall(signer, data)
	if err != nil || len(ret) < 32 {
		return false
	}
	// A bytes4 return is left aligned and zero padded.
	return bytes.Equal(ret[:4], ERC1271MagicValue[:]) && bytes.Equal(ret[4:32], make([]byte, 28))
}
