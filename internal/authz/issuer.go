// Package authz issues the signed authorizations that let a relayer assign an
// account to its owner.
package authz

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/contracts/registry"
	"github.com/quantumauth-io/account-registry/internal/store"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

var (
	ErrInvalidOwner      = errors.New("authz: owner is required")
	ErrInvalidCredential = errors.New("authz: credential is required")
	ErrInvalidExpiration = errors.New("authz: expiration already passed")
	// ErrNotRegistrySigner means the registry no longer accepts this
	// issuer's key, so anything it signed would be rejected on assignment.
	ErrNotRegistrySigner = errors.New("authz: issuing key is not the registry signer")
)

// CredentialSalt maps an off-chain credential, such as an email address, to
// the salt its account lives at. Case and surrounding space are ignored.
func CredentialSalt(credential string) (common.Hash, error) {
	normalized := strings.ToLower(strings.TrimSpace(credential))
	if normalized == "" {
		return common.Hash{}, ErrInvalidCredential
	}
	return crypto.Keccak256Hash([]byte(normalized)), nil
}

// HashSigner signs 32-byte digests. *wallet.Wallet implements it.
type HashSigner interface {
	Address() common.Address
	SignHash(ctx context.Context, digest common.Hash) ([]byte, error)
}

type Config struct {
	// TTL is how long an issued authorization stays valid when the request
	// does not name an expiration. Zero issues non-expiring authorizations.
	TTL   time.Duration
	Clock clock.Clock
}

type Issuer struct {
	registry *registry.Registry
	signer   HashSigner
	records  store.Authorizations
	ttl      time.Duration
	clock    clock.Clock
}

func NewIssuer(reg *registry.Registry, signer HashSigner, records store.Authorizations, cfg Config) *Issuer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{
		registry: reg,
		signer:   signer,
		records:  records,
		ttl:      cfg.TTL,
		clock:    clk,
	}
}

type Request struct {
	Owner common.Address
	Salt  common.Hash
	// Expiration overrides the configured TTL when set. Zero never expires.
	Expiration *big.Int
}

// Issued is a signed authorization ready to be relayed.
type Issued struct {
	ID string
	verifier.Authorization
	Registry common.Address
	Signer   common.Address
	IssuedAt time.Time
}

// Assignment is the assignAccount argument list for this authorization.
func (i *Issued) Assignment(initData []byte) registry.Assignment {
	return registry.Assignment{Authorization: i.Authorization, InitData: initData}
}

// Issue signs the registry's digest for req and records it.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Issued, error) {
	if req.Owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}

	now := i.clock.Now()
	exp := req.Expiration
	if exp == nil {
		exp = new(big.Int)
		if i.ttl > 0 {
			exp.SetInt64(now.Add(i.ttl).Unix())
		}
	}
	if exp.Sign() < 0 || verifier.Expired(exp, uint64(now.Unix())) {
		return nil, ErrInvalidExpiration
	}

	opts := &chain.CallOpts{Context: ctx}
	current, err := i.registry.Signer(opts)
	if err != nil {
		return nil, errors.Wrap(err, "registry signer")
	}
	if current == nil || current.Kind() != verifier.KindRawKey || current.Address() != i.signer.Address() {
		log.Warn("refusing to issue authorization",
			"issuer", i.signer.Address().Hex(),
			"registry_signer", signerString(current),
		)
		return nil, errors.WithDetailf(ErrNotRegistrySigner, "registry signer is %s", signerString(current))
	}

	digest, err := i.registry.AuthorizationDigest(opts, req.Owner, req.Salt, exp)
	if err != nil {
		return nil, errors.Wrap(err, "authorization digest")
	}
	sig, err := i.signer.SignHash(ctx, digest)
	if err != nil {
		return nil, errors.Wrap(err, "sign authorization")
	}

	out := &Issued{
		ID: uuid.NewString(),
		Authorization: verifier.Authorization{
			Owner:      req.Owner,
			Salt:       req.Salt,
			Expiration: exp,
			Message:    digest,
			Signature:  sig,
		},
		Registry: i.registry.Address(),
		Signer:   i.signer.Address(),
		IssuedAt: now.UTC(),
	}

	if i.records != nil {
		if err := i.records.InsertAuthorization(ctx, store.Authorization{
			ID:         out.ID,
			Registry:   out.Registry,
			Signer:     out.Signer,
			Owner:      req.Owner,
			Salt:       req.Salt,
			Expiration: exp,
			Digest:     digest,
			Signature:  sig,
			IssuedAt:   out.IssuedAt,
		}); err != nil {
			return nil, errors.Wrap(err, "record authorization")
		}
	}

	log.Info("authorization issued",
		"id", out.ID,
		"owner", req.Owner.Hex(),
		"salt", req.Salt.Hex(),
		"expiration", exp.String(),
	)
	return out, nil
}

func signerString(s verifier.Signer) string {
	if s == nil {
		return "unset"
	}
	return s.Kind().String() + ":" + s.Address().Hex()
}
