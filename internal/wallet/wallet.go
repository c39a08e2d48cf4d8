// Package wallet holds the service's authorization signing key in an
// encrypted keystore file.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumauth-io/account-registry/internal/securefile"
	"github.com/quantumauth-io/account-registry/internal/verifier"
)

const (
	AppName    = "account-registry"
	WalletFile = "signer.json"
	AAD        = "account-registry:signer:v1"
)

// Wallet is a secp256k1 key. Its JSON form is what the keystore encrypts.
type Wallet struct {
	Version    int    `json:"version"`
	AddressHex string `json:"address"`
	PrivKeyHex string `json:"priv_key_hex"`
	CreatedAt  string `json:"created_at,omitempty"`

	key *ecdsa.PrivateKey
}

func FromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		Version:    1,
		AddressHex: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: hexutil.Encode(crypto.FromECDSA(key)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		key:        key,
	}
}

func Generate() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return FromKey(key), nil
}

// Import parses a hex private key, with or without 0x.
func Import(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, errors.Wrap(err, "import key")
	}
	return FromKey(key), nil
}

func (w *Wallet) Address() common.Address {
	return common.HexToAddress(w.AddressHex)
}

// SignHash signs a 32-byte digest and returns r || s || v with v in {27, 28}.
func (w *Wallet) SignHash(ctx context.Context, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := w.privateKey()
	if err != nil {
		return nil, err
	}
	return verifier.Sign(digest, key)
}

func (w *Wallet) privateKey() (*ecdsa.PrivateKey, error) {
	if w.key != nil {
		return w.key, nil
	}
	key, err := crypto.HexToECDSA(trim0x(w.PrivKeyHex))
	if err != nil {
		return nil, errors.Wrap(err, "decode key")
	}
	if got := crypto.PubkeyToAddress(key.PublicKey); got != w.Address() {
		return nil, errors.Newf("keystore address %s does not match key %s", w.AddressHex, got.Hex())
	}
	w.key = key
	return key, nil
}

// Store is an encrypted keystore at Path.
type Store struct {
	Path string
	Opt  securefile.Options
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := securefile.DefaultPath(AppName, WalletFile)
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{
		Path: path,
		Opt:  securefile.Options{AAD: []byte(AAD)},
	}, nil
}

func (s *Store) Load(password []byte) (*Wallet, error) {
	w, err := securefile.ReadJSON[Wallet](s.Path, password, s.Opt)
	if err != nil {
		return nil, err
	}
	if _, err := w.privateKey(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) Save(w *Wallet, password []byte) error {
	return securefile.WriteJSON(s.Path, *w, password, s.Opt)
}

// Ensure loads the keystore, creating it with a fresh key if it is missing.
func (s *Store) Ensure(password []byte) (*Wallet, error) {
	w, err := s.Load(password)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load wallet %s: %w", s.Path, err)
	}

	nw, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := s.Save(nw, password); err != nil {
		return nil, err
	}
	return nw, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
