package verifier

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

type Kind uint8

const (
	// KindRawKey is an externally owned key checked with ecrecover.
	KindRawKey Kind = iota
	// KindDelegated is a contract checked through ERC-1271.
	KindDelegated
)

func (k Kind) String() string {
	switch k {
	case KindRawKey:
		return "raw-key"
	case KindDelegated:
		return "delegated"
	default:
		return "unknown"
	}
}

// Signer is the service's authorization signer. It is either a RawKeySigner
// or a DelegatedSigner.
type Signer interface {
	Address() common.Address
	Kind() Kind
	signer()
}

type RawKeySigner struct{ Addr common.Address }

func (s RawKeySigner) Address() common.Address { return s.Addr }
func (RawKeySigner) Kind() Kind                { return KindRawKey }
func (RawKeySigner) signer()                   {}

type DelegatedSigner struct{ Addr common.Address }

func (s DelegatedSigner) Address() common.Address { return s.Addr }
func (DelegatedSigner) Kind() Kind                { return KindDelegated }
func (DelegatedSigner) signer()                   {}

// ProbeSigner picks the signer kind from the code size at addr at the time
// it is configured.
func ProbeSigner(addr common.Address, codeSize int) Signer {
	if codeSize > 0 {
		return DelegatedSigner{Addr: addr}
	}
	return RawKeySigner{Addr: addr}
}

// EncodeSigner packs s into a single storage word: the kind in byte 0 and the
// address in bytes 12..31. A nil signer encodes as the zero word.
func EncodeSigner(s Signer) common.Hash {
	var word common.Hash
	if s == nil {
		return word
	}
	word[0] = byte(s.Kind())
	copy(word[12:], s.Address().Bytes())
	return word
}

// DecodeSigner is the inverse of EncodeSigner. The zero word decodes to nil.
func DecodeSigner(word common.Hash) (Signer, error) {
	if word == (common.Hash{}) {
		return nil, nil
	}
	addr := common.BytesToAddress(word[12:])
	switch Kind(word[0]) {
	case KindRawKey:
		return RawKeySigner{Addr: addr}, nil
	case KindDelegated:
		return DelegatedSigner{Addr: addr}, nil
	default:
		return nil, errors.Newf("unknown signer kind %d", word[0])
	}
}
