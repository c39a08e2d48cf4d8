// Package store defines the records the service persists.
package store

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("store: not found")

// Authorization is one signed assignment the service handed out.
type Authorization struct {
	ID         string
	Registry   common.Address
	Signer     common.Address
	Owner      common.Address
	Salt       common.Hash
	Expiration *big.Int
	Digest     common.Hash
	Signature  []byte
	IssuedAt   time.Time
}

// Event is a decoded contract log.
type Event struct {
	// Ledger is the genesis id of the ledger instance that emitted the log.
	Ledger      common.Hash
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Contract    common.Address
	Name        string
	// Account is the account the event concerns, if any.
	Account common.Address
	Fields  map[string]string
}

type Authorizations interface {
	InsertAuthorization(ctx context.Context, a Authorization) error
	GetAuthorization(ctx context.Context, id string) (Authorization, error)
	ListAuthorizations(ctx context.Context, owner common.Address) ([]Authorization, error)
}

type Events interface {
	// InsertEvents stores a batch atomically. Events already stored for the
	// same ledger are skipped.
	InsertEvents(ctx context.Context, events []Event) error
	ListEvents(ctx context.Context, ledger common.Hash, account common.Address) ([]Event, error)
	LastBlock(ctx context.Context, ledger common.Hash) (uint64, error)
}
