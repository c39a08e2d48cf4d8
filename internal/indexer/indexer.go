// Package indexer persists the events of committed ledger transactions.
package indexer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"

	"github.com/quantumauth-io/account-registry/internal/chain"
	"github.com/quantumauth-io/account-registry/internal/store"
)

// LogSource is the part of the ledger the indexer reads.
type LogSource interface {
	// Genesis identifies the ledger instance; stored events are scoped to it.
	Genesis() common.Hash
	SubscribeLogs(ch chan<- []*types.Log) event.Subscription
	FilterLogs(q chain.FilterQuery) []*types.Log
}

type Indexer struct {
	src    LogSource
	events store.Events

	// RetryDelay bounds the wait between attempts to persist a batch.
	RetryDelay time.Duration

	head    atomic.Uint64
	dropped atomic.Uint64
}

func New(src LogSource, events store.Events) *Indexer {
	return &Indexer{
		src:        src,
		events:     events,
		RetryDelay: time.Second,
	}
}

// Head is the highest block whose events are stored.
func (ix *Indexer) Head() uint64 { return ix.head.Load() }

// Run stores every log the ledger already holds, then follows new commits
// until ctx is done. Logs already stored are skipped.
func (ix *Indexer) Run(ctx context.Context) error {
	ch := make(chan []*types.Log, 64)
	sub := ix.src.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	if backlog := ix.src.FilterLogs(chain.FilterQuery{}); len(backlog) > 0 {
		if err := ix.persist(ctx, backlog); err != nil {
			return err
		}
	}
	log.Info("indexer started", "head", ix.Head())

	for {
		select {
		case <-ctx.Done():
			log.Info("indexer exiting", "head", ix.Head(), "skipped_logs", ix.dropped.Load())
			return nil
		case err := <-sub.Err():
			return errors.Wrap(err, "indexer: subscription")
		case logs := <-ch:
			if err := ix.persist(ctx, logs); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (ix *Indexer) persist(ctx context.Context, logs []*types.Log) error {
	batch := make([]store.Event, 0, len(logs))
	ledger := ix.src.Genesis()
	var head uint64
	for _, lg := range logs {
		ev, ok, err := Decode(lg)
		if err != nil {
			log.Warn("undecodable log", "address", lg.Address.Hex(), "tx", lg.TxHash.Hex(), "error", err)
			ix.dropped.Add(1)
			continue
		}
		if lg.BlockNumber > head {
			head = lg.BlockNumber
		}
		if !ok {
			ix.dropped.Add(1)
			continue
		}
		ev.Ledger = ledger
		batch = append(batch, ev)
	}

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = ix.RetryDelay / 10
	cfg.MaxDelayBeforeRetrying = ix.RetryDelay
	_, err := retry.Retry(ctx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			return nil, ix.events.InsertEvents(ctx, batch)
		},
		nil,
		"store indexed events")
	if err != nil {
		return errors.Wrap(err, "indexer: persist")
	}

	if head > ix.head.Load() {
		ix.head.Store(head)
	}
	return nil
}
