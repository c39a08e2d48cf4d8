// Package sqlite is the SQLite-backed store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/quantumauth-io/account-registry/internal/store"
	"github.com/quantumauth-io/account-registry/internal/store/sqlite/migrations"
)

type Store struct {
	db *sql.DB
}

var (
	_ store.Authorizations = (*Store)(nil)
	_ store.Events         = (*Store)(nil)
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent inserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertAuthorization(ctx context.Context, a store.Authorization) error {
	if a.ID == "" {
		return fmt.Errorf("authorization id is required")
	}
	exp := a.Expiration
	if exp == nil {
		exp = new(big.Int)
	}
	issued := a.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authorizations (id, registry, signer, owner, salt, expiration, digest, signature, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Registry.Hex(),
		a.Signer.Hex(),
		a.Owner.Hex(),
		a.Salt.Hex(),
		exp.String(),
		a.Digest.Hex(),
		hexutil.Encode(a.Signature),
		issued.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert authorization %s: %w", a.ID, err)
	}
	return nil
}

const authorizationColumns = `id, registry, signer, owner, salt, expiration, digest, signature, issued_at`

func (s *Store) GetAuthorization(ctx context.Context, id string) (store.Authorization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+authorizationColumns+` FROM authorizations WHERE id = ?`, id)
	a, err := scanAuthorization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Authorization{}, store.ErrNotFound
	}
	if err != nil {
		return store.Authorization{}, fmt.Errorf("get authorization %s: %w", id, err)
	}
	return a, nil
}

// ListAuthorizations returns the authorizations issued to owner, oldest
// first. A zero owner lists all of them.
func (s *Store) ListAuthorizations(ctx context.Context, owner common.Address) ([]store.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM authorizations`
	var args []any
	if owner != (common.Address{}) {
		query += ` WHERE owner = ?`
		args = append(args, owner.Hex())
	}
	query += ` ORDER BY issued_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	defer rows.Close()

	var out []store.Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorizations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorization(row scanner) (store.Authorization, error) {
	var (
		a                                      store.Authorization
		registry, signer, owner, salt, digest string
		expiration, signature                  string
		issued                                 int64
	)
	if err := row.Scan(&a.ID, &registry, &signer, &owner, &salt, &expiration, &digest, &signature, &issued); err != nil {
		return a, err
	}
	exp, ok := new(big.Int).SetString(expiration, 10)
	if !ok {
		return a, errors.Newf("bad expiration %q", expiration)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return a, errors.Wrap(err, "decode signature")
	}
	a.Registry = common.HexToAddress(registry)
	a.Signer = common.HexToAddress(signer)
	a.Owner = common.HexToAddress(owner)
	a.Salt = common.HexToHash(salt)
	a.Expiration = exp
	a.Digest = common.HexToHash(digest)
	a.Signature = sig
	a.IssuedAt = time.UnixMilli(issued).UTC()
	return a, nil
}

func (s *Store) InsertEvents(ctx context.Context, events []store.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO account_events (ledger, block_number, tx_hash, log_index, contract, name, account, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ledger, tx_hash, log_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert event: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		fields, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal event fields: %w", err)
		}
		if ev.Ledger == (common.Hash{}) {
			return fmt.Errorf("event %s/%d has no ledger", ev.TxHash.Hex(), ev.LogIndex)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.Ledger.Hex(),
			int64(ev.BlockNumber),
			ev.TxHash.Hex(),
			int64(ev.LogIndex),
			ev.Contract.Hex(),
			ev.Name,
			ev.Account.Hex(),
			string(fields),
		); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", ev.TxHash.Hex(), ev.LogIndex, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns the events ledger emitted concerning account, in chain
// order. A zero account lists every event of that ledger.
func (s *Store) ListEvents(ctx context.Context, ledger common.Hash, account common.Address) ([]store.Event, error) {
	query := `SELECT block_number, tx_hash, log_index, contract, name, account, fields FROM account_events WHERE ledger = ?`
	args := []any{ledger.Hex()}
	if account != (common.Address{}) {
		query += ` AND account = ?`
		args = append(args, account.Hex())
	}
	query += ` ORDER BY block_number, log_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []store.Event
	for rows.Next() {
		var (
			ev                             store.Event
			block, index                   int64
			txHash, contract, acct, fields string
		)
		if err := rows.Scan(&block, &txHash, &index, &contract, &ev.Name, &acct, &fields); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &ev.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal event fields: %w", err)
		}
		ev.Ledger = ledger
		ev.BlockNumber = uint64(block)
		ev.LogIndex = uint(index)
		ev.TxHash = common.HexToHash(txHash)
		ev.Contract = common.HexToAddress(contract)
		ev.Account = common.HexToAddress(acct)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LastBlock is the highest block of ledger with a stored event, or 0.
func (s *Store) LastBlock(ctx context.Context, ledger common.Hash) (uint64, error) {
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(block_number) FROM account_events WHERE ledger = ?`, ledger.Hex()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("last block: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}
