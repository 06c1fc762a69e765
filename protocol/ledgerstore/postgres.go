package ledgerstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the cell table. The seed tool applies it; deployed
// environments manage it with migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_cells (
    namespace    TEXT     NOT NULL,
    entity       BYTEA    NOT NULL,
    field_offset SMALLINT NOT NULL,
    value        BYTEA    NOT NULL,
    PRIMARY KEY (namespace, entity, field_offset)
);
`

// Postgres is a TxStore over a single namespace in the ledger_cells table.
type Postgres struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPostgres(pool *pgxpool.Pool, namespace string) *Postgres {
	return &Postgres{pool: pool, namespace: namespace}
}

func (p *Postgres) Get(ctx context.Context, entity EntityID, offset uint8) (Value, error) {
	return pgGet(ctx, p.pool, p.namespace, entity, offset)
}

func (p *Postgres) Set(ctx context.Context, entity EntityID, offset uint8, value Value) error {
	return pgSet(ctx, p.pool, p.namespace, entity, offset, value)
}

// RunInTx serializes concurrent writers on the namespace with a transaction
// scoped advisory lock, then runs fn against the transaction.
func (p *Postgres) RunInTx(ctx context.Context, fn func(Store) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.namespace); err != nil {
		return fmt.Errorf("acquire namespace lock: %w", err)
	}

	if err := fn(&pgTxStore{tx: tx, namespace: p.namespace}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

type pgTxStore struct {
	tx        pgx.Tx
	namespace string
}

func (s *pgTxStore) Get(ctx context.Context, entity EntityID, offset uint8) (Value, error) {
	return pgGet(ctx, s.tx, s.namespace, entity, offset)
}

func (s *pgTxStore) Set(ctx context.Context, entity EntityID, offset uint8, value Value) error {
	return pgSet(ctx, s.tx, s.namespace, entity, offset, value)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pgGet(ctx context.Context, q querier, namespace string, entity EntityID, offset uint8) (Value, error) {
	var raw []byte
	err := q.QueryRow(ctx,
		`SELECT value FROM ledger_cells WHERE namespace = $1 AND entity = $2 AND field_offset = $3`,
		namespace, entity[:], int16(offset),
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return ZeroValue, nil
	}
	if err != nil {
		return ZeroValue, fmt.Errorf("get cell: %w", err)
	}
	var v Value
	copy(v[:], raw)
	return v, nil
}

func pgSet(ctx context.Context, q querier, namespace string, entity EntityID, offset uint8, value Value) error {
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_cells (namespace, entity, field_offset, value)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (namespace, entity, field_offset) DO UPDATE SET value = EXCLUDED.value`,
		namespace, entity[:], int16(offset), value[:],
	)
	if err != nil {
		return fmt.Errorf("set cell: %w", err)
	}
	return nil
}

// PostgresFactory opens per-namespace stores over one shared pool.
type PostgresFactory struct {
	pool *pgxpool.Pool
}

func NewPostgresFactory(pool *pgxpool.Pool) *PostgresFactory {
	return &PostgresFactory{pool: pool}
}

func (f *PostgresFactory) Namespace(name string) TxStore {
	return NewPostgres(f.pool, name)
}
