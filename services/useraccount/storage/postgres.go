// Package storage keeps the service-side index of accepted deals. The
// ledger itself stores only commitments and note hashes; the index is what
// lets the service recover a deal id from an account and request id.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDealNotFound = errors.New("storage: deal not found")

const Schema = `
CREATE TABLE IF NOT EXISTS request_deals (
    account_id    TEXT        NOT NULL,
    request_id    BIGINT      NOT NULL,
    deal_id       UUID        NOT NULL,
    advance       BIGINT      NOT NULL,
    lp_commitment BYTEA       NOT NULL,
    matched_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (account_id, request_id)
);
`

type DealRecord struct {
	AccountID    string
	RequestID    uint64
	DealID       uuid.UUID
	Advance      uint64
	LPCommitment []byte
	MatchedAt    time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertDeal records an accepted deal. Redelivered events are absorbed by
// the primary key; the first write wins.
func (s *Store) InsertDeal(ctx context.Context, rec DealRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO request_deals (account_id, request_id, deal_id, advance, lp_commitment)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (account_id, request_id) DO NOTHING`,
		rec.AccountID, int64(rec.RequestID), rec.DealID, int64(rec.Advance), rec.LPCommitment,
	)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}

// GetDealByRequest returns the deal an account's request matched into.
func (s *Store) GetDealByRequest(ctx context.Context, accountID string, requestID uint64) (DealRecord, error) {
	var (
		rec     DealRecord
		reqID   int64
		advance int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, request_id, deal_id, advance, lp_commitment, matched_at
         FROM request_deals WHERE account_id = $1 AND request_id = $2`,
		accountID, int64(requestID),
	).Scan(&rec.AccountID, &reqID, &rec.DealID, &advance, &rec.LPCommitment, &rec.MatchedAt)
	if err == pgx.ErrNoRows {
		return DealRecord{}, fmt.Errorf("%w: account %s request %d", ErrDealNotFound, accountID, requestID)
	}
	if err != nil {
		return DealRecord{}, fmt.Errorf("get deal: %w", err)
	}
	rec.RequestID = uint64(reqID)
	rec.Advance = uint64(advance)
	return rec, nil
}
