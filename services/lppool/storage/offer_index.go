// Package storage keeps the queryable index of LP offers. The ledger holds
// the balances and commitments; the index is what the matching engine loads
// its snapshot from at startup.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const Schema = `
CREATE TABLE IF NOT EXISTS lp_offers (
    pool_id        TEXT        NOT NULL,
    offer_id       BIGINT      NOT NULL,
    max_amount     BIGINT      NOT NULL,
    min_amount     BIGINT      NOT NULL,
    custom_apr_bps BIGINT      NOT NULL,
    commitment     BYTEA       NOT NULL,
    active         BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (pool_id, offer_id)
);
`

type OfferRecord struct {
	PoolID       string
	OfferID      uint64
	MaxAmount    uint64
	MinAmount    uint64
	CustomAPRBps uint64
	Commitment   []byte
	Active       bool
	CreatedAt    time.Time
}

type OfferIndex struct {
	pool *pgxpool.Pool
}

func NewOfferIndex(pool *pgxpool.Pool) *OfferIndex {
	return &OfferIndex{pool: pool}
}

// Upsert writes an offer row, replacing any previous state for the id.
func (s *OfferIndex) Upsert(ctx context.Context, rec OfferRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lp_offers (pool_id, offer_id, max_amount, min_amount, custom_apr_bps, commitment, active)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (pool_id, offer_id) DO UPDATE
         SET max_amount = EXCLUDED.max_amount,
             min_amount = EXCLUDED.min_amount,
             custom_apr_bps = EXCLUDED.custom_apr_bps,
             commitment = EXCLUDED.commitment,
             active = EXCLUDED.active`,
		rec.PoolID, int64(rec.OfferID), int64(rec.MaxAmount), int64(rec.MinAmount),
		int64(rec.CustomAPRBps), rec.Commitment, rec.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}
	return nil
}

// Deactivate marks an offer inactive. Unknown ids are a no-op.
func (s *OfferIndex) Deactivate(ctx context.Context, poolID string, offerID uint64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE lp_offers SET active = FALSE WHERE pool_id = $1 AND offer_id = $2`,
		poolID, int64(offerID),
	)
	if err != nil {
		return fmt.Errorf("deactivate offer: %w", err)
	}
	return nil
}

// ListActive returns the pool's active offers in creation order.
func (s *OfferIndex) ListActive(ctx context.Context, poolID string) ([]OfferRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pool_id, offer_id, max_amount, min_amount, custom_apr_bps, commitment, active, created_at
         FROM lp_offers WHERE pool_id = $1 AND active ORDER BY offer_id`,
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []OfferRecord
	for rows.Next() {
		var (
			rec               OfferRecord
			offerID, max, min int64
			aprBps            int64
		)
		if err := rows.Scan(&rec.PoolID, &offerID, &max, &min, &aprBps, &rec.Commitment, &rec.Active, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		rec.OfferID = uint64(offerID)
		rec.MaxAmount = uint64(max)
		rec.MinAmount = uint64(min)
		rec.CustomAPRBps = uint64(aprBps)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return out, nil
}
