// Package storage loads the offer snapshot the matching engine starts
// from. The pool service owns the lp_offers table; this side only reads it.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/matching"
)

type SnapshotLoader struct {
	pool *pgxpool.Pool
}

func NewSnapshotLoader(pool *pgxpool.Pool) *SnapshotLoader {
	return &SnapshotLoader{pool: pool}
}

// LoadActiveOffers returns the pool's active offers in creation order, the
// same order the engine would have seen them arrive on the event stream.
func (s *SnapshotLoader) LoadActiveOffers(ctx context.Context, poolID string) ([]matching.Offer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT offer_id, max_amount, min_amount, custom_apr_bps, commitment
         FROM lp_offers WHERE pool_id = $1 AND active ORDER BY offer_id`,
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}
	defer rows.Close()

	var out []matching.Offer
	for rows.Next() {
		var (
			offerID, max, min, aprBps int64
			commitment                []byte
		)
		if err := rows.Scan(&offerID, &max, &min, &aprBps, &commitment); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if len(commitment) != len(commit.Word{}) {
			return nil, fmt.Errorf("offer %d: commitment is %d bytes", offerID, len(commitment))
		}
		var word commit.Word
		copy(word[:], commitment)
		out = append(out, matching.Offer{
			OfferID:      uint64(offerID),
			MinAmount:    uint64(min),
			MaxAmount:    uint64(max),
			CustomAPRBps: uint64(aprBps),
			Commitment:   word,
			Active:       true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}
	return out, nil
}
