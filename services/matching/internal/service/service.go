// Package service runs the off-chain matching engine: it keeps an offer
// snapshot in memory, pairs incoming unlock requests with the best-priced
// offer, and parks unmatched requests until new liquidity arrives.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/matching"
)

// IncomingRequest is the matching view of an unlock.requested event.
type IncomingRequest struct {
	AccountID string
	Request   matching.Request
}

type pendingKey struct {
	AccountID string
	RequestID uint64
}

type Service struct {
	engine   *matching.Engine
	producer kafka.Publisher
	topic    string
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[pendingKey]IncomingRequest
}

func New(engine *matching.Engine, producer kafka.Publisher, dealsMatchedTopic string, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		producer: producer,
		topic:    dealsMatchedTopic,
		metrics:  metrics,
		logger:   logger,
		pending:  make(map[pendingKey]IncomingRequest),
	}
}

// LoadSnapshot seeds the engine with the offers that were active before
// this instance started.
func (s *Service) LoadSnapshot(offers []matching.Offer) {
	for _, o := range offers {
		s.engine.UpsertOffer(o)
	}
	s.metrics.SetSnapshotSize(len(s.engine.Snapshot()))
	s.logger.Info("offer snapshot loaded", "offers", len(offers))
}

// PendingCount reports how many requests are parked waiting for liquidity.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HandleUnlockRequest matches a request against the current snapshot. A
// request with no eligible offer is parked and retried when offers change;
// that is an empty result, not an error.
func (s *Service) HandleUnlockRequest(ctx context.Context, in IncomingRequest) error {
	start := time.Now()
	deal, ok := s.engine.Match(in.Request)
	s.metrics.ObserveMatchDuration(time.Since(start).Seconds())
	if !ok {
		s.mu.Lock()
		s.pending[pendingKey{AccountID: in.AccountID, RequestID: in.Request.RequestID}] = in
		s.mu.Unlock()
		s.metrics.IncMatch("no_match")
		s.logger.Info("no eligible offer, request parked",
			"account_id", in.AccountID, "request_id", in.Request.RequestID, "amount", in.Request.Amount)
		return nil
	}
	if err := s.publishMatch(ctx, in.AccountID, deal); err != nil {
		s.metrics.IncMatch("publish_error")
		return err
	}
	s.metrics.IncMatch("matched")
	return nil
}

// DropRequest forgets a parked request after the user cancels it.
func (s *Service) DropRequest(accountID string, requestID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, pendingKey{AccountID: accountID, RequestID: requestID})
}

// ApplyOffer folds an offer into the snapshot and retries parked requests
// against the new liquidity.
func (s *Service) ApplyOffer(ctx context.Context, o matching.Offer) error {
	s.engine.UpsertOffer(o)
	s.metrics.IncOfferUpdate("upsert")
	s.metrics.SetSnapshotSize(len(s.engine.Snapshot()))
	return s.rematchPending(ctx)
}

// RemoveOffer drops a cancelled offer from the snapshot.
func (s *Service) RemoveOffer(offerID uint64) {
	s.engine.DeactivateOffer(offerID)
	s.metrics.IncOfferUpdate("deactivate")
	s.metrics.SetSnapshotSize(len(s.engine.Snapshot()))
}

func (s *Service) rematchPending(ctx context.Context) error {
	s.mu.Lock()
	parked := make([]IncomingRequest, 0, len(s.pending))
	for _, in := range s.pending {
		parked = append(parked, in)
	}
	s.mu.Unlock()

	for _, in := range parked {
		deal, ok := s.engine.Match(in.Request)
		if !ok {
			continue
		}
		if err := s.publishMatch(ctx, in.AccountID, deal); err != nil {
			s.metrics.IncMatch("publish_error")
			return err
		}
		s.mu.Lock()
		delete(s.pending, pendingKey{AccountID: in.AccountID, RequestID: in.Request.RequestID})
		s.mu.Unlock()
		s.metrics.IncMatch("matched")
	}
	return nil
}

func (s *Service) publishMatch(ctx context.Context, accountID string, deal matching.MatchedDeal) error {
	eventID := kafka.DeterministicEventID(DealMatchedEventType, accountID, strconv.FormatUint(deal.RequestID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, DealMatchedEventType, 1, eventID)
	if err != nil {
		return err
	}
	event := DealMatchedEvent{
		Envelope:       env,
		DealID:         deal.DealID.String(),
		AccountID:      accountID,
		RequestID:      deal.RequestID,
		OfferID:        deal.OfferID,
		UserCommitment: deal.UserCommitment.String(),
		LPCommitment:   deal.LPCommitment.String(),
		Advance:        deal.Advance,
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topic, accountID, event); err != nil {
		return fmt.Errorf("publish deal matched: %w", err)
	}

	s.logger.Info("request matched",
		"deal_id", event.DealID,
		"account_id", accountID,
		"request_id", deal.RequestID,
		"offer_id", deal.OfferID,
		"advance", deal.Advance,
	)
	return nil
}
