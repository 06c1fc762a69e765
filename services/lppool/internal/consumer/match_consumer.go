// Package consumer wires the pool service into the event stream: matched
// deals come in from the matching engine, settlement authorizations come in
// from the user side.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/services/lppool/internal/service"
)

const dealMatchedEventType = "deals.matched"

// DealMatchedEvent is the matching engine's provisional pairing of a
// request with an offer. Nothing has moved on any ledger yet.
type DealMatchedEvent struct {
	kafka.Envelope
	DealID         string `json:"deal_id"`
	AccountID      string `json:"account_id"`
	RequestID      uint64 `json:"request_id"`
	OfferID        uint64 `json:"offer_id"`
	UserCommitment string `json:"user_commitment"`
	LPCommitment   string `json:"lp_commitment"`
	Advance        uint64 `json:"advance"`
}

func (e *DealMatchedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != dealMatchedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.DealID) == "" {
		return fmt.Errorf("deal_id is required")
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return fmt.Errorf("account_id is required")
	}
	if e.RequestID == 0 {
		return fmt.Errorf("request_id is required")
	}
	if e.OfferID == 0 {
		return fmt.Errorf("offer_id is required")
	}
	if e.Advance == 0 {
		return fmt.Errorf("advance must be positive")
	}
	return nil
}

// MatchAccepter is the slice of the service the consumer needs.
type MatchAccepter interface {
	AcceptMatch(ctx context.Context, m service.MatchDecision) error
}

type MatchConsumer struct {
	svc    MatchAccepter
	logger *slog.Logger
}

func NewMatchConsumer(svc MatchAccepter, logger *slog.Logger) *MatchConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchConsumer{svc: svc, logger: logger}
}

func (c *MatchConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event DealMatchedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal deal matched event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid deal matched event: %w", err)
	}

	dealID, err := uuid.Parse(event.DealID)
	if err != nil {
		return fmt.Errorf("invalid deal_id: %w", err)
	}
	userCommitment, err := commit.ParseWord(event.UserCommitment)
	if err != nil {
		return fmt.Errorf("invalid user_commitment: %w", err)
	}
	lpCommitment, err := commit.ParseWord(event.LPCommitment)
	if err != nil {
		return fmt.Errorf("invalid lp_commitment: %w", err)
	}

	decision := service.MatchDecision{
		DealID:         dealID,
		AccountID:      event.AccountID,
		RequestID:      event.RequestID,
		OfferID:        event.OfferID,
		UserCommitment: userCommitment,
		LPCommitment:   lpCommitment,
		Advance:        event.Advance,
	}
	if err := c.svc.AcceptMatch(ctx, decision); err != nil {
		return fmt.Errorf("accept match %s: %w", event.DealID, err)
	}

	c.logger.Info("matched deal processed", "deal_id", event.DealID, "offer_id", event.OfferID)
	return nil
}
