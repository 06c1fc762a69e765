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
	"github.com/zakkycrypt01/voile/services/useraccount/internal/service"
)

const dealAcceptedEventType = "deals.accepted"

// DealAcceptedEvent is published by the pool service once a match has been
// committed on the pool ledger.
type DealAcceptedEvent struct {
	kafka.Envelope
	DealID          string `json:"deal_id"`
	AccountID       string `json:"account_id"`
	RequestID       uint64 `json:"request_id"`
	OfferID         uint64 `json:"offer_id"`
	Advance         uint64 `json:"advance"`
	LPCommitment    string `json:"lp_commitment"`
	AdvanceNoteHash string `json:"advance_note_hash"`
}

func (e *DealAcceptedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != dealAcceptedEventType {
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
	if e.Advance == 0 {
		return fmt.Errorf("advance must be positive")
	}
	if strings.TrimSpace(e.LPCommitment) == "" {
		return fmt.Errorf("lp_commitment is required")
	}
	return nil
}

// DealApplier is the slice of the service the consumer needs.
type DealApplier interface {
	ApplyAcceptedDeal(ctx context.Context, deal service.AcceptedDeal) error
}

type DealConsumer struct {
	svc    DealApplier
	logger *slog.Logger
}

func NewDealConsumer(svc DealApplier, logger *slog.Logger) *DealConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DealConsumer{svc: svc, logger: logger}
}

func (c *DealConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event DealAcceptedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode deals.accepted: %w", err)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	dealID, err := uuid.Parse(strings.TrimSpace(event.DealID))
	if err != nil {
		return fmt.Errorf("invalid deal_id: %w", err)
	}
	lpCommitment, err := commit.ParseWord(strings.TrimSpace(event.LPCommitment))
	if err != nil {
		return fmt.Errorf("invalid lp_commitment: %w", err)
	}

	deal := service.AcceptedDeal{
		DealID:       dealID,
		AccountID:    event.AccountID,
		RequestID:    event.RequestID,
		Advance:      event.Advance,
		LPCommitment: lpCommitment,
	}
	if err := c.svc.ApplyAcceptedDeal(ctx, deal); err != nil {
		return fmt.Errorf("apply deal %s: %w", event.DealID, err)
	}

	c.logger.Info("deal applied",
		"deal_id", event.DealID,
		"account_id", event.AccountID,
		"request_id", event.RequestID,
		"event_id", event.EventID,
	)
	return nil
}
