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

const settlementAuthorizedEventType = "settlements.authorized"

// SettlementAuthorizedEvent is the user ledger's release of the staked
// asset for a matched deal after the cooldown.
type SettlementAuthorizedEvent struct {
	kafka.Envelope
	DealID      string `json:"deal_id"`
	AccountID   string `json:"account_id"`
	RequestID   uint64 `json:"request_id"`
	Amount      uint64 `json:"amount"`
	CooldownEnd uint64 `json:"cooldown_end"`
	NoteHash    string `json:"note_hash"`
}

func (e *SettlementAuthorizedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != settlementAuthorizedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.DealID) == "" {
		return fmt.Errorf("deal_id is required")
	}
	if e.RequestID == 0 {
		return fmt.Errorf("request_id is required")
	}
	if e.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(e.NoteHash) == "" {
		return fmt.Errorf("note_hash is required")
	}
	return nil
}

// SettlementRecorder is the slice of the service the consumer needs.
type SettlementRecorder interface {
	RecordSettlement(ctx context.Context, a service.SettlementAuthorization) error
}

type SettlementConsumer struct {
	svc    SettlementRecorder
	logger *slog.Logger
}

func NewSettlementConsumer(svc SettlementRecorder, logger *slog.Logger) *SettlementConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementConsumer{svc: svc, logger: logger}
}

func (c *SettlementConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event SettlementAuthorizedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal settlement event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid settlement event: %w", err)
	}

	dealID, err := uuid.Parse(event.DealID)
	if err != nil {
		return fmt.Errorf("invalid deal_id: %w", err)
	}
	noteHash, err := commit.ParseWord(event.NoteHash)
	if err != nil {
		return fmt.Errorf("invalid note_hash: %w", err)
	}

	auth := service.SettlementAuthorization{
		DealID:      dealID,
		AccountID:   event.AccountID,
		RequestID:   event.RequestID,
		Amount:      event.Amount,
		CooldownEnd: event.CooldownEnd,
		NoteHash:    noteHash,
	}
	if err := c.svc.RecordSettlement(ctx, auth); err != nil {
		return fmt.Errorf("record settlement %s: %w", event.DealID, err)
	}

	c.logger.Info("settlement recorded", "deal_id", event.DealID)
	return nil
}
