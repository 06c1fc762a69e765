// Package consumer feeds the matching engine from the event stream:
// unlock requests and cancellations from the user side, offer changes from
// the pool side.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/matching"
	"github.com/zakkycrypt01/voile/services/matching/internal/service"
)

const (
	unlockRequestedEventType = "unlock.requested"
	unlockCancelledEventType = "unlock.cancelled"
)

// UnlockRequestedEvent mirrors the user service's announcement of a new
// unlock request.
type UnlockRequestedEvent struct {
	kafka.Envelope
	AccountID   string `json:"account_id"`
	RequestID   uint64 `json:"request_id"`
	Amount      uint64 `json:"amount"`
	Commitment  string `json:"commitment"`
	CooldownEnd uint64 `json:"cooldown_end"`
}

func (e *UnlockRequestedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != unlockRequestedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return fmt.Errorf("account_id is required")
	}
	if e.RequestID == 0 {
		return fmt.Errorf("request_id is required")
	}
	if e.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// RequestCancelledEvent mirrors the user service's cancellation notice.
type RequestCancelledEvent struct {
	kafka.Envelope
	AccountID string `json:"account_id"`
	RequestID uint64 `json:"request_id"`
}

// RequestMatcher is the slice of the service the consumers need.
type RequestMatcher interface {
	HandleUnlockRequest(ctx context.Context, in service.IncomingRequest) error
	DropRequest(accountID string, requestID uint64)
}

type RequestConsumer struct {
	svc    RequestMatcher
	logger *slog.Logger
}

func NewRequestConsumer(svc RequestMatcher, logger *slog.Logger) *RequestConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestConsumer{svc: svc, logger: logger}
}

func (c *RequestConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event UnlockRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal unlock request event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid unlock request event: %w", err)
	}
	commitment, err := commit.ParseWord(strings.TrimSpace(event.Commitment))
	if err != nil {
		return fmt.Errorf("invalid commitment: %w", err)
	}

	in := service.IncomingRequest{
		AccountID: event.AccountID,
		Request: matching.Request{
			RequestID:  event.RequestID,
			Amount:     event.Amount,
			Commitment: commitment,
		},
	}
	if err := c.svc.HandleUnlockRequest(ctx, in); err != nil {
		return fmt.Errorf("match request %s/%d: %w", event.AccountID, event.RequestID, err)
	}
	return nil
}

type CancelConsumer struct {
	svc    RequestMatcher
	logger *slog.Logger
}

func NewCancelConsumer(svc RequestMatcher, logger *slog.Logger) *CancelConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelConsumer{svc: svc, logger: logger}
}

func (c *CancelConsumer) HandleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event RequestCancelledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal cancel event: %w", err)
	}
	if err := event.Envelope.Validate(); err != nil {
		return fmt.Errorf("invalid cancel event: %w", err)
	}
	if event.EventType != unlockCancelledEventType {
		return fmt.Errorf("unexpected event_type: %s", event.EventType)
	}

	c.svc.DropRequest(event.AccountID, event.RequestID)
	c.logger.Info("parked request dropped", "account_id", event.AccountID, "request_id", event.RequestID)
	return nil
}
