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
)

const (
	offerCreatedEventType   = "offers.created"
	offerCancelledEventType = "offers.cancelled"
)

// OfferCreatedEvent mirrors the pool service's offer announcement.
type OfferCreatedEvent struct {
	kafka.Envelope
	PoolID       string `json:"pool_id"`
	OfferID      uint64 `json:"offer_id"`
	MaxAmount    uint64 `json:"max_amount"`
	MinAmount    uint64 `json:"min_amount"`
	CustomAPRBps uint64 `json:"custom_apr_bps"`
	Commitment   string `json:"commitment"`
}

func (e *OfferCreatedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != offerCreatedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if e.OfferID == 0 {
		return fmt.Errorf("offer_id is required")
	}
	if e.MaxAmount == 0 {
		return fmt.Errorf("max_amount must be positive")
	}
	return nil
}

// OfferCancelledEvent mirrors the pool service's cancellation notice.
type OfferCancelledEvent struct {
	kafka.Envelope
	PoolID  string `json:"pool_id"`
	OfferID uint64 `json:"offer_id"`
}

// OfferApplier is the slice of the service the consumers need.
type OfferApplier interface {
	ApplyOffer(ctx context.Context, o matching.Offer) error
	RemoveOffer(offerID uint64)
}

type OfferConsumer struct {
	svc    OfferApplier
	logger *slog.Logger
}

func NewOfferConsumer(svc OfferApplier, logger *slog.Logger) *OfferConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferConsumer{svc: svc, logger: logger}
}

func (c *OfferConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event OfferCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal offer event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid offer event: %w", err)
	}
	commitment, err := commit.ParseWord(strings.TrimSpace(event.Commitment))
	if err != nil {
		return fmt.Errorf("invalid commitment: %w", err)
	}

	offer := matching.Offer{
		OfferID:      event.OfferID,
		MinAmount:    event.MinAmount,
		MaxAmount:    event.MaxAmount,
		CustomAPRBps: event.CustomAPRBps,
		Commitment:   commitment,
		Active:       true,
	}
	if err := c.svc.ApplyOffer(ctx, offer); err != nil {
		return fmt.Errorf("apply offer %d: %w", event.OfferID, err)
	}
	c.logger.Info("offer applied", "offer_id", event.OfferID, "pool_id", event.PoolID)
	return nil
}

type OfferCancelConsumer struct {
	svc    OfferApplier
	logger *slog.Logger
}

func NewOfferCancelConsumer(svc OfferApplier, logger *slog.Logger) *OfferCancelConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferCancelConsumer{svc: svc, logger: logger}
}

func (c *OfferCancelConsumer) HandleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}
	var event OfferCancelledEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal offer cancel event: %w", err)
	}
	if err := event.Envelope.Validate(); err != nil {
		return fmt.Errorf("invalid offer cancel event: %w", err)
	}
	if event.EventType != offerCancelledEventType {
		return fmt.Errorf("unexpected event_type: %s", event.EventType)
	}

	c.svc.RemoveOffer(event.OfferID)
	c.logger.Info("offer removed", "offer_id", event.OfferID, "pool_id", event.PoolID)
	return nil
}
