package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/IBM/sarama"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/matching"
	"github.com/zakkycrypt01/voile/services/matching/internal/service"
)

type fakeMatcher struct {
	requests []service.IncomingRequest
	dropped  []uint64
	offers   []matching.Offer
	removed  []uint64
	err      error
}

func (f *fakeMatcher) HandleUnlockRequest(_ context.Context, in service.IncomingRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, in)
	return nil
}

func (f *fakeMatcher) DropRequest(_ string, requestID uint64) {
	f.dropped = append(f.dropped, requestID)
}

func (f *fakeMatcher) ApplyOffer(_ context.Context, o matching.Offer) error {
	if f.err != nil {
		return f.err
	}
	f.offers = append(f.offers, o)
	return nil
}

func (f *fakeMatcher) RemoveOffer(offerID uint64) {
	f.removed = append(f.removed, offerID)
}

func message(t *testing.T, topic string, event any) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: topic, Value: payload}
}

func envelope(t *testing.T, eventType string) kafka.Envelope {
	t.Helper()
	env, err := kafka.NewEnvelope(eventType, 1, "corr-1")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestRequestConsumerForwardsRequest(t *testing.T) {
	matcher := &fakeMatcher{}
	c := NewRequestConsumer(matcher, nil)

	event := UnlockRequestedEvent{
		Envelope:    envelope(t, unlockRequestedEventType),
		AccountID:   "alice",
		RequestID:   4,
		Amount:      3_000_000_000,
		Commitment:  strings.Repeat("ab", 32),
		CooldownEnd: 1_700_000_000,
	}
	if err := c.HandleMessage(context.Background(), message(t, unlockRequestedEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(matcher.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(matcher.requests))
	}
	got := matcher.requests[0]
	if got.AccountID != "alice" || got.Request.RequestID != 4 || got.Request.Amount != 3_000_000_000 {
		t.Fatalf("request = %+v", got)
	}
	if got.Request.Commitment.String() != event.Commitment {
		t.Fatal("commitment not parsed")
	}
}

func TestRequestConsumerRejectsInvalid(t *testing.T) {
	c := NewRequestConsumer(&fakeMatcher{}, nil)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	if err := c.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("{not json")}); err == nil {
		t.Fatal("expected error for bad json")
	}

	event := UnlockRequestedEvent{
		Envelope:   envelope(t, unlockRequestedEventType),
		AccountID:  "alice",
		RequestID:  4,
		Amount:     3_000_000_000,
		Commitment: "zz",
	}
	if err := c.HandleMessage(ctx, message(t, unlockRequestedEventType, event)); err == nil {
		t.Fatal("expected error for bad commitment")
	}

	event.Commitment = strings.Repeat("ab", 32)
	event.Amount = 0
	if err := c.HandleMessage(ctx, message(t, unlockRequestedEventType, event)); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestCancelConsumerDropsRequest(t *testing.T) {
	matcher := &fakeMatcher{}
	c := NewCancelConsumer(matcher, nil)

	event := RequestCancelledEvent{
		Envelope:  envelope(t, unlockCancelledEventType),
		AccountID: "alice",
		RequestID: 4,
	}
	if err := c.HandleMessage(context.Background(), message(t, unlockCancelledEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(matcher.dropped) != 1 || matcher.dropped[0] != 4 {
		t.Fatalf("dropped = %v", matcher.dropped)
	}
}

func TestOfferConsumerAppliesOffer(t *testing.T) {
	matcher := &fakeMatcher{}
	c := NewOfferConsumer(matcher, nil)

	event := OfferCreatedEvent{
		Envelope:     envelope(t, offerCreatedEventType),
		PoolID:       "main",
		OfferID:      7,
		MaxAmount:    5_000_000_000,
		MinAmount:    100_000_000,
		CustomAPRBps: 800,
		Commitment:   strings.Repeat("cd", 32),
	}
	if err := c.HandleMessage(context.Background(), message(t, offerCreatedEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(matcher.offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(matcher.offers))
	}
	got := matcher.offers[0]
	if got.OfferID != 7 || got.MaxAmount != 5_000_000_000 || got.CustomAPRBps != 800 || !got.Active {
		t.Fatalf("offer = %+v", got)
	}
}

func TestOfferCancelConsumerRemovesOffer(t *testing.T) {
	matcher := &fakeMatcher{}
	c := NewOfferCancelConsumer(matcher, nil)

	event := OfferCancelledEvent{
		Envelope: envelope(t, offerCancelledEventType),
		PoolID:   "main",
		OfferID:  7,
	}
	if err := c.HandleMessage(context.Background(), message(t, offerCancelledEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(matcher.removed) != 1 || matcher.removed[0] != 7 {
		t.Fatalf("removed = %v", matcher.removed)
	}
}

func TestOfferConsumerRejectsWrongType(t *testing.T) {
	c := NewOfferConsumer(&fakeMatcher{}, nil)

	event := OfferCreatedEvent{
		Envelope:   envelope(t, "something.else"),
		OfferID:    7,
		MaxAmount:  1,
		Commitment: strings.Repeat("cd", 32),
	}
	if err := c.HandleMessage(context.Background(), message(t, offerCreatedEventType, event)); err == nil {
		t.Fatal("expected error for wrong event type")
	}
}
