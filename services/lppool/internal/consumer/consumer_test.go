package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/services/lppool/internal/service"
)

type fakeAccepter struct {
	accepted []service.MatchDecision
	err      error
}

func (f *fakeAccepter) AcceptMatch(_ context.Context, m service.MatchDecision) error {
	if f.err != nil {
		return f.err
	}
	f.accepted = append(f.accepted, m)
	return nil
}

type fakeRecorder struct {
	recorded []service.SettlementAuthorization
	err      error
}

func (f *fakeRecorder) RecordSettlement(_ context.Context, a service.SettlementAuthorization) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, a)
	return nil
}

func validMatchEvent(t *testing.T) DealMatchedEvent {
	t.Helper()
	env, err := kafka.NewEnvelope(dealMatchedEventType, 1, "corr-1")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return DealMatchedEvent{
		Envelope:       env,
		DealID:         uuid.NewString(),
		AccountID:      "alice",
		RequestID:      1,
		OfferID:        3,
		UserCommitment: strings.Repeat("ab", 32),
		LPCommitment:   strings.Repeat("cd", 32),
		Advance:        2_850_000_000,
	}
}

func validSettlementEvent(t *testing.T) SettlementAuthorizedEvent {
	t.Helper()
	env, err := kafka.NewEnvelope(settlementAuthorizedEventType, 1, "corr-1")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return SettlementAuthorizedEvent{
		Envelope:    env,
		DealID:      uuid.NewString(),
		AccountID:   "alice",
		RequestID:   1,
		Amount:      3_000_000_000,
		CooldownEnd: 1_700_000_000,
		NoteHash:    strings.Repeat("ef", 32),
	}
}

func message(t *testing.T, topic string, event any) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: topic, Value: payload}
}

func TestMatchConsumerAcceptsDecision(t *testing.T) {
	accepter := &fakeAccepter{}
	c := NewMatchConsumer(accepter, nil)

	event := validMatchEvent(t)
	if err := c.HandleMessage(context.Background(), message(t, dealMatchedEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(accepter.accepted) != 1 {
		t.Fatalf("accepted count = %d, want 1", len(accepter.accepted))
	}
	got := accepter.accepted[0]
	if got.AccountID != "alice" || got.OfferID != 3 || got.Advance != 2_850_000_000 {
		t.Fatalf("decision = %+v", got)
	}
	if got.DealID.String() != event.DealID {
		t.Fatal("deal id not parsed")
	}
	if got.LPCommitment.String() != event.LPCommitment {
		t.Fatal("lp commitment not parsed")
	}
}

func TestMatchConsumerRejectsInvalid(t *testing.T) {
	c := NewMatchConsumer(&fakeAccepter{}, nil)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	if err := c.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("{not json")}); err == nil {
		t.Fatal("expected error for bad json")
	}

	bad := validMatchEvent(t)
	bad.DealID = "not-a-uuid"
	if err := c.HandleMessage(ctx, message(t, dealMatchedEventType, bad)); err == nil {
		t.Fatal("expected error for bad deal id")
	}

	bad = validMatchEvent(t)
	bad.UserCommitment = "zz"
	if err := c.HandleMessage(ctx, message(t, dealMatchedEventType, bad)); err == nil {
		t.Fatal("expected error for bad commitment")
	}

	bad = validMatchEvent(t)
	bad.EventType = "something.else"
	if err := c.HandleMessage(ctx, message(t, dealMatchedEventType, bad)); err == nil {
		t.Fatal("expected error for wrong event type")
	}

	bad = validMatchEvent(t)
	bad.OfferID = 0
	if err := c.HandleMessage(ctx, message(t, dealMatchedEventType, bad)); err == nil {
		t.Fatal("expected error for zero offer id")
	}
}

func TestSettlementConsumerRecordsAuthorization(t *testing.T) {
	recorder := &fakeRecorder{}
	c := NewSettlementConsumer(recorder, nil)

	event := validSettlementEvent(t)
	if err := c.HandleMessage(context.Background(), message(t, settlementAuthorizedEventType, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded count = %d, want 1", len(recorder.recorded))
	}
	got := recorder.recorded[0]
	if got.RequestID != 1 || got.Amount != 3_000_000_000 || got.CooldownEnd != 1_700_000_000 {
		t.Fatalf("authorization = %+v", got)
	}
	if got.NoteHash.String() != event.NoteHash {
		t.Fatal("note hash not parsed")
	}
}

func TestSettlementConsumerRejectsInvalid(t *testing.T) {
	c := NewSettlementConsumer(&fakeRecorder{}, nil)
	ctx := context.Background()

	bad := validSettlementEvent(t)
	bad.NoteHash = ""
	if err := c.HandleMessage(ctx, message(t, settlementAuthorizedEventType, bad)); err == nil {
		t.Fatal("expected error for missing note hash")
	}

	bad = validSettlementEvent(t)
	bad.Amount = 0
	if err := c.HandleMessage(ctx, message(t, settlementAuthorizedEventType, bad)); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestRouterDispatchesByTopic(t *testing.T) {
	accepter := &fakeAccepter{}
	recorder := &fakeRecorder{}
	router := kafka.NewRouter().
		Route(dealMatchedEventType, NewMatchConsumer(accepter, nil)).
		Route(settlementAuthorizedEventType, NewSettlementConsumer(recorder, nil))

	ctx := context.Background()
	if err := router.HandleMessage(ctx, message(t, dealMatchedEventType, validMatchEvent(t))); err != nil {
		t.Fatalf("route match: %v", err)
	}
	if err := router.HandleMessage(ctx, message(t, settlementAuthorizedEventType, validSettlementEvent(t))); err != nil {
		t.Fatalf("route settlement: %v", err)
	}
	if len(accepter.accepted) != 1 || len(recorder.recorded) != 1 {
		t.Fatalf("dispatch counts = %d/%d", len(accepter.accepted), len(recorder.recorded))
	}
	if err := router.HandleMessage(ctx, message(t, "unknown.topic", validMatchEvent(t))); err == nil {
		t.Fatal("expected error for unknown topic")
	}
	if got := len(router.Topics()); got != 2 {
		t.Fatalf("topics = %d, want 2", got)
	}
}
