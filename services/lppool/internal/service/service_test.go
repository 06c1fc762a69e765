package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/notes"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/services/lppool/storage"
)

type published struct {
	Topic string
	Key   string
	Value any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Topic: topic, Key: key, Value: value})
	return 0, 0, nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}

type fakeOfferIndex struct {
	mu   sync.Mutex
	recs map[uint64]storage.OfferRecord
}

func (f *fakeOfferIndex) Upsert(_ context.Context, rec storage.OfferRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.OfferID] = rec
	return nil
}

func (f *fakeOfferIndex) Deactivate(_ context.Context, _ string, offerID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[offerID]; ok {
		rec.Active = false
		f.recs[offerID] = rec
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *fakePublisher, pricing.Calculator) {
	t.Helper()
	calc, err := pricing.NewCalculator(pricing.DefaultParams())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	publisher := &fakePublisher{}
	stores := ledgerstore.NewMemoryFactory()
	svc := New(
		stores,
		"main",
		&fakeOfferIndex{recs: map[uint64]storage.OfferRecord{}},
		commit.NewBlake3Hasher(),
		calc,
		faucet.New(stores.Namespace("faucet"), 0),
		publisher,
		Topics{
			OffersCreated:   "offers.created",
			OffersCancelled: "offers.cancelled",
			DealsAccepted:   "deals.accepted",
			DealsSettled:    "deals.settled",
		},
		nil,
		nil,
	)
	return svc, publisher, calc
}

const usdc = pricing.OneUSDC

func TestMatchAndSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, publisher, calc := newTestService(t)
	hasher := commit.NewBlake3Hasher()

	if err := svc.Deposit(ctx, 10_000*usdc); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	receipt, err := svc.CreateOffer(ctx, "lp-1", 5_000*usdc, 100*usdc, 0)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	amount := uint64(3_000 * usdc)
	advance := calc.NetAdvance(amount)
	userCommitment := hasher.Sum("test.user", []byte("alice"))
	decision := MatchDecision{
		DealID:         uuid.New(),
		AccountID:      "alice",
		RequestID:      1,
		OfferID:        receipt.OfferID,
		UserCommitment: userCommitment,
		LPCommitment:   receipt.Commitment,
		Advance:        advance,
	}
	if err := svc.AcceptMatch(ctx, decision); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}
	if got := publisher.count("deals.accepted"); got != 1 {
		t.Fatalf("deals.accepted count = %d, want 1", got)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Balance != 10_000*usdc-advance {
		t.Fatalf("balance = %d, want %d", stats.Balance, 10_000*usdc-advance)
	}

	deal, err := svc.GetDeal(ctx, decision.DealID)
	if err != nil {
		t.Fatalf("GetDeal: %v", err)
	}
	if deal.Advance != advance || deal.OfferID != receipt.OfferID || deal.Settled {
		t.Fatalf("deal = %+v", deal)
	}

	// Redelivery republishes the acceptance without double-debiting.
	if err := svc.AcceptMatch(ctx, decision); err != nil {
		t.Fatalf("redelivered AcceptMatch: %v", err)
	}
	stats, _ = svc.Stats(ctx)
	if stats.Balance != 10_000*usdc-advance {
		t.Fatalf("balance after redelivery = %d", stats.Balance)
	}

	cooldownEnd := uint64(1_700_000_000)
	note := notes.SettlementNote{
		DealID:      decision.DealID,
		RequestID:   1,
		Amount:      amount,
		CooldownEnd: cooldownEnd,
	}
	auth := SettlementAuthorization{
		DealID:      decision.DealID,
		AccountID:   "alice",
		RequestID:   1,
		Amount:      amount,
		CooldownEnd: cooldownEnd,
		NoteHash:    note.Hash(hasher),
	}

	badAuth := auth
	badAuth.NoteHash = hasher.Sum("test.bogus")
	if err := svc.RecordSettlement(ctx, badAuth); !errors.Is(err, ErrNoteMismatch) {
		t.Fatalf("bogus note error = %v, want ErrNoteMismatch", err)
	}

	if err := svc.RecordSettlement(ctx, auth); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}

	fee := calc.AdvanceFee(amount)
	lpFee := calc.LPFeeShare(fee)
	interest := calc.APRInterestAt(amount, calc.EffectiveAPRBps(0), calc.CooldownDays())

	settled, err := svc.GetDeal(ctx, decision.DealID)
	if err != nil {
		t.Fatalf("GetDeal after settle: %v", err)
	}
	if !settled.Settled || settled.StakedReceived != amount || settled.LPFee != lpFee || settled.Interest != interest {
		t.Fatalf("settled deal = %+v", settled)
	}

	stats, _ = svc.Stats(ctx)
	wantBalance := 10_000*usdc - advance + amount + lpFee + interest
	if stats.Balance != wantBalance {
		t.Fatalf("final balance = %d, want %d", stats.Balance, wantBalance)
	}
	if stats.TotalEarned != lpFee+interest {
		t.Fatalf("total earned = %d, want %d", stats.TotalEarned, lpFee+interest)
	}

	// A redelivered authorization settles nothing further.
	if err := svc.RecordSettlement(ctx, auth); err != nil {
		t.Fatalf("redelivered RecordSettlement: %v", err)
	}
	stats, _ = svc.Stats(ctx)
	if stats.Balance != wantBalance {
		t.Fatalf("balance after redelivered settle = %d", stats.Balance)
	}
	if got := publisher.count("deals.settled"); got != 1 {
		t.Fatalf("deals.settled count = %d, want 1", got)
	}
}

func TestAcceptMatchRejectsWrongCommitment(t *testing.T) {
	ctx := context.Background()
	svc, _, calc := newTestService(t)
	hasher := commit.NewBlake3Hasher()

	if err := svc.Deposit(ctx, 10_000*usdc); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	receipt, err := svc.CreateOffer(ctx, "lp-1", 5_000*usdc, 100*usdc, 0)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	decision := MatchDecision{
		DealID:         uuid.New(),
		AccountID:      "alice",
		RequestID:      1,
		OfferID:        receipt.OfferID,
		UserCommitment: hasher.Sum("test.user", []byte("alice")),
		LPCommitment:   hasher.Sum("test.wrong"),
		Advance:        calc.NetAdvance(1_000 * usdc),
	}
	if err := svc.AcceptMatch(ctx, decision); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("error = %v, want ErrCommitmentMismatch", err)
	}
}

func TestAcceptMatchDropsLostRace(t *testing.T) {
	ctx := context.Background()
	svc, publisher, calc := newTestService(t)
	hasher := commit.NewBlake3Hasher()

	if err := svc.Deposit(ctx, 10_000*usdc); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	receipt, err := svc.CreateOffer(ctx, "lp-1", 5_000*usdc, 100*usdc, 0)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := svc.CancelOffer(ctx, receipt.OfferID); err != nil {
		t.Fatalf("CancelOffer: %v", err)
	}

	// The engine matched against a snapshot that still had the offer.
	decision := MatchDecision{
		DealID:         uuid.New(),
		AccountID:      "alice",
		RequestID:      1,
		OfferID:        receipt.OfferID,
		UserCommitment: hasher.Sum("test.user", []byte("alice")),
		LPCommitment:   receipt.Commitment,
		Advance:        calc.NetAdvance(1_000 * usdc),
	}
	if err := svc.AcceptMatch(ctx, decision); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}
	if got := publisher.count("deals.accepted"); got != 0 {
		t.Fatalf("deals.accepted count = %d, want 0", got)
	}
	if _, err := svc.GetDeal(ctx, decision.DealID); err == nil {
		t.Fatalf("deal should not exist after a lost race")
	}
}
