// Package service implements the pool-side operations: liquidity deposits,
// LP offers, match acceptance, and settlement recording.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/lppool"
	"github.com/zakkycrypt01/voile/protocol/notes"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/services/lppool/storage"
)

var (
	ErrCommitmentMismatch = errors.New("service: lp commitment does not match offer")
	ErrNoteMismatch       = errors.New("service: settlement note hash mismatch")
	ErrAdvanceMismatch    = errors.New("service: advance inconsistent with request amount")
)

// OfferIndex is the slice of the storage layer the service needs.
type OfferIndex interface {
	Upsert(ctx context.Context, rec storage.OfferRecord) error
	Deactivate(ctx context.Context, poolID string, offerID uint64) error
}

type Topics struct {
	OffersCreated   string
	OffersCancelled string
	DealsAccepted   string
	DealsSettled    string
}

// OfferReceipt is returned to the LP on offer creation. The secret is the
// LP's proof of offer ownership and is never stored server-side.
type OfferReceipt struct {
	OfferID    uint64
	Commitment commit.Word
	Secret     commit.Word
}

// MatchDecision is a provisional match produced by the matching engine.
type MatchDecision struct {
	DealID         uuid.UUID
	AccountID      string
	RequestID      uint64
	OfferID        uint64
	UserCommitment commit.Word
	LPCommitment   commit.Word
	Advance        uint64
}

// SettlementAuthorization is the user-side release of the staked asset.
type SettlementAuthorization struct {
	DealID      uuid.UUID
	AccountID   string
	RequestID   uint64
	Amount      uint64
	CooldownEnd uint64
	NoteHash    commit.Word
}

// PoolStats is the pool's public financial state.
type PoolStats struct {
	Balance     uint64
	TotalEarned uint64
}

type Service struct {
	stores   ledgerstore.Factory
	poolID   string
	offers   OfferIndex
	hasher   commit.Hasher
	calc     pricing.Calculator
	faucet   faucet.Faucet
	producer kafka.Publisher
	topics   Topics
	metrics  *Metrics
	logger   *slog.Logger
}

func New(stores ledgerstore.Factory, poolID string, offers OfferIndex, hasher commit.Hasher, calc pricing.Calculator, f faucet.Faucet, producer kafka.Publisher, topics Topics, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stores:   stores,
		poolID:   poolID,
		offers:   offers,
		hasher:   hasher,
		calc:     calc,
		faucet:   f,
		producer: producer,
		topics:   topics,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *Service) ledger() *lppool.Ledger {
	return lppool.NewLedger(s.stores.Namespace("lppool:"+s.poolID), s.calc)
}

// Deposit mints USDC liquidity into the pool.
func (s *Service) Deposit(ctx context.Context, amount uint64) error {
	if err := s.faucet.MintUSDC(ctx, s.ledger(), amount); err != nil {
		s.metrics.IncDeposit("error")
		return err
	}
	s.metrics.IncDeposit("ok")
	return nil
}

// Withdraw debits USDC liquidity from the pool.
func (s *Service) Withdraw(ctx context.Context, amount uint64) error {
	if err := s.ledger().WithdrawUSDC(ctx, amount); err != nil {
		s.metrics.IncWithdrawal("error")
		return err
	}
	s.metrics.IncWithdrawal("ok")
	return nil
}

// Stats returns the pool balance and cumulative earnings.
func (s *Service) Stats(ctx context.Context) (PoolStats, error) {
	ledger := s.ledger()
	balance, err := ledger.Balance(ctx)
	if err != nil {
		return PoolStats{}, err
	}
	earned, err := ledger.TotalEarned(ctx)
	if err != nil {
		return PoolStats{}, err
	}
	return PoolStats{Balance: balance, TotalEarned: earned}, nil
}

// GetOffer loads an offer from the pool ledger.
func (s *Service) GetOffer(ctx context.Context, offerID uint64) (lppool.Offer, error) {
	return s.ledger().GetOffer(ctx, offerID)
}

// GetDeal loads a deal from the pool ledger.
func (s *Service) GetDeal(ctx context.Context, dealID uuid.UUID) (lppool.Deal, error) {
	return s.ledger().GetDeal(ctx, dealID)
}

// CreateOffer commits a new offer under a fresh commitment and announces
// it to the matching engine. The LP keeps the returned secret.
func (s *Service) CreateOffer(ctx context.Context, lpID string, maxAmount, minAmount, customAPRBps uint64) (OfferReceipt, error) {
	secret, err := commit.NewNullifierSecret()
	if err != nil {
		s.metrics.IncOfferCreated("error")
		return OfferReceipt{}, err
	}
	commitment := commit.OfferCommitment(s.hasher, lpID, maxAmount, minAmount, secret)

	offerID, err := s.ledger().CreateOffer(ctx, maxAmount, minAmount, customAPRBps, commitment)
	if err != nil {
		s.metrics.IncOfferCreated("rejected")
		return OfferReceipt{}, err
	}

	if err := s.offers.Upsert(ctx, storage.OfferRecord{
		PoolID:       s.poolID,
		OfferID:      offerID,
		MaxAmount:    maxAmount,
		MinAmount:    minAmount,
		CustomAPRBps: customAPRBps,
		Commitment:   commitment[:],
		Active:       true,
	}); err != nil {
		s.metrics.IncOfferCreated("error")
		return OfferReceipt{}, err
	}

	eventID := kafka.DeterministicEventID(OfferCreatedEventType, s.poolID, strconv.FormatUint(offerID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, OfferCreatedEventType, 1, eventID)
	if err != nil {
		return OfferReceipt{}, err
	}
	event := OfferCreatedEvent{
		Envelope:     env,
		PoolID:       s.poolID,
		OfferID:      offerID,
		MaxAmount:    maxAmount,
		MinAmount:    minAmount,
		CustomAPRBps: customAPRBps,
		Commitment:   commitment.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OffersCreated, s.poolID, event); err != nil {
		s.metrics.IncOfferCreated("publish_error")
		return OfferReceipt{}, fmt.Errorf("publish offer created: %w", err)
	}

	s.metrics.IncOfferCreated("ok")
	return OfferReceipt{OfferID: offerID, Commitment: commitment, Secret: secret}, nil
}

// CancelOffer deactivates an offer and tells the matching engine to drop it.
func (s *Service) CancelOffer(ctx context.Context, offerID uint64) error {
	if err := s.ledger().CancelOffer(ctx, offerID); err != nil {
		s.metrics.IncOfferCancelled("rejected")
		return err
	}
	if err := s.offers.Deactivate(ctx, s.poolID, offerID); err != nil {
		s.metrics.IncOfferCancelled("error")
		return err
	}

	eventID := kafka.DeterministicEventID(OfferCancelledEventType, s.poolID, strconv.FormatUint(offerID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, OfferCancelledEventType, 1, eventID)
	if err != nil {
		return err
	}
	event := OfferCancelledEvent{Envelope: env, PoolID: s.poolID, OfferID: offerID}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OffersCancelled, s.poolID, event); err != nil {
		s.metrics.IncOfferCancelled("publish_error")
		return fmt.Errorf("publish offer cancelled: %w", err)
	}

	s.metrics.IncOfferCancelled("ok")
	return nil
}

// AcceptMatch commits a provisional match from the matching engine. A match
// that lost the race for offer capacity is dropped with a log line, not
// retried; the request stays open for a future re-match. A redelivered
// decision for an already committed deal republishes the acceptance.
func (s *Service) AcceptMatch(ctx context.Context, m MatchDecision) error {
	ledger := s.ledger()

	offer, err := ledger.GetOffer(ctx, m.OfferID)
	if err != nil {
		if errors.Is(err, lppool.ErrOfferNotFound) {
			s.metrics.IncMatchAccepted("stale")
			s.logger.Warn("match against unknown offer dropped", "deal_id", m.DealID, "offer_id", m.OfferID)
			return nil
		}
		return err
	}
	if offer.Commitment != m.LPCommitment {
		s.metrics.IncMatchAccepted("rejected")
		return fmt.Errorf("%w: offer %d", ErrCommitmentMismatch, m.OfferID)
	}

	err = ledger.AcceptMatch(ctx, m.DealID, m.OfferID, m.UserCommitment, m.Advance)
	switch {
	case err == nil:
	case errors.Is(err, lppool.ErrDealExists):
		s.metrics.IncMatchAccepted("duplicate")
	case errors.Is(err, lppool.ErrOfferInactive),
		errors.Is(err, lppool.ErrInsufficientBalance),
		errors.Is(err, lppool.ErrAmountOutOfBounds):
		s.metrics.IncMatchAccepted("lost_race")
		s.logger.Warn("provisional match lost the race", "deal_id", m.DealID, "offer_id", m.OfferID, "reason", err)
		return nil
	default:
		s.metrics.IncMatchAccepted("error")
		return err
	}

	noteHash := notes.AdvanceNote{
		DealID:         m.DealID,
		OfferID:        m.OfferID,
		Advance:        m.Advance,
		UserCommitment: m.UserCommitment,
	}.Hash(s.hasher)

	eventID := kafka.DeterministicEventID(DealAcceptedEventType, m.DealID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, DealAcceptedEventType, 1, eventID)
	if err != nil {
		return err
	}
	event := DealAcceptedEvent{
		Envelope:        env,
		DealID:          m.DealID.String(),
		AccountID:       m.AccountID,
		RequestID:       m.RequestID,
		OfferID:         m.OfferID,
		Advance:         m.Advance,
		LPCommitment:    m.LPCommitment.String(),
		AdvanceNoteHash: noteHash.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.DealsAccepted, m.AccountID, event); err != nil {
		s.metrics.IncMatchAccepted("publish_error")
		return fmt.Errorf("publish deal accepted: %w", err)
	}

	s.metrics.IncMatchAccepted("ok")
	return nil
}

// RecordSettlement applies a user-authorized settlement to the pool ledger.
// The note hash ties the authorization to the deal; the fee and interest
// are recomputed here from the request amount and the offer's APR.
func (s *Service) RecordSettlement(ctx context.Context, a SettlementAuthorization) error {
	ledger := s.ledger()

	deal, err := ledger.GetDeal(ctx, a.DealID)
	if err != nil {
		s.metrics.IncSettlementRecorded("error")
		return err
	}

	expected := notes.SettlementNote{
		DealID:      a.DealID,
		RequestID:   a.RequestID,
		Amount:      a.Amount,
		CooldownEnd: a.CooldownEnd,
	}.Hash(s.hasher)
	if expected != a.NoteHash {
		s.metrics.IncSettlementRecorded("rejected")
		return fmt.Errorf("%w: deal %s", ErrNoteMismatch, a.DealID)
	}
	if deal.Advance != s.calc.NetAdvance(a.Amount) {
		s.metrics.IncSettlementRecorded("rejected")
		return fmt.Errorf("%w: deal %s advance %d, amount %d", ErrAdvanceMismatch, a.DealID, deal.Advance, a.Amount)
	}

	offer, err := ledger.GetOffer(ctx, deal.OfferID)
	if err != nil {
		s.metrics.IncSettlementRecorded("error")
		return err
	}

	fee := s.calc.AdvanceFee(a.Amount)
	interest := s.calc.APRInterestAt(a.Amount, s.calc.EffectiveAPRBps(offer.CustomAPRBps), s.calc.CooldownDays())

	err = ledger.RecordSettlement(ctx, a.DealID, a.Amount, fee, interest, a.NoteHash)
	if errors.Is(err, lppool.ErrAlreadySettled) {
		s.metrics.IncSettlementRecorded("duplicate")
		return nil
	}
	if err != nil {
		s.metrics.IncSettlementRecorded("error")
		return err
	}

	settled, err := ledger.GetDeal(ctx, a.DealID)
	if err != nil {
		return err
	}

	eventID := kafka.DeterministicEventID(DealSettledEventType, a.DealID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, DealSettledEventType, 1, eventID)
	if err != nil {
		return err
	}
	event := DealSettledEvent{
		Envelope:       env,
		DealID:         a.DealID.String(),
		OfferID:        deal.OfferID,
		StakedReceived: settled.StakedReceived,
		LPFee:          settled.LPFee,
		Interest:       settled.Interest,
		NoteHash:       a.NoteHash.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.DealsSettled, s.poolID, event); err != nil {
		s.metrics.IncSettlementRecorded("publish_error")
		return fmt.Errorf("publish deal settled: %w", err)
	}

	s.metrics.IncSettlementRecorded("ok")
	return nil
}
