package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/notes"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/protocol/useraccount"
	"github.com/zakkycrypt01/voile/services/useraccount/storage"
)

// ErrDealNotIndexed means a request reads as matched on the ledger but the
// deal index has no row for it yet; the accepted-deal event is still in
// flight.
var ErrDealNotIndexed = errors.New("service: deal not indexed yet")

// DealIndex is the slice of storage the service needs.
type DealIndex interface {
	InsertDeal(ctx context.Context, rec storage.DealRecord) error
	GetDealByRequest(ctx context.Context, accountID string, requestID uint64) (storage.DealRecord, error)
}

// Topics names the streams this service publishes to.
type Topics struct {
	UnlockRequested       string
	UnlockCancelled       string
	SettlementsAuthorized string
}

// UnlockReceipt is returned to the user on request creation. The secret is
// shown exactly once; the service does not retain it.
type UnlockReceipt struct {
	RequestID   uint64
	Commitment  commit.Word
	CooldownEnd uint64
	Secret      commit.Word
}

// SettlementReceipt describes a finalized settlement authorization.
type SettlementReceipt struct {
	DealID      uuid.UUID
	RequestID   uint64
	Amount      uint64
	CooldownEnd uint64
	NoteHash    commit.Word
}

// AcceptedDeal is the consumer-side view of a pool-committed deal.
type AcceptedDeal struct {
	DealID       uuid.UUID
	AccountID    string
	RequestID    uint64
	Advance      uint64
	LPCommitment commit.Word
}

type Service struct {
	stores   ledgerstore.Factory
	deals    DealIndex
	hasher   commit.Hasher
	calc     pricing.Calculator
	faucet   faucet.Faucet
	producer kafka.Publisher
	topics   Topics
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(stores ledgerstore.Factory, deals DealIndex, hasher commit.Hasher, calc pricing.Calculator, f faucet.Faucet, producer kafka.Publisher, topics Topics, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stores:   stores,
		deals:    deals,
		hasher:   hasher,
		calc:     calc,
		faucet:   f,
		producer: producer,
		topics:   topics,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the settlement clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) account(accountID string) *useraccount.Ledger {
	return useraccount.NewLedger(s.stores.Namespace("useraccount:" + accountID))
}

// Deposit mints locked test asset into the account.
func (s *Service) Deposit(ctx context.Context, accountID string, amount uint64) error {
	if err := s.faucet.MintLocked(ctx, s.account(accountID), amount); err != nil {
		s.metrics.IncDeposit("error")
		return err
	}
	s.metrics.IncDeposit("ok")
	return nil
}

// Balance returns the account's free locked balance.
func (s *Service) Balance(ctx context.Context, accountID string) (uint64, error) {
	return s.account(accountID).Balance(ctx)
}

// GetRequest loads one of the account's unlock requests.
func (s *Service) GetRequest(ctx context.Context, accountID string, requestID uint64) (useraccount.Request, error) {
	return s.account(accountID).GetRequest(ctx, requestID)
}

// CreateUnlockRequest locks the amount under a fresh commitment and
// announces the request to the matching engine. The returned secret is the
// user's only means to authorize settlement later.
func (s *Service) CreateUnlockRequest(ctx context.Context, accountID string, amount uint64) (UnlockReceipt, error) {
	secret, err := commit.NewNullifierSecret()
	if err != nil {
		s.metrics.IncRequestCreated("error")
		return UnlockReceipt{}, err
	}
	cooldownEnd := uint64(s.now().Unix()) + s.calc.Params().CooldownSeconds
	commitment := commit.RequestCommitment(s.hasher, accountID, amount, cooldownEnd, secret)

	requestID, err := s.account(accountID).CreateUnlockRequest(ctx, amount, cooldownEnd, commitment)
	if err != nil {
		s.metrics.IncRequestCreated("rejected")
		return UnlockReceipt{}, err
	}

	eventID := kafka.DeterministicEventID(UnlockRequestedEventType, accountID, strconv.FormatUint(requestID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, UnlockRequestedEventType, 1, eventID)
	if err != nil {
		return UnlockReceipt{}, err
	}
	event := UnlockRequestedEvent{
		Envelope:    env,
		AccountID:   accountID,
		RequestID:   requestID,
		Amount:      amount,
		Commitment:  commitment.String(),
		CooldownEnd: cooldownEnd,
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.UnlockRequested, accountID, event); err != nil {
		s.metrics.IncRequestCreated("publish_error")
		return UnlockReceipt{}, fmt.Errorf("publish unlock request: %w", err)
	}

	s.metrics.IncRequestCreated("ok")
	return UnlockReceipt{
		RequestID:   requestID,
		Commitment:  commitment,
		CooldownEnd: cooldownEnd,
		Secret:      secret,
	}, nil
}

// CancelRequest cancels an unmatched request and tells the matching engine
// to forget it.
func (s *Service) CancelRequest(ctx context.Context, accountID string, requestID uint64) error {
	if err := s.account(accountID).CancelRequest(ctx, requestID); err != nil {
		s.metrics.IncRequestCancelled("rejected")
		return err
	}

	eventID := kafka.DeterministicEventID(RequestCancelledEventType, accountID, strconv.FormatUint(requestID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, RequestCancelledEventType, 1, eventID)
	if err != nil {
		return err
	}
	event := RequestCancelledEvent{Envelope: env, AccountID: accountID, RequestID: requestID}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.UnlockCancelled, accountID, event); err != nil {
		s.metrics.IncRequestCancelled("publish_error")
		return fmt.Errorf("publish cancel: %w", err)
	}

	s.metrics.IncRequestCancelled("ok")
	return nil
}

// ApplyAcceptedDeal marks the request matched on the user's ledger and
// indexes the deal. Redeliveries of the same deal are absorbed.
func (s *Service) ApplyAcceptedDeal(ctx context.Context, deal AcceptedDeal) error {
	err := s.account(deal.AccountID).MarkMatched(ctx, deal.RequestID, deal.LPCommitment)
	if err != nil {
		if errors.Is(err, useraccount.ErrAlreadyMatched) {
			existing, lookupErr := s.deals.GetDealByRequest(ctx, deal.AccountID, deal.RequestID)
			if lookupErr == nil && existing.DealID == deal.DealID {
				s.metrics.IncDealApplied("duplicate")
				return nil
			}
		}
		s.metrics.IncDealApplied("error")
		return err
	}

	rec := storage.DealRecord{
		AccountID:    deal.AccountID,
		RequestID:    deal.RequestID,
		DealID:       deal.DealID,
		Advance:      deal.Advance,
		LPCommitment: deal.LPCommitment[:],
	}
	if err := s.deals.InsertDeal(ctx, rec); err != nil {
		s.metrics.IncDealApplied("error")
		return err
	}
	s.metrics.IncDealApplied("ok")
	return nil
}

// AuthorizeSettlement opens the commitment with the user's secret, gates on
// the cooldown, records the settlement note hash, and notifies the pool.
func (s *Service) AuthorizeSettlement(ctx context.Context, accountID string, requestID uint64, secret commit.Word) (SettlementReceipt, error) {
	ledger := s.account(accountID)
	req, err := ledger.GetRequest(ctx, requestID)
	if err != nil {
		s.metrics.IncSettlementAuthorized("rejected")
		return SettlementReceipt{}, err
	}

	deal, err := s.deals.GetDealByRequest(ctx, accountID, requestID)
	if err != nil {
		s.metrics.IncSettlementAuthorized("rejected")
		if errors.Is(err, storage.ErrDealNotFound) {
			if req.Matched() {
				return SettlementReceipt{}, fmt.Errorf("%w: request %d", ErrDealNotIndexed, requestID)
			}
			return SettlementReceipt{}, fmt.Errorf("%w: request %d", useraccount.ErrNotMatched, requestID)
		}
		return SettlementReceipt{}, err
	}

	note := notes.SettlementNote{
		DealID:      deal.DealID,
		RequestID:   requestID,
		Amount:      req.Amount,
		CooldownEnd: req.CooldownEnd,
	}
	noteHash := note.Hash(s.hasher)
	expected := commit.RequestCommitment(s.hasher, accountID, req.Amount, req.CooldownEnd, secret)

	ok, err := ledger.VerifyRequest(ctx, requestID, expected)
	if err != nil {
		s.metrics.IncSettlementAuthorized("rejected")
		return SettlementReceipt{}, err
	}
	if !ok {
		s.metrics.IncSettlementAuthorized("rejected")
		return SettlementReceipt{}, fmt.Errorf("%w: request %d", useraccount.ErrCommitmentMismatch, requestID)
	}

	if err := ledger.AuthorizeSettlement(ctx, requestID, expected, noteHash, uint64(s.now().Unix())); err != nil {
		s.metrics.IncSettlementAuthorized("rejected")
		return SettlementReceipt{}, err
	}

	eventID := kafka.DeterministicEventID(SettlementAuthorizedEventType, deal.DealID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, SettlementAuthorizedEventType, 1, eventID)
	if err != nil {
		return SettlementReceipt{}, err
	}
	event := SettlementAuthorizedEvent{
		Envelope:    env,
		DealID:      deal.DealID.String(),
		AccountID:   accountID,
		RequestID:   requestID,
		Amount:      req.Amount,
		CooldownEnd: req.CooldownEnd,
		NoteHash:    noteHash.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.SettlementsAuthorized, deal.DealID.String(), event); err != nil {
		s.metrics.IncSettlementAuthorized("publish_error")
		return SettlementReceipt{}, fmt.Errorf("publish settlement: %w", err)
	}

	s.metrics.IncSettlementAuthorized("ok")
	return SettlementReceipt{
		DealID:      deal.DealID,
		RequestID:   requestID,
		Amount:      req.Amount,
		CooldownEnd: req.CooldownEnd,
		NoteHash:    noteHash,
	}, nil
}
