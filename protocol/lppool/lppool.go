// Package lppool implements the pool-side ledgers: LP offers, the USDC
// balance they draw on, and the matched-deal settlement records.
package lppool

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/pricing"
)

var (
	ErrInvalidAmount       = errors.New("lppool: amount must be positive")
	ErrInvalidBounds       = errors.New("lppool: offer bounds must satisfy 0 < min <= max")
	ErrInvalidCommitment   = errors.New("lppool: commitment must be set")
	ErrInsufficientBalance = errors.New("lppool: insufficient pool balance")
	ErrOfferNotFound       = errors.New("lppool: offer not found")
	ErrOfferInactive       = errors.New("lppool: offer is not active")
	ErrAmountOutOfBounds   = errors.New("lppool: amount outside offer bounds")
	ErrDealNotFound        = errors.New("lppool: deal not found")
	ErrDealExists          = errors.New("lppool: deal id already used")
	ErrAlreadySettled      = errors.New("lppool: deal already settled")
)

// Offer record cell offsets.
const (
	offOfferCommitment = 0
	offOfferMax        = 1
	offOfferMin        = 2
	offOfferActive     = 3
	offOfferAPRBps     = 4
)

// Deal record cell offsets.
const (
	offDealUserCommitment = 0
	offDealAdvance        = 1
	offDealOfferID        = 2
	offDealSettled        = 3
	offDealNoteHash       = 4
	offDealStakedRecv     = 5
	offDealLPFee          = 6
	offDealInterest       = 7
)

// Scalar cells under the zero entity.
const (
	offBalance      = 0
	offTotalEarned  = 1
	offOfferCounter = 2
	offDealCounter  = 3
)

// Offer is a read model of a stored LP offer. CustomAPRBps of zero means
// the protocol default APR applies.
type Offer struct {
	ID           uint64
	Commitment   commit.Word
	MaxAmount    uint64
	MinAmount    uint64
	Active       bool
	CustomAPRBps uint64
}

// Deal is a read model of a matched deal and its settlement state.
type Deal struct {
	ID                 uuid.UUID
	UserCommitment     commit.Word
	Advance            uint64
	OfferID            uint64
	Settled            bool
	SettlementNoteHash commit.Word
	StakedReceived     uint64
	LPFee              uint64
	Interest           uint64
}

func dealEntity(id uuid.UUID) ledgerstore.EntityID {
	return ledgerstore.EntityID(id)
}

// Ledger operates one pool's namespace. AcceptMatch is the sole entry point
// that debits the balance; RecordSettlement is the sole one that credits
// earnings.
type Ledger struct {
	store ledgerstore.TxStore
	calc  pricing.Calculator
}

func NewLedger(store ledgerstore.TxStore, calc pricing.Calculator) *Ledger {
	return &Ledger{store: store, calc: calc}
}

// Balance returns the pool's available USDC.
func (l *Ledger) Balance(ctx context.Context) (uint64, error) {
	v, err := l.store.Get(ctx, ledgerstore.ZeroEntity, offBalance)
	if err != nil {
		return 0, err
	}
	return v.U64(), nil
}

// TotalEarned returns the pool's cumulative fee and interest earnings.
func (l *Ledger) TotalEarned(ctx context.Context) (uint64, error) {
	v, err := l.store.Get(ctx, ledgerstore.ZeroEntity, offTotalEarned)
	if err != nil {
		return 0, err
	}
	return v.U64(), nil
}

// DepositUSDC credits liquidity to the pool balance.
func (l *Ledger) DepositUSDC(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		return tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()+amount))
	})
}

// WithdrawUSDC debits liquidity from the pool balance. Funds reserved by
// open offers are not tracked separately; an LP withdrawing below its open
// offer sizes will see matches lose on the balance check instead.
func (l *Ledger) WithdrawUSDC(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		if bal.U64() < amount {
			return fmt.Errorf("%w: have %d, want %d", ErrInsufficientBalance, bal.U64(), amount)
		}
		return tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()-amount))
	})
}

// CreateOffer stores a new active offer. Bounds must satisfy 0 < min <= max
// and the pool must hold at least the offer's max amount at creation time.
// Offer IDs start at 1.
func (l *Ledger) CreateOffer(ctx context.Context, maxAmount, minAmount, customAPRBps uint64, commitment commit.Word) (uint64, error) {
	if maxAmount == 0 {
		return 0, ErrInvalidAmount
	}
	if minAmount == 0 || minAmount > maxAmount {
		return 0, fmt.Errorf("%w: min %d, max %d", ErrInvalidBounds, minAmount, maxAmount)
	}
	if commitment.IsZero() {
		return 0, ErrInvalidCommitment
	}
	var offerID uint64
	err := l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		if bal.U64() < maxAmount {
			return fmt.Errorf("%w: have %d, offer max %d", ErrInsufficientBalance, bal.U64(), maxAmount)
		}
		counter, err := tx.Get(ctx, ledgerstore.ZeroEntity, offOfferCounter)
		if err != nil {
			return err
		}
		offerID = counter.U64() + 1

		entity := ledgerstore.U64Entity(offerID)
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offOfferCounter, ledgerstore.U64Value(offerID)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offOfferCommitment, ledgerstore.Value(commitment)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offOfferMax, ledgerstore.U64Value(maxAmount)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offOfferMin, ledgerstore.U64Value(minAmount)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offOfferAPRBps, ledgerstore.U64Value(customAPRBps)); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offOfferActive, ledgerstore.BoolValue(true))
	})
	if err != nil {
		return 0, err
	}
	return offerID, nil
}

// GetOffer loads an offer record.
func (l *Ledger) GetOffer(ctx context.Context, offerID uint64) (Offer, error) {
	var o Offer
	err := readOffer(ctx, l.store, offerID, &o)
	return o, err
}

func readOffer(ctx context.Context, s ledgerstore.Store, offerID uint64, o *Offer) error {
	entity := ledgerstore.U64Entity(offerID)
	c, err := s.Get(ctx, entity, offOfferCommitment)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return fmt.Errorf("%w: id %d", ErrOfferNotFound, offerID)
	}
	max, err := s.Get(ctx, entity, offOfferMax)
	if err != nil {
		return err
	}
	min, err := s.Get(ctx, entity, offOfferMin)
	if err != nil {
		return err
	}
	active, err := s.Get(ctx, entity, offOfferActive)
	if err != nil {
		return err
	}
	apr, err := s.Get(ctx, entity, offOfferAPRBps)
	if err != nil {
		return err
	}
	*o = Offer{
		ID:           offerID,
		Commitment:   commit.Word(c),
		MaxAmount:    max.U64(),
		MinAmount:    min.U64(),
		Active:       !active.IsZero(),
		CustomAPRBps: apr.U64(),
	}
	return nil
}

// CancelOffer deactivates an offer. Cancelling an already inactive offer
// fails with ErrOfferInactive and changes nothing.
func (l *Ledger) CancelOffer(ctx context.Context, offerID uint64) error {
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var o Offer
		if err := readOffer(ctx, tx, offerID, &o); err != nil {
			return err
		}
		if !o.Active {
			return fmt.Errorf("%w: id %d", ErrOfferInactive, offerID)
		}
		return tx.Set(ctx, ledgerstore.U64Entity(offerID), offOfferActive, ledgerstore.BoolValue(false))
	})
}

// AcceptMatch commits a provisional match: it debits the pool balance by
// the advance amount and writes the deal record, all or nothing. Racing
// matches for the same capacity are resolved by whichever commits first;
// the loser gets an error and must re-match against fresh state.
func (l *Ledger) AcceptMatch(ctx context.Context, dealID uuid.UUID, offerID uint64, userCommitment commit.Word, advance uint64) error {
	if userCommitment.IsZero() {
		return ErrInvalidCommitment
	}
	if advance == 0 {
		return ErrInvalidAmount
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var o Offer
		if err := readOffer(ctx, tx, offerID, &o); err != nil {
			return err
		}
		if !o.Active {
			return fmt.Errorf("%w: id %d", ErrOfferInactive, offerID)
		}
		if advance < o.MinAmount || advance > o.MaxAmount {
			return fmt.Errorf("%w: advance %d, bounds [%d, %d]", ErrAmountOutOfBounds, advance, o.MinAmount, o.MaxAmount)
		}
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		if bal.U64() < advance {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, bal.U64(), advance)
		}
		entity := dealEntity(dealID)
		existing, err := tx.Get(ctx, entity, offDealUserCommitment)
		if err != nil {
			return err
		}
		if !existing.IsZero() {
			return fmt.Errorf("%w: %s", ErrDealExists, dealID)
		}
		counter, err := tx.Get(ctx, ledgerstore.ZeroEntity, offDealCounter)
		if err != nil {
			return err
		}

		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()-advance)); err != nil {
			return err
		}
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offDealCounter, ledgerstore.U64Value(counter.U64()+1)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offDealUserCommitment, ledgerstore.Value(userCommitment)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offDealAdvance, ledgerstore.U64Value(advance)); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offDealOfferID, ledgerstore.U64Value(offerID))
	})
}

// GetDeal loads a deal record.
func (l *Ledger) GetDeal(ctx context.Context, dealID uuid.UUID) (Deal, error) {
	var d Deal
	err := readDeal(ctx, l.store, dealID, &d)
	return d, err
}

func readDeal(ctx context.Context, s ledgerstore.Store, dealID uuid.UUID, d *Deal) error {
	entity := dealEntity(dealID)
	c, err := s.Get(ctx, entity, offDealUserCommitment)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return fmt.Errorf("%w: %s", ErrDealNotFound, dealID)
	}
	advance, err := s.Get(ctx, entity, offDealAdvance)
	if err != nil {
		return err
	}
	offerID, err := s.Get(ctx, entity, offDealOfferID)
	if err != nil {
		return err
	}
	settled, err := s.Get(ctx, entity, offDealSettled)
	if err != nil {
		return err
	}
	noteHash, err := s.Get(ctx, entity, offDealNoteHash)
	if err != nil {
		return err
	}
	staked, err := s.Get(ctx, entity, offDealStakedRecv)
	if err != nil {
		return err
	}
	lpFee, err := s.Get(ctx, entity, offDealLPFee)
	if err != nil {
		return err
	}
	interest, err := s.Get(ctx, entity, offDealInterest)
	if err != nil {
		return err
	}
	*d = Deal{
		ID:                 dealID,
		UserCommitment:     commit.Word(c),
		Advance:            advance.U64(),
		OfferID:            offerID.U64(),
		Settled:            !settled.IsZero(),
		SettlementNoteHash: commit.Word(noteHash),
		StakedReceived:     staked.U64(),
		LPFee:              lpFee.U64(),
		Interest:           interest.U64(),
	}
	return nil
}

// RecordSettlement finalizes a deal: the pool receives the staked assets
// plus its share of the advance fee plus interest, and the deal is flagged
// settled. A deal settles exactly once.
func (l *Ledger) RecordSettlement(ctx context.Context, dealID uuid.UUID, stakedReceived, feeEarned, interestEarned uint64, noteHash commit.Word) error {
	if noteHash.IsZero() {
		return fmt.Errorf("lppool: settlement note hash must be set")
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var d Deal
		if err := readDeal(ctx, tx, dealID, &d); err != nil {
			return err
		}
		if d.Settled {
			return fmt.Errorf("%w: %s", ErrAlreadySettled, dealID)
		}
		lpFee := l.calc.LPFeeShare(feeEarned)
		credit := stakedReceived + lpFee + interestEarned

		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		earned, err := tx.Get(ctx, ledgerstore.ZeroEntity, offTotalEarned)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()+credit)); err != nil {
			return err
		}
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offTotalEarned, ledgerstore.U64Value(earned.U64()+lpFee+interestEarned)); err != nil {
			return err
		}

		entity := dealEntity(dealID)
		if err := tx.Set(ctx, entity, offDealSettled, ledgerstore.BoolValue(true)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offDealNoteHash, ledgerstore.Value(noteHash)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offDealStakedRecv, ledgerstore.U64Value(stakedReceived)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offDealLPFee, ledgerstore.U64Value(lpFee)); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offDealInterest, ledgerstore.U64Value(interestEarned))
	})
}
