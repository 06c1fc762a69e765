// Package useraccount implements the per-user unlock-request ledger: locked
// balance, private unlock requests, and the settlement authorization gate.
package useraccount

import (
	"context"
	"errors"
	"fmt"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
)

var (
	ErrInvalidAmount       = errors.New("useraccount: amount must be positive")
	ErrInvalidCommitment   = errors.New("useraccount: commitment must be set")
	ErrInsufficientBalance = errors.New("useraccount: insufficient locked balance")
	ErrRequestNotFound     = errors.New("useraccount: unlock request not found")
	ErrAlreadyMatched      = errors.New("useraccount: request already matched")
	ErrNotMatched          = errors.New("useraccount: request not matched")
	ErrAlreadySettled      = errors.New("useraccount: request already settled")
	ErrCooldownActive      = errors.New("useraccount: cooldown has not elapsed")
	ErrCommitmentMismatch  = errors.New("useraccount: stored commitment does not match")
)

// Request record cell offsets.
const (
	offCommitment   = 0
	offLPCommitment = 1
	offAmount       = 2
	offSettled      = 3
	offNoteHash     = 4
	offCooldownEnd  = 5
)

// Scalar cells under the zero entity.
const (
	offBalance        = 0
	offRequestCounter = 1
)

// Request is a read model of a stored unlock request.
type Request struct {
	ID                 uint64
	Commitment         commit.Word
	LPCommitment       commit.Word
	Amount             uint64
	CooldownEnd        uint64
	Settled            bool
	SettlementNoteHash commit.Word
}

func (r Request) Matched() bool {
	return !r.LPCommitment.IsZero()
}

// Ledger operates one user's account namespace. Commitments are opaque to
// it; callers derive and verify them. Safe for concurrent use, the store
// serializes transactions.
type Ledger struct {
	store ledgerstore.TxStore
}

func NewLedger(store ledgerstore.TxStore) *Ledger {
	return &Ledger{store: store}
}

// Balance returns the locked balance available for new unlock requests.
// Amounts inside open requests are excluded; they return on cancellation.
func (l *Ledger) Balance(ctx context.Context) (uint64, error) {
	v, err := l.store.Get(ctx, ledgerstore.ZeroEntity, offBalance)
	if err != nil {
		return 0, err
	}
	return v.U64(), nil
}

// Deposit credits locked asset to the available balance.
func (l *Ledger) Deposit(ctx context.Context, amount uint64) error {
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

// CreateUnlockRequest debits amount from the available balance under a
// fresh request record. Request IDs are allocated monotonically from 1.
func (l *Ledger) CreateUnlockRequest(ctx context.Context, amount, cooldownEnd uint64, commitment commit.Word) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if commitment.IsZero() {
		return 0, ErrInvalidCommitment
	}
	var requestID uint64
	err := l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		if bal.U64() < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, bal.U64(), amount)
		}
		counter, err := tx.Get(ctx, ledgerstore.ZeroEntity, offRequestCounter)
		if err != nil {
			return err
		}
		requestID = counter.U64() + 1

		entity := ledgerstore.U64Entity(requestID)
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()-amount)); err != nil {
			return err
		}
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offRequestCounter, ledgerstore.U64Value(requestID)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offCommitment, ledgerstore.Value(commitment)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offAmount, ledgerstore.U64Value(amount)); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offCooldownEnd, ledgerstore.U64Value(cooldownEnd))
	})
	if err != nil {
		return 0, err
	}
	return requestID, nil
}

// GetRequest loads a request record.
func (l *Ledger) GetRequest(ctx context.Context, requestID uint64) (Request, error) {
	var r Request
	err := readRequest(ctx, l.store, requestID, &r)
	return r, err
}

// VerifyRequest reports whether a request exists and its stored commitment
// equals the expected one. A missing request is a false verdict, not an
// error.
func (l *Ledger) VerifyRequest(ctx context.Context, requestID uint64, expected commit.Word) (bool, error) {
	c, err := l.store.Get(ctx, ledgerstore.U64Entity(requestID), offCommitment)
	if err != nil {
		return false, err
	}
	if c.IsZero() {
		return false, nil
	}
	return commit.Word(c) == expected, nil
}

func readRequest(ctx context.Context, s ledgerstore.Store, requestID uint64, r *Request) error {
	entity := ledgerstore.U64Entity(requestID)
	c, err := s.Get(ctx, entity, offCommitment)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return fmt.Errorf("%w: id %d", ErrRequestNotFound, requestID)
	}
	lp, err := s.Get(ctx, entity, offLPCommitment)
	if err != nil {
		return err
	}
	amount, err := s.Get(ctx, entity, offAmount)
	if err != nil {
		return err
	}
	settled, err := s.Get(ctx, entity, offSettled)
	if err != nil {
		return err
	}
	noteHash, err := s.Get(ctx, entity, offNoteHash)
	if err != nil {
		return err
	}
	cooldownEnd, err := s.Get(ctx, entity, offCooldownEnd)
	if err != nil {
		return err
	}
	*r = Request{
		ID:                 requestID,
		Commitment:         commit.Word(c),
		LPCommitment:       commit.Word(lp),
		Amount:             amount.U64(),
		CooldownEnd:        cooldownEnd.U64(),
		Settled:            !settled.IsZero(),
		SettlementNoteHash: commit.Word(noteHash),
	}
	return nil
}

// MarkMatched records the matched LP offer's commitment. A request matches
// at most once.
func (l *Ledger) MarkMatched(ctx context.Context, requestID uint64, lpCommitment commit.Word) error {
	if lpCommitment.IsZero() {
		return ErrInvalidCommitment
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var r Request
		if err := readRequest(ctx, tx, requestID, &r); err != nil {
			return err
		}
		if r.Settled {
			return fmt.Errorf("%w: id %d", ErrAlreadySettled, requestID)
		}
		if r.Matched() {
			return fmt.Errorf("%w: id %d", ErrAlreadyMatched, requestID)
		}
		return tx.Set(ctx, ledgerstore.U64Entity(requestID), offLPCommitment, ledgerstore.Value(lpCommitment))
	})
}

// CancelRequest zeroes an unmatched request and credits its amount back to
// the available balance. Matched requests have no cancellation path.
func (l *Ledger) CancelRequest(ctx context.Context, requestID uint64) error {
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var r Request
		if err := readRequest(ctx, tx, requestID, &r); err != nil {
			return err
		}
		if r.Matched() {
			return fmt.Errorf("%w: id %d", ErrAlreadyMatched, requestID)
		}
		bal, err := tx.Get(ctx, ledgerstore.ZeroEntity, offBalance)
		if err != nil {
			return err
		}
		entity := ledgerstore.U64Entity(requestID)
		if err := tx.Set(ctx, ledgerstore.ZeroEntity, offBalance, ledgerstore.U64Value(bal.U64()+r.Amount)); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offCommitment, ledgerstore.ZeroValue); err != nil {
			return err
		}
		if err := tx.Set(ctx, entity, offAmount, ledgerstore.ZeroValue); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offCooldownEnd, ledgerstore.ZeroValue)
	})
}

// AuthorizeSettlement is the single gate for releasing a matched request's
// locked asset. It refuses before the cooldown elapses, on unmatched or
// already settled requests, and when the caller's recomputed commitment
// disagrees with the stored one. On success it flags the request settled
// and records the settlement note hash.
func (l *Ledger) AuthorizeSettlement(ctx context.Context, requestID uint64, expectedCommitment, noteHash commit.Word, now uint64) error {
	if noteHash.IsZero() {
		return fmt.Errorf("useraccount: settlement note hash must be set")
	}
	return l.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		var r Request
		if err := readRequest(ctx, tx, requestID, &r); err != nil {
			return err
		}
		if r.Settled {
			return fmt.Errorf("%w: id %d", ErrAlreadySettled, requestID)
		}
		if !r.Matched() {
			return fmt.Errorf("%w: id %d", ErrNotMatched, requestID)
		}
		if now < r.CooldownEnd {
			return fmt.Errorf("%w: %d seconds remain", ErrCooldownActive, r.CooldownEnd-now)
		}
		if expectedCommitment != r.Commitment {
			return fmt.Errorf("%w: id %d", ErrCommitmentMismatch, requestID)
		}
		entity := ledgerstore.U64Entity(requestID)
		if err := tx.Set(ctx, entity, offSettled, ledgerstore.BoolValue(true)); err != nil {
			return err
		}
		return tx.Set(ctx, entity, offNoteHash, ledgerstore.Value(noteHash))
	})
}
