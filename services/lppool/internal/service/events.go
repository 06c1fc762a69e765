package service

import (
	"github.com/zakkycrypt01/voile/libs/kafka"
)

const (
	OfferCreatedEventType   = "offers.created"
	OfferCancelledEventType = "offers.cancelled"
	DealAcceptedEventType   = "deals.accepted"
	DealSettledEventType    = "deals.settled"
)

// OfferCreatedEvent feeds new offers into the matching engine's snapshot.
type OfferCreatedEvent struct {
	kafka.Envelope
	PoolID       string `json:"pool_id"`
	OfferID      uint64 `json:"offer_id"`
	MaxAmount    uint64 `json:"max_amount"`
	MinAmount    uint64 `json:"min_amount"`
	CustomAPRBps uint64 `json:"custom_apr_bps"`
	Commitment   string `json:"commitment"`
}

// OfferCancelledEvent removes an offer from downstream snapshots.
type OfferCancelledEvent struct {
	kafka.Envelope
	PoolID  string `json:"pool_id"`
	OfferID uint64 `json:"offer_id"`
}

// DealAcceptedEvent confirms that a provisional match has been committed
// on the pool ledger and the advance debited.
type DealAcceptedEvent struct {
	kafka.Envelope
	DealID          string `json:"deal_id"`
	AccountID       string `json:"account_id"`
	RequestID       uint64 `json:"request_id"`
	OfferID         uint64 `json:"offer_id"`
	Advance         uint64 `json:"advance"`
	LPCommitment    string `json:"lp_commitment"`
	AdvanceNoteHash string `json:"advance_note_hash"`
}

// DealSettledEvent reports a finalized deal and the pool's earnings on it.
type DealSettledEvent struct {
	kafka.Envelope
	DealID         string `json:"deal_id"`
	OfferID        uint64 `json:"offer_id"`
	StakedReceived uint64 `json:"staked_received"`
	LPFee          uint64 `json:"lp_fee"`
	Interest       uint64 `json:"interest"`
	NoteHash       string `json:"note_hash"`
}
