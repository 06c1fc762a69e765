package service

import (
	"github.com/zakkycrypt01/voile/libs/kafka"
)

const (
	UnlockRequestedEventType      = "unlock.requested"
	SettlementAuthorizedEventType = "settlements.authorized"
	RequestCancelledEventType     = "unlock.cancelled"
)

// UnlockRequestedEvent announces a new unlock request to the matching
// engine. Amounts are raw base units; the commitment is hex.
type UnlockRequestedEvent struct {
	kafka.Envelope
	AccountID   string `json:"account_id"`
	RequestID   uint64 `json:"request_id"`
	Amount      uint64 `json:"amount"`
	Commitment  string `json:"commitment"`
	CooldownEnd uint64 `json:"cooldown_end"`
}

// RequestCancelledEvent lets downstream snapshots drop a pending request.
type RequestCancelledEvent struct {
	kafka.Envelope
	AccountID string `json:"account_id"`
	RequestID uint64 `json:"request_id"`
}

// SettlementAuthorizedEvent tells the pool side that the user's ledger has
// released the locked asset for a deal.
type SettlementAuthorizedEvent struct {
	kafka.Envelope
	DealID      string `json:"deal_id"`
	AccountID   string `json:"account_id"`
	RequestID   uint64 `json:"request_id"`
	Amount      uint64 `json:"amount"`
	CooldownEnd uint64 `json:"cooldown_end"`
	NoteHash    string `json:"note_hash"`
}
