package service

import (
	"github.com/zakkycrypt01/voile/libs/kafka"
)

const DealMatchedEventType = "deals.matched"

// DealMatchedEvent is the engine's provisional pairing. The pool ledger
// decides whether the match actually commits.
type DealMatchedEvent struct {
	kafka.Envelope
	DealID         string `json:"deal_id"`
	AccountID      string `json:"account_id"`
	RequestID      uint64 `json:"request_id"`
	OfferID        uint64 `json:"offer_id"`
	UserCommitment string `json:"user_commitment"`
	LPCommitment   string `json:"lp_commitment"`
	Advance        uint64 `json:"advance"`
}
