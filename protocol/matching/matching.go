// Package matching implements the off-chain matching engine. It runs over
// a local snapshot of known offers, performs no I/O, and never mutates
// ledger state; a produced match is provisional until the pool ledger
// commits it.
package matching

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/pricing"
)

// Request is the matching view of an unlock request.
type Request struct {
	RequestID  uint64
	Amount     uint64
	Commitment commit.Word
}

// Offer is the matching view of an LP offer. CustomAPRBps of zero means
// the protocol default applies.
type Offer struct {
	OfferID      uint64
	MinAmount    uint64
	MaxAmount    uint64
	CustomAPRBps uint64
	Commitment   commit.Word
	Active       bool
}

// MatchedDeal is a provisional pairing of a request with the best offer.
type MatchedDeal struct {
	DealID         uuid.UUID
	RequestID      uint64
	OfferID        uint64
	UserCommitment commit.Word
	LPCommitment   commit.Word
	Advance        uint64
}

// FindMatches returns the eligible offers for a request, best-priced
// first: ascending by effective APR, insertion order breaking ties. The
// input slice is not modified.
func FindMatches(calc pricing.Calculator, req Request, offers []Offer) []Offer {
	eligible := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if o.Active && o.MinAmount <= req.Amount && req.Amount <= o.MaxAmount {
			eligible = append(eligible, o)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return calc.EffectiveAPRBps(eligible[i].CustomAPRBps) < calc.EffectiveAPRBps(eligible[j].CustomAPRBps)
	})
	return eligible
}

// MatchRequest selects the best eligible offer and constructs a deal with
// a fresh id and the fee-net advance. It returns false when no offer is
// eligible; that is an empty result, not an error.
func MatchRequest(calc pricing.Calculator, req Request, offers []Offer) (MatchedDeal, bool) {
	eligible := FindMatches(calc, req, offers)
	if len(eligible) == 0 {
		return MatchedDeal{}, false
	}
	best := eligible[0]
	return MatchedDeal{
		DealID:         uuid.New(),
		RequestID:      req.RequestID,
		OfferID:        best.OfferID,
		UserCommitment: req.Commitment,
		LPCommitment:   best.Commitment,
		Advance:        calc.NetAdvance(req.Amount),
	}, true
}

// Engine holds a mutable snapshot of known offers and matches requests
// against it. Many goroutines may match concurrently; snapshot updates
// take the write path.
type Engine struct {
	calc pricing.Calculator

	mu     sync.RWMutex
	offers []Offer
	index  map[uint64]int
}

func NewEngine(calc pricing.Calculator) *Engine {
	return &Engine{calc: calc, index: make(map[uint64]int)}
}

// UpsertOffer adds an offer to the snapshot or replaces it in place. A
// replaced offer keeps its original position, so tie-breaking stays stable
// across updates.
func (e *Engine) UpsertOffer(o Offer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[o.OfferID]; ok {
		e.offers[i] = o
		return
	}
	e.index[o.OfferID] = len(e.offers)
	e.offers = append(e.offers, o)
}

// DeactivateOffer marks a snapshot offer inactive. Unknown ids are
// ignored; the snapshot may lag the ledger.
func (e *Engine) DeactivateOffer(offerID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[offerID]; ok {
		e.offers[i].Active = false
	}
}

// Snapshot returns a copy of the current offers in insertion order.
func (e *Engine) Snapshot() []Offer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Offer, len(e.offers))
	copy(out, e.offers)
	return out
}

// Match runs the matching algorithm over the current snapshot.
func (e *Engine) Match(req Request) (MatchedDeal, bool) {
	return MatchRequest(e.calc, req, e.Snapshot())
}

// Find returns the ordered eligible offers from the current snapshot.
func (e *Engine) Find(req Request) []Offer {
	return FindMatches(e.calc, req, e.Snapshot())
}
