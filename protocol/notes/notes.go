// Package notes defines the transfer notes exchanged between the user and
// LP pool ledgers at match and settlement time. Only note hashes are stored
// on ledgers; the note bodies travel over the service APIs.
package notes

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/protocol/commit"
)

func u64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// AdvanceNote carries the stablecoin advance from pool to user when a deal
// is matched.
type AdvanceNote struct {
	DealID         uuid.UUID
	OfferID        uint64
	Advance        uint64
	UserCommitment commit.Word
}

func (n AdvanceNote) Hash(h commit.Hasher) commit.Word {
	return h.Sum("voile.note.advance.v1",
		n.DealID[:], u64be(n.OfferID), u64be(n.Advance), n.UserCommitment[:])
}

// SettlementNote carries the staked asset release from user to pool after
// the cooldown. Both ledgers record the same hash, which is how the two
// sides of a settlement are tied together.
type SettlementNote struct {
	DealID      uuid.UUID
	RequestID   uint64
	Amount      uint64
	CooldownEnd uint64
}

func (n SettlementNote) Hash(h commit.Hasher) commit.Word {
	return h.Sum("voile.note.settlement.v1",
		n.DealID[:], u64be(n.RequestID), u64be(n.Amount), u64be(n.CooldownEnd))
}
