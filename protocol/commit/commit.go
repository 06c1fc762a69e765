// Package commit provides the domain-separated commitments that keep unlock
// requests and LP offers private until settlement. Commitments are 32-byte
// words; the zero word is reserved as the "unset" sentinel and is never a
// valid commitment output.
package commit

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Word is a 32-byte commitment or hash value.
type Word [32]byte

// ZeroWord is the unset sentinel.
var ZeroWord Word

func (w Word) IsZero() bool {
	return w == ZeroWord
}

func (w Word) String() string {
	return hex.EncodeToString(w[:])
}

// ParseWord decodes a 64-character hex string into a Word.
func ParseWord(s string) (Word, error) {
	var w Word
	if len(s) != 64 {
		return w, fmt.Errorf("commitment must be 64 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return w, fmt.Errorf("invalid commitment hex: %w", err)
	}
	copy(w[:], b)
	return w, nil
}

// Hasher produces domain-separated commitment words.
type Hasher interface {
	Sum(domain string, fields ...[]byte) Word
}

// Blake3Hasher is the default Hasher.
type Blake3Hasher struct{}

func NewBlake3Hasher() Blake3Hasher { return Blake3Hasher{} }

func (Blake3Hasher) Sum(domain string, fields ...[]byte) Word {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	for _, f := range fields {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(f)))
		h.Write(n[:])
		h.Write(f)
	}
	var w Word
	copy(w[:], h.Sum(nil))
	return w
}

func u64be(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// NewNullifierSecret draws a fresh random secret for a commitment.
func NewNullifierSecret() (Word, error) {
	var w Word
	if _, err := rand.Read(w[:]); err != nil {
		return w, fmt.Errorf("generating nullifier secret: %w", err)
	}
	return w, nil
}

// RequestCommitment commits to an unlock request without revealing the
// requester's identity on any shared surface. The ledger stores it opaquely;
// settlement re-derives it from the revealed fields for verification.
func RequestCommitment(h Hasher, userID string, amount, cooldownEnd uint64, secret Word) Word {
	return h.Sum("voile.request.v1", []byte(userID), u64be(amount), u64be(cooldownEnd), secret[:])
}

// OfferCommitment commits to an LP offer's identity and bounds.
func OfferCommitment(h Hasher, lpID string, maxAmount, minAmount uint64, secret Word) Word {
	return h.Sum("voile.offer.v1", []byte(lpID), u64be(maxAmount), u64be(minAmount), secret[:])
}

// Nullifier derives the spend nullifier for a commitment secret. Revealing
// it authorizes settlement exactly once.
func Nullifier(h Hasher, secret Word) Word {
	return h.Sum("voile.nullifier.v1", secret[:])
}
