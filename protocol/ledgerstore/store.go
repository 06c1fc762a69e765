// Package ledgerstore provides the keyed cell store backing the protocol
// ledgers. A store is a map from (entity, offset) to a 32-byte value within
// a namespace; the zero value means the cell has never been written.
package ledgerstore

import (
	"context"
	"encoding/binary"
)

// EntityID identifies a record within a namespace. Scalar namespace state
// lives under the zero entity; numeric record IDs are packed into the last
// eight bytes so they never collide with UUID-derived entities.
type EntityID [16]byte

// ZeroEntity holds a namespace's scalar cells (balances, counters).
var ZeroEntity EntityID

// U64Entity packs a numeric record ID into an EntityID.
func U64Entity(id uint64) EntityID {
	var e EntityID
	binary.BigEndian.PutUint64(e[8:], id)
	return e
}

// Value is a 32-byte cell value. The zero value is the unset sentinel.
type Value [32]byte

var ZeroValue Value

func (v Value) IsZero() bool {
	return v == ZeroValue
}

// U64 reads the cell as a big-endian uint64 stored in the last eight bytes.
func (v Value) U64() uint64 {
	return binary.BigEndian.Uint64(v[24:])
}

// U64Value encodes a uint64 into a cell value.
func U64Value(n uint64) Value {
	var v Value
	binary.BigEndian.PutUint64(v[24:], n)
	return v
}

// BoolValue encodes a flag; false maps to the unset sentinel on purpose so
// "never written" and "cleared" read the same.
func BoolValue(b bool) Value {
	if b {
		return U64Value(1)
	}
	return ZeroValue
}

// Store reads and writes cells within a single namespace.
type Store interface {
	// Get returns the cell value, or the zero Value if never written.
	Get(ctx context.Context, entity EntityID, offset uint8) (Value, error)
	Set(ctx context.Context, entity EntityID, offset uint8, value Value) error
}

// TxStore runs a function against a Store with transactional semantics:
// either every Set in fn is applied, or none are. Concurrent transactions
// on the same namespace are serialized by the backend.
type TxStore interface {
	Store
	RunInTx(ctx context.Context, fn func(Store) error) error
}

// Factory opens a TxStore for a namespace. Services use per-user and
// per-pool namespaces so unrelated accounts never contend.
type Factory interface {
	Namespace(name string) TxStore
}
