package ledgerstore

import (
	"context"
	"errors"
	"testing"
)

func TestUnsetCellReadsZero(t *testing.T) {
	s := NewMemory()
	v, err := s.Get(context.Background(), U64Entity(1), 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !v.IsZero() {
		t.Fatalf("unset cell = %v, want zero", v)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Set(ctx, U64Entity(7), 3, U64Value(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, U64Entity(7), 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := v.U64(); got != 42 {
		t.Fatalf("value = %d, want 42", got)
	}

	// Adjacent offsets and entities stay independent.
	if v, _ := s.Get(ctx, U64Entity(7), 4); !v.IsZero() {
		t.Fatal("adjacent offset leaked")
	}
	if v, _ := s.Get(ctx, U64Entity(8), 3); !v.IsZero() {
		t.Fatal("adjacent entity leaked")
	}
}

func TestRunInTxAppliesOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.RunInTx(ctx, func(tx Store) error {
		if err := tx.Set(ctx, ZeroEntity, 0, U64Value(100)); err != nil {
			return err
		}
		// Reads within the tx see staged writes.
		v, err := tx.Get(ctx, ZeroEntity, 0)
		if err != nil {
			return err
		}
		if v.U64() != 100 {
			t.Fatalf("staged read = %d, want 100", v.U64())
		}
		return tx.Set(ctx, ZeroEntity, 1, U64Value(1))
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	v, _ := s.Get(ctx, ZeroEntity, 0)
	if v.U64() != 100 {
		t.Fatalf("committed value = %d, want 100", v.U64())
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if err := s.Set(ctx, ZeroEntity, 0, U64Value(50)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx Store) error {
		if err := tx.Set(ctx, ZeroEntity, 0, U64Value(999)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}

	v, _ := s.Get(ctx, ZeroEntity, 0)
	if v.U64() != 50 {
		t.Fatalf("value after rollback = %d, want 50", v.U64())
	}
}

func TestBoolValue(t *testing.T) {
	if !BoolValue(false).IsZero() {
		t.Fatal("false flag should be the zero sentinel")
	}
	if BoolValue(true).IsZero() {
		t.Fatal("true flag should not be zero")
	}
	if BoolValue(true).U64() != 1 {
		t.Fatal("true flag should read as 1")
	}
}

func TestU64EntityPacking(t *testing.T) {
	if U64Entity(0) != ZeroEntity {
		t.Fatal("U64Entity(0) should equal the zero entity")
	}
	a, b := U64Entity(1), U64Entity(256)
	if a == b {
		t.Fatal("distinct ids packed to same entity")
	}
}

func TestMemoryFactoryIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFactory()

	a := f.Namespace("useraccount:alice")
	b := f.Namespace("useraccount:bob")
	if err := a.Set(ctx, ZeroEntity, 0, U64Value(10)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if v, _ := b.Get(ctx, ZeroEntity, 0); !v.IsZero() {
		t.Fatal("write leaked across namespaces")
	}
	// Same name returns the same store.
	if v, _ := f.Namespace("useraccount:alice").Get(ctx, ZeroEntity, 0); v.U64() != 10 {
		t.Fatal("namespace lookup is not stable")
	}
}
