package faucet

import (
	"context"
	"errors"
	"testing"

	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/lppool"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/protocol/useraccount"
)

func TestSupplyAccounting(t *testing.T) {
	ctx := context.Background()
	f := New(ledgerstore.NewMemory(), 0)

	supply, err := f.TotalSupply(ctx)
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply != 0 {
		t.Fatalf("initial supply = %d, want 0", supply)
	}

	supply, err = f.Mint(ctx, 1000)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if supply != 1000 {
		t.Fatalf("supply after mint = %d, want 1000", supply)
	}

	supply, err = f.Burn(ctx, 400)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if supply != 600 {
		t.Fatalf("supply after burn = %d, want 600", supply)
	}

	if _, err := f.Burn(ctx, 601); !errors.Is(err, ErrBurnExceedsSupply) {
		t.Fatalf("over-burn error = %v, want ErrBurnExceedsSupply", err)
	}
	if _, err := f.Mint(ctx, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero mint error = %v, want ErrInvalidAmount", err)
	}
}

func TestMaxMintCap(t *testing.T) {
	ctx := context.Background()
	f := New(ledgerstore.NewMemory(), 1000)

	limit, err := f.MaxMint(ctx)
	if err != nil {
		t.Fatalf("MaxMint: %v", err)
	}
	if limit != 1000 {
		t.Fatalf("default cap = %d, want 1000", limit)
	}

	if _, err := f.Mint(ctx, 1001); !errors.Is(err, ErrMintTooLarge) {
		t.Fatalf("over-cap error = %v, want ErrMintTooLarge", err)
	}

	if err := f.SetMaxMint(ctx, 2000); err != nil {
		t.Fatalf("SetMaxMint: %v", err)
	}
	limit, err = f.MaxMint(ctx)
	if err != nil {
		t.Fatalf("MaxMint: %v", err)
	}
	if limit != 2000 {
		t.Fatalf("stored cap = %d, want 2000", limit)
	}
	if _, err := f.Mint(ctx, 1500); err != nil {
		t.Fatalf("Mint under raised cap: %v", err)
	}

	if err := f.SetMaxMint(ctx, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero cap error = %v, want ErrInvalidAmount", err)
	}
}

func TestMintLockedCreditsAccount(t *testing.T) {
	ctx := context.Background()
	f := New(ledgerstore.NewMemory(), 1000)
	user := useraccount.NewLedger(ledgerstore.NewMemory())

	if err := f.MintLocked(ctx, user, 1000); err != nil {
		t.Fatalf("MintLocked: %v", err)
	}
	if err := f.MintLocked(ctx, user, 1001); !errors.Is(err, ErrMintTooLarge) {
		t.Fatalf("over-cap error = %v, want ErrMintTooLarge", err)
	}

	bal, _ := user.Balance(ctx)
	if bal != 1000 {
		t.Fatalf("balance = %d, want 1000", bal)
	}
	supply, _ := f.TotalSupply(ctx)
	if supply != 1000 {
		t.Fatalf("supply = %d, want 1000", supply)
	}
}

func TestMintUSDCCreditsPool(t *testing.T) {
	ctx := context.Background()
	calc, err := pricing.NewCalculator(pricing.DefaultParams())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	pool := lppool.NewLedger(ledgerstore.NewMemory(), calc)

	f := New(ledgerstore.NewMemory(), 0)
	if err := f.MintUSDC(ctx, pool, 500*pricing.OneUSDC); err != nil {
		t.Fatalf("MintUSDC: %v", err)
	}
	bal, _ := pool.Balance(ctx)
	if want := 500 * pricing.OneUSDC; bal != want {
		t.Fatalf("balance = %d, want %d", bal, want)
	}
	supply, _ := f.TotalSupply(ctx)
	if want := 500 * pricing.OneUSDC; supply != want {
		t.Fatalf("supply = %d, want %d", supply, want)
	}
}
