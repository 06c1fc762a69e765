// Package faucet mints test USDC for development and seeding. Supply and
// the per-call mint cap live in their own keyed-store namespace so repeated
// runs see a consistent total. It is not wired into production deployments.
package faucet

import (
	"context"
	"errors"
	"fmt"

	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/lppool"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/protocol/useraccount"
)

var (
	ErrMintTooLarge      = errors.New("faucet: mint exceeds per-call cap")
	ErrBurnExceedsSupply = errors.New("faucet: burn exceeds total supply")
	ErrInvalidAmount     = errors.New("faucet: amount must be positive")
)

// DefaultMintCap bounds a single mint to 1M display USDC when no cap has
// been stored and no override is configured.
const DefaultMintCap = 1_000_000 * pricing.OneUSDC

// Scalar cells under the zero entity.
const (
	offSupply  = 0
	offMaxMint = 1
)

// Faucet tracks total supply and a per-call mint cap in a store namespace
// and credits minted amounts into account and pool ledgers.
type Faucet struct {
	store      ledgerstore.TxStore
	defaultCap uint64
}

// New builds a faucet over its own namespace. defaultCap of zero falls back
// to DefaultMintCap; a cap stored via SetMaxMint takes precedence over both.
func New(store ledgerstore.TxStore, defaultCap uint64) Faucet {
	if defaultCap == 0 {
		defaultCap = DefaultMintCap
	}
	return Faucet{store: store, defaultCap: defaultCap}
}

// TotalSupply returns the amount minted and not yet burned.
func (f Faucet) TotalSupply(ctx context.Context) (uint64, error) {
	v, err := f.store.Get(ctx, ledgerstore.ZeroEntity, offSupply)
	if err != nil {
		return 0, err
	}
	return v.U64(), nil
}

// MaxMint returns the effective per-call mint cap.
func (f Faucet) MaxMint(ctx context.Context) (uint64, error) {
	v, err := f.store.Get(ctx, ledgerstore.ZeroEntity, offMaxMint)
	if err != nil {
		return 0, err
	}
	if v.IsZero() {
		return f.defaultCap, nil
	}
	return v.U64(), nil
}

// SetMaxMint stores a new per-call mint cap.
func (f Faucet) SetMaxMint(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return f.store.Set(ctx, ledgerstore.ZeroEntity, offMaxMint, ledgerstore.U64Value(amount))
}

// Mint grows the total supply and returns the new total.
func (f Faucet) Mint(ctx context.Context, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	limit, err := f.MaxMint(ctx)
	if err != nil {
		return 0, err
	}
	if amount > limit {
		return 0, fmt.Errorf("%w: %d > %d", ErrMintTooLarge, amount, limit)
	}
	var supply uint64
	err = f.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		cur, err := tx.Get(ctx, ledgerstore.ZeroEntity, offSupply)
		if err != nil {
			return err
		}
		supply = cur.U64() + amount
		return tx.Set(ctx, ledgerstore.ZeroEntity, offSupply, ledgerstore.U64Value(supply))
	})
	if err != nil {
		return 0, err
	}
	return supply, nil
}

// Burn shrinks the total supply and returns the new total.
func (f Faucet) Burn(ctx context.Context, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	var supply uint64
	err := f.store.RunInTx(ctx, func(tx ledgerstore.Store) error {
		cur, err := tx.Get(ctx, ledgerstore.ZeroEntity, offSupply)
		if err != nil {
			return err
		}
		if cur.U64() < amount {
			return fmt.Errorf("%w: supply %d, burn %d", ErrBurnExceedsSupply, cur.U64(), amount)
		}
		supply = cur.U64() - amount
		return tx.Set(ctx, ledgerstore.ZeroEntity, offSupply, ledgerstore.U64Value(supply))
	})
	if err != nil {
		return 0, err
	}
	return supply, nil
}

// MintLocked mints and credits locked staked asset to a user account.
func (f Faucet) MintLocked(ctx context.Context, ledger *useraccount.Ledger, amount uint64) error {
	if _, err := f.Mint(ctx, amount); err != nil {
		return err
	}
	return ledger.Deposit(ctx, amount)
}

// MintUSDC mints and credits stablecoin liquidity to a pool.
func (f Faucet) MintUSDC(ctx context.Context, ledger *lppool.Ledger, amount uint64) error {
	if _, err := f.Mint(ctx, amount); err != nil {
		return err
	}
	return ledger.DepositUSDC(ctx, amount)
}
