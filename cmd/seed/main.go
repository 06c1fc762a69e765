// Command seed prepares a dev database: it applies the ledger schemas,
// mints demo balances into the user and pool ledgers, and posts an offer
// ladder so the matching engine has liquidity to work with.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/lppool"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/protocol/useraccount"
	lpstorage "github.com/zakkycrypt01/voile/services/lppool/storage"
	uastorage "github.com/zakkycrypt01/voile/services/useraccount/storage"
)

const usdc = pricing.OneUSDC

func main() {
	env := getEnv("VOILE_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: VOILE_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "voile")
	user := getEnv("POSTGRES_USER", "voile")
	password := getEnv("POSTGRES_PASSWORD", "voile")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")
	poolID := getEnv("VOILE_POOL_ID", "main")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	for _, ddl := range []string{ledgerstore.Schema, uastorage.Schema, lpstorage.Schema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
	}
	fmt.Println("✓ Schemas applied")

	calc, err := pricing.NewCalculator(pricing.DefaultParams())
	if err != nil {
		log.Fatalf("pricing params: %v", err)
	}
	stores := ledgerstore.NewPostgresFactory(pool)
	mint := faucet.New(stores.Namespace("faucet"), 0)
	hasher := commit.NewBlake3Hasher()

	if err := seedUserBalances(ctx, stores, mint); err != nil {
		log.Fatalf("seed user balances: %v", err)
	}
	fmt.Println("✓ User balances seeded")

	poolLedger := lppool.NewLedger(stores.Namespace("lppool:"+poolID), calc)
	if err := seedPool(ctx, poolLedger, mint); err != nil {
		log.Fatalf("seed pool: %v", err)
	}
	fmt.Println("✓ Pool liquidity seeded")

	secrets, err := seedOffers(ctx, poolLedger, lpstorage.NewOfferIndex(pool), hasher, poolID)
	if err != nil {
		log.Fatalf("seed offers: %v", err)
	}
	fmt.Println("✓ Offer ladder seeded")

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo accounts (JWT subject -> locked balance):")
	fmt.Println("  alice: 50000")
	fmt.Println("  bob:   25000")
	if env == "dev" {
		fmt.Println("\nOffer secrets (DEV ONLY):")
		for offerID, secret := range secrets {
			fmt.Printf("  offer %d: %s\n", offerID, secret)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func seedUserBalances(ctx context.Context, stores ledgerstore.Factory, mint faucet.Faucet) error {
	balances := map[string]uint64{
		"alice": 50_000 * usdc,
		"bob":   25_000 * usdc,
	}
	for accountID, amount := range balances {
		ledger := useraccount.NewLedger(stores.Namespace("useraccount:" + accountID))
		bal, err := ledger.Balance(ctx)
		if err != nil {
			return err
		}
		if bal >= amount {
			continue
		}
		if err := mint.MintLocked(ctx, ledger, amount-bal); err != nil {
			return fmt.Errorf("mint for %s: %w", accountID, err)
		}
	}
	return nil
}

func seedPool(ctx context.Context, ledger *lppool.Ledger, mint faucet.Faucet) error {
	const target = 500_000 * usdc
	bal, err := ledger.Balance(ctx)
	if err != nil {
		return err
	}
	if bal >= target {
		return nil
	}
	return mint.MintUSDC(ctx, ledger, target-bal)
}

// seedOffers posts a ladder of offers at different APRs and sizes so the
// engine has price competition out of the box. Re-running the seed adds a
// fresh ladder rather than mutating earlier offers.
func seedOffers(ctx context.Context, ledger *lppool.Ledger, index *lpstorage.OfferIndex, hasher commit.Hasher, poolID string) (map[uint64]string, error) {
	ladder := []struct {
		lpID   string
		max    uint64
		min    uint64
		aprBps uint64
	}{
		{"lp-alpha", 50_000 * usdc, 100 * usdc, 0},
		{"lp-alpha", 10_000 * usdc, 50 * usdc, 800},
		{"lp-beta", 100_000 * usdc, 1_000 * usdc, 1200},
		{"lp-beta", 5_000 * usdc, 50 * usdc, 600},
	}

	secrets := make(map[uint64]string, len(ladder))
	for _, rung := range ladder {
		secret, err := commit.NewNullifierSecret()
		if err != nil {
			return nil, err
		}
		commitment := commit.OfferCommitment(hasher, rung.lpID, rung.max, rung.min, secret)
		offerID, err := ledger.CreateOffer(ctx, rung.max, rung.min, rung.aprBps, commitment)
		if err != nil {
			return nil, err
		}
		if err := index.Upsert(ctx, lpstorage.OfferRecord{
			PoolID:       poolID,
			OfferID:      offerID,
			MaxAmount:    rung.max,
			MinAmount:    rung.min,
			CustomAPRBps: rung.aprBps,
			Commitment:   commitment[:],
			Active:       true,
		}); err != nil {
			return nil, err
		}
		secrets[offerID] = secret.String()
	}
	return secrets, nil
}
