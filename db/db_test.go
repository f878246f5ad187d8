package db

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMigrateAndRates(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	ctx := context.Background()
	conn, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	// Twice: migration must be idempotent.
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate (run %d): %v", i+1, err)
		}
	}

	store := NewRateStore(conn)
	now := time.Now().UTC().Truncate(time.Second)
	if err := store.Insert(ctx, "btcusd", 60000.5, now.Add(-time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, "btcusd", 61000.0, now); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r, err := store.LatestBefore(ctx, "btcusd", now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("latest before: %v", err)
	}
	if r.Rate != 60000.5 {
		t.Errorf("rate = %v, want the older observation", r.Rate)
	}

	if _, err := store.LatestBefore(ctx, "ethusd", now); err != ErrNoRate {
		t.Errorf("err = %v, want ErrNoRate", err)
	}
}
