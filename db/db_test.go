package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/ayase-lab/matsuri-archive/db"
	"github.com/ayase-lab/matsuri-archive/testutil"
)

func TestMigrateIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	// SetupTestDB already migrated once; a second run must be a no-op.
	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestKVRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	v, err := db.GetKV(ctx, database, "missing")
	if err != nil {
		t.Fatalf("get missing key: %v", err)
	}
	if v != "" {
		t.Errorf("missing key should read as empty, got %q", v)
	}

	if err := db.SetKV(ctx, database, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetKV(ctx, database, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err = db.GetKV(ctx, database, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "v2" {
		t.Errorf("value = %q, want overwrite to win", v)
	}
}

func TestKVTimeRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	zero, err := db.GetKVTime(ctx, database, "never_set")
	if err != nil {
		t.Fatalf("get missing time: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("missing time key should read zero, got %v", zero)
	}

	want := time.Date(2025, 4, 2, 12, 0, 24, 0, time.FixedZone("CST", 8*3600))
	if err := db.SetKVTime(ctx, database, "sync", want); err != nil {
		t.Fatalf("set time: %v", err)
	}
	got, err := db.GetKVTime(ctx, database, "sync")
	if err != nil {
		t.Fatalf("get time: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("time = %v, want %v", got, want)
	}
}
