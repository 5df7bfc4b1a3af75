package store

import (
	"context"
	"testing"
	"time"
)

// 127.0.0.1:1 is closed everywhere so dials fail fast
const closedPGURL = "postgres://u:p@127.0.0.1:1/db?sslmode=disable"

func TestOpenPG_ParentAlreadyCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	txr, err := openPG(ctx, Config{PG: PGConfig{URL: closedPGURL, MaxConns: 1}}, &Store{})
	if err == nil {
		t.Fatalf("expected error on canceled context, got %T", txr)
	}
	if txr != nil {
		t.Fatalf("expected nil TxRunner, got %T", txr)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("canceled open should return quickly")
	}
}

func TestOpenPG_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	cfg := Config{PG: PGConfig{
		URL:            closedPGURL,
		MaxConns:       1,
		ConnectRetries: 1,
		PingTimeout:    200 * time.Millisecond,
	}}
	txr, err := openPG(context.Background(), cfg, &Store{})
	if err == nil {
		t.Fatalf("expected ping failure, got %T", txr)
	}
}
