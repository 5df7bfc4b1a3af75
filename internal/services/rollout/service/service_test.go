package service

import (
	"context"
	"errors"
	"testing"

	"progcap/internal/core/cohort"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store/storetest"
	"progcap/internal/services/rollout/repo"
)

const feature = "progressive_capture"

func setup(t *testing.T) (*Svc, *repo.Mem, *storetest.Tx) {
	t.Helper()
	mem := repo.NewMem()
	tx := &storetest.Tx{}
	return New(tx, mem), mem, tx
}

func TestGetConfig_UnknownFeatureIsZero(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)

	c, err := svc.GetConfig(context.Background(), "never_configured")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if c.Percentage != 0 || c.EmergencyStop || c.Strategy != cohort.Hash || c.Effective() != 0 {
		t.Fatalf("default = %+v", c)
	}
}

func TestSetPercentage_AppendsOneHistoryRowPerCall(t *testing.T) {
	t.Parallel()
	svc, mem, _ := setup(t)
	ctx := context.Background()

	for i, pct := range []int{10, 25, 25, 50} {
		c, err := svc.SetPercentage(ctx, feature, pct, "ramp", "alice")
		if err != nil {
			t.Fatalf("SetPercentage(%d): %v", pct, err)
		}
		if c.Percentage != pct || c.Version != int64(i+1) {
			t.Fatalf("config = %+v", c)
		}
		if n := mem.HistoryLen(feature); n != i+1 {
			t.Fatalf("history after %d calls = %d", i+1, n)
		}
	}

	h, err := svc.History(ctx, feature, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if h[0].PreviousPercentage != 25 || h[0].NewPercentage != 50 || h[0].Actor != "alice" {
		t.Fatalf("newest history row = %+v", h[0])
	}
}

func TestSetPercentage_Validation(t *testing.T) {
	t.Parallel()
	svc, mem, tx := setup(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		feature string
		pct     int
		reason  string
		actor   string
	}{
		{"below range", feature, -1, "r", "a"},
		{"above range", feature, 101, "r", "a"},
		{"blank feature", " ", 10, "r", "a"},
		{"blank reason", feature, 10, "", "a"},
		{"blank actor", feature, 10, "r", ""},
	}
	for _, tc := range cases {
		_, err := svc.SetPercentage(ctx, tc.feature, tc.pct, tc.reason, tc.actor)
		if perr.CodeOf(err) != perr.ErrorCodeValidation {
			t.Fatalf("%s: want validation, got %v", tc.name, err)
		}
	}
	if tx.Calls() != 0 || mem.HistoryLen(feature) != 0 {
		t.Fatalf("rejected input must not open a transaction")
	}
}

func TestEmergencyStop_KeepsPercentage(t *testing.T) {
	t.Parallel()
	svc, mem, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.SetPercentage(ctx, feature, 40, "ramp", "alice"); err != nil {
		t.Fatalf("SetPercentage: %v", err)
	}
	c, err := svc.SetEmergencyStop(ctx, feature, true, "auto-rollback: error spike", "system")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !c.EmergencyStop || c.Percentage != 40 || c.Effective() != 0 {
		t.Fatalf("stopped config = %+v", c)
	}
	if c.StopClearedAt != nil {
		t.Fatalf("stop must not set cleared time")
	}

	c, err = svc.SetEmergencyStop(ctx, feature, false, "fixed", "bob")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.EmergencyStop || c.Effective() != 40 || c.StopClearedAt == nil {
		t.Fatalf("cleared config = %+v", c)
	}
	if n := mem.HistoryLen(feature); n != 3 {
		t.Fatalf("history = %d, want 3", n)
	}
	h, _ := svc.History(ctx, feature, 1)
	if !h[0].PreviousStop || h[0].NewStop || h[0].NewPercentage != 40 {
		t.Fatalf("clear history row = %+v", h[0])
	}
}

func TestSetStrategy(t *testing.T) {
	t.Parallel()
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.SetStrategy(ctx, feature, "coin_flip", "r", "a"); perr.CodeOf(err) != perr.ErrorCodeValidation {
		t.Fatalf("bad strategy: got %v", err)
	}
	c, err := svc.SetStrategy(ctx, feature, cohort.Random, "experiment", "alice")
	if err != nil || c.Strategy != cohort.Random {
		t.Fatalf("SetStrategy: %+v %v", c, err)
	}
}

func TestMutate_StoreOutageIsReturned(t *testing.T) {
	t.Parallel()
	svc, mem, tx := setup(t)
	tx.Fail = perr.Unavailablef("db down")

	_, err := svc.SetPercentage(context.Background(), feature, 5, "ramp", "alice")
	if !errors.Is(err, tx.Fail) {
		t.Fatalf("want outage error, got %v", err)
	}
	if mem.HistoryLen(feature) != 0 {
		t.Fatalf("history written despite failed transaction")
	}
}
