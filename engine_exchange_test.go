package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestExchangeRoundtrip(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	hash, err := engine.CreateExchange(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CreateExchange failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected a non-empty hash")
	}

	subject, err := engine.ResolveExchange(context.Background(), hash)
	if err != nil {
		t.Fatalf("ResolveExchange failed: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("subject = %q, want u1", subject)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricExchangeCreated] != 1 || snap.Counters[MetricExchangeResolved] != 1 {
		t.Fatalf("unexpected exchange counters: %+v", snap.Counters)
	}
}

func TestExchangeResolvesAtMostOnce(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	hash, err := engine.CreateExchange(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CreateExchange failed: %v", err)
	}

	if _, err := engine.ResolveExchange(context.Background(), hash); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if _, err := engine.ResolveExchange(context.Background(), hash); !errors.Is(err, ErrExchangeNotFound) {
		t.Fatalf("second resolve = %v, want ErrExchangeNotFound", err)
	}
}

func TestExchangeUnknownHash(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	if _, err := engine.ResolveExchange(context.Background(), "deadbeef"); !errors.Is(err, ErrExchangeNotFound) {
		t.Fatalf("unknown hash = %v, want ErrExchangeNotFound", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricExchangeMissed] != 1 {
		t.Fatalf("MetricExchangeMissed = %d, want 1", snap.Counters[MetricExchangeMissed])
	}
}

func TestExchangeHashesDistinctPerCall(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	a, err := engine.CreateExchange(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CreateExchange failed: %v", err)
	}
	b, err := engine.CreateExchange(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CreateExchange failed: %v", err)
	}
	if a == b {
		t.Fatal("two handoffs for the same subject must not share a hash")
	}
}

func TestSweepExchangesOnEmptyStore(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	removed, err := engine.SweepExchanges(context.Background())
	if err != nil {
		t.Fatalf("SweepExchanges failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}
