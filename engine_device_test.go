package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterDevice(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	ctx := context.Background()
	device := Device{ID: "d1", Kind: DeviceMobile, Name: "phone"}

	if err := engine.RegisterDevice(ctx, "u1", device); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if err := engine.RegisterDevice(ctx, "u1", device); !errors.Is(err, ErrDeviceExists) {
		t.Fatalf("duplicate registration = %v, want ErrDeviceExists", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricDeviceRegistered] != 1 || snap.Counters[MetricDeviceDuplicate] != 1 {
		t.Fatalf("unexpected device counters: %+v", snap.Counters)
	}
}

func TestRegisterDeviceValidation(t *testing.T) {
	stubs := defaultStubs()
	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	ctx := context.Background()

	if err := engine.RegisterDevice(ctx, "", Device{ID: "d1", Kind: DeviceMobile}); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
	if err := engine.RegisterDevice(ctx, "u1", Device{Kind: DeviceMobile}); err == nil {
		t.Fatal("expected empty device id to be rejected")
	}
	if err := engine.RegisterDevice(ctx, "u1", Device{ID: "d1", Kind: DeviceKind("tablet")}); err == nil {
		t.Fatal("expected unknown device kind to be rejected")
	}
}

func TestRegisterDeviceProviderFailure(t *testing.T) {
	stubs := defaultStubs()
	stubs.devices.err = errors.New("device store down")

	engine, done := newTestEngine(t, testConfig(), stubs)
	defer done()

	err := engine.RegisterDevice(context.Background(), "u1", Device{ID: "d1", Kind: DeviceDesktop})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("RegisterDevice = %v, want ErrProviderUnavailable", err)
	}
}
