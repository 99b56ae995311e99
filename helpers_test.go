package authgate

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stubIdentityProvider struct {
	identities map[string]Identity
	err        error
	calls      atomic.Int64
}

func (s *stubIdentityProvider) VerifyIdentityToken(ctx context.Context, token string) (Identity, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Identity{}, s.err
	}
	id, ok := s.identities[token]
	if !ok {
		return Identity{}, errors.New("unknown identity token")
	}
	return id, nil
}

type stubDeviceProvider struct {
	mobile     int
	all        int
	err        error
	registered map[string]Device
}

func (s *stubDeviceProvider) CountMobileDevices(ctx context.Context, subject string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.mobile, nil
}

func (s *stubDeviceProvider) CountAllDevices(ctx context.Context, subject string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.all, nil
}

func (s *stubDeviceProvider) RegisterDevice(ctx context.Context, subject string, device Device) error {
	if s.err != nil {
		return s.err
	}
	if s.registered == nil {
		s.registered = map[string]Device{}
	}
	if _, ok := s.registered[device.ID]; ok {
		return ErrDeviceExists
	}
	s.registered[device.ID] = device
	return nil
}

type stubAccountProvider struct {
	phoneVerified bool
	err           error

	setNumber   string
	setVerified bool
}

func (s *stubAccountProvider) PhoneVerified(ctx context.Context, subject string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.phoneVerified, nil
}

func (s *stubAccountProvider) SetPhoneNumber(ctx context.Context, subject, number string, verified bool) error {
	if s.err != nil {
		return s.err
	}
	s.setNumber = number
	s.setVerified = verified
	return nil
}

type stubSMSSender struct {
	to   []string
	body []string
	err  error
}

func (s *stubSMSSender) SendSMS(ctx context.Context, toNumber, body string) error {
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, toNumber)
	s.body = append(s.body, body)
	return nil
}

// lastCode extracts the numeric code from the most recent SMS body.
func (s *stubSMSSender) lastCode(t *testing.T) string {
	t.Helper()
	if len(s.body) == 0 {
		t.Fatal("no SMS was sent")
	}
	body := s.body[len(s.body)-1]
	const prefix = "Your verification code is "
	if !strings.HasPrefix(body, prefix) {
		t.Fatalf("unexpected SMS body %q", body)
	}
	return strings.TrimPrefix(body, prefix)
}

type engineStubs struct {
	identity *stubIdentityProvider
	devices  *stubDeviceProvider
	accounts *stubAccountProvider
	sms      *stubSMSSender
}

func defaultStubs() *engineStubs {
	return &engineStubs{
		identity: &stubIdentityProvider{
			identities: map[string]Identity{
				"idp-token-u1":            {Subject: "u1", EmailVerified: true},
				"idp-token-u2-unverified": {Subject: "u2", EmailVerified: false},
			},
		},
		devices:  &stubDeviceProvider{},
		accounts: &stubAccountProvider{},
		sms:      &stubSMSSender{},
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, stubs *engineStubs) (*Engine, func()) {
	t.Helper()
	return newTestEngineWithSink(t, cfg, stubs, nil)
}

func newTestEngineWithSink(t *testing.T, cfg Config, stubs *engineStubs, sink AuditSink) (*Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(stubs.identity).
		WithDeviceProvider(stubs.devices).
		WithAccountProvider(stubs.accounts).
		WithSMSSender(stubs.sms).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func issueCookieToken(t *testing.T, engine *Engine, subject string) string {
	t.Helper()

	tok, cookie, err := engine.IssueAccessToken(context.Background(), subject)
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}
	if cookie == nil || cookie.Value != tok {
		t.Fatal("issued cookie must carry the token")
	}
	return tok
}

func waitForEvent(t *testing.T, events <-chan AuditEvent, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
		}
	}
}
