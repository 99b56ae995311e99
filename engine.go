package authgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionforge/authgate/capability"
	"github.com/sessionforge/authgate/internal"
	"github.com/sessionforge/authgate/internal/stores"
	"github.com/sessionforge/authgate/token"
)

// Engine defines a public type used by authgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	tokens       *token.Manager
	exchange     *stores.ExchangeStore
	phoneChanges *phoneChangeStore
	identity     IdentityProvider
	devices      DeviceProvider
	accounts     AccountProvider
	sms          SMSSender
	audit        *auditDispatcher
	metrics      *Metrics

	sweepDone chan struct{}
	sweepWG   sync.WaitGroup
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweepDone != nil {
		close(e.sweepDone)
		e.sweepWG.Wait()
		e.sweepDone = nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// CookieName reports the name of the session cookie the engine issues.
func (e *Engine) CookieName() string {
	return e.tokens.CookieName()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) auditEvent(ctx context.Context, eventType, subject string, success bool, cause error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Provider.Timeout)
}

/*
====================================
CAPABILITIES
====================================
*/

// Capabilities computes the second-factor methods currently usable by a
// subject from its live device population and phone-verification flag. The
// result is never cached: the device population can change at any time.
func (e *Engine) Capabilities(ctx context.Context, subject string) (capability.Set, error) {
	if e == nil {
		return capability.Set{}, ErrEngineNotReady
	}
	if subject == "" {
		return capability.Set{}, errors.New("empty subject")
	}
	if e.accounts == nil || e.devices == nil {
		return capability.Set{}, ErrEngineNotReady
	}

	callCtx, cancel := e.providerContext(ctx)
	defer cancel()

	phoneVerified, err := e.accounts.PhoneVerified(callCtx, subject)
	if err != nil {
		return capability.Set{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	mobile, err := e.devices.CountMobileDevices(callCtx, subject)
	if err != nil {
		return capability.Set{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	all, err := e.devices.CountAllDevices(callCtx, subject)
	if err != nil {
		return capability.Set{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	desktop := all - mobile
	if desktop < 0 {
		desktop = 0
	}
	return capability.Resolve(phoneVerified, mobile, desktop), nil
}

/*
====================================
ACCESS TOKENS
====================================
*/

// IssueAccessToken mints a session token for a subject that completed
// first-factor login and returns it with its bound transport cookie.
func (e *Engine) IssueAccessToken(ctx context.Context, subject string) (string, *http.Cookie, error) {
	if e == nil {
		return "", nil, ErrEngineNotReady
	}

	tok, err := e.tokens.Issue(subject)
	if err != nil {
		return "", nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.auditEvent(ctx, "access_token_issued", subject, true, nil, nil)
	return tok, e.tokens.Cookie(tok), nil
}

// VerifyAccessToken hard-verifies a session token for the expected subject.
// Every failure mode collapses into [ErrAccessTokenInvalid]; callers must
// re-authenticate, never retry.
func (e *Engine) VerifyAccessToken(tokenStr, subject string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.Verify(tokenStr, subject); err != nil {
		e.metricInc(MetricTokenRejected)
		return fmt.Errorf("%w: %v", ErrAccessTokenInvalid, err)
	}
	e.metricInc(MetricTokenVerified)
	return nil
}

// HasAccess is the soft check: does this token currently grant session
// access for the subject. It never errors and never blocks a request.
func (e *Engine) HasAccess(tokenStr, subject string) bool {
	if e == nil {
		return false
	}
	return e.tokens.Check(tokenStr, subject)
}

// ClearAccessCookie returns the cookie that revokes the session cookie on
// the client. The token itself stays valid until expiry; it is stateless.
func (e *Engine) ClearAccessCookie() *http.Cookie {
	return e.tokens.ClearCookie()
}

/*
====================================
EXCHANGE
====================================
*/

// CreateExchange opens a one-time identity handoff for a subject and returns
// the opaque hash to transmit out of band. The entry lives for the
// configured TTL and is consumed by the first ResolveExchange, successful or
// not.
func (e *Engine) CreateExchange(ctx context.Context, subject string) (string, error) {
	if e == nil || e.exchange == nil {
		return "", ErrEngineNotReady
	}

	secret, err := internal.NewSecret()
	if err != nil {
		return "", err
	}
	// uuid prefix keeps secrets unique even under a broken entropy source.
	secret = uuid.NewString() + "." + secret

	hash, err := e.exchange.Put(ctx, subject, secret)
	if err != nil {
		e.auditEvent(ctx, "exchange_created", subject, false, err, nil)
		return "", mapExchangeError(err)
	}

	e.metricInc(MetricExchangeCreated)
	e.auditEvent(ctx, "exchange_created", subject, true, nil, nil)
	return hash, nil
}

// ResolveExchange consumes a handoff hash and returns the subject it was
// opened for. A hash resolves at most once; retrying after any failure is
// definitionally useless and callers must restart the handoff instead.
func (e *Engine) ResolveExchange(ctx context.Context, hash string) (string, error) {
	if e == nil || e.exchange == nil {
		return "", ErrEngineNotReady
	}

	subject, err := e.exchange.Resolve(ctx, hash)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrExchangeExpired):
			e.metricInc(MetricExchangeExpired)
		default:
			e.metricInc(MetricExchangeMissed)
		}
		e.auditEvent(ctx, "exchange_resolved", "", false, err, nil)
		return "", mapExchangeError(err)
	}

	e.metricInc(MetricExchangeResolved)
	e.auditEvent(ctx, "exchange_resolved", subject, true, nil, nil)
	return subject, nil
}

// SweepExchanges purges expired handoff entries and reports how many were
// removed. The background sweeper calls this when configured; it is also
// safe to call directly.
func (e *Engine) SweepExchanges(ctx context.Context) (int, error) {
	if e == nil || e.exchange == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.exchange.Sweep(ctx)
	if removed > 0 && e.metrics != nil {
		e.metrics.Add(MetricExchangeSwept, uint64(removed))
	}
	if err != nil {
		return removed, mapExchangeError(err)
	}
	return removed, nil
}

func (e *Engine) runSweeper(interval time.Duration) {
	defer e.sweepWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.config.Provider.Timeout)
			_, _ = e.SweepExchanges(ctx)
			cancel()
		case <-e.sweepDone:
			return
		}
	}
}

func mapExchangeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrExchangeNotFound):
		return ErrExchangeNotFound
	case errors.Is(err, stores.ErrExchangeExpired):
		return ErrExchangeExpired
	case errors.Is(err, stores.ErrExchangeBackend):
		return fmt.Errorf("%w: %v", ErrExchangeUnavailable, err)
	default:
		return err
	}
}

/*
====================================
CHAIN EXECUTION
====================================
*/

// RunChain executes a validation chain for one request, recording the
// outcome in metrics and audit. Middleware uses this instead of Chain.Run
// so every admission decision is observable.
func (e *Engine) RunChain(ctx context.Context, req Request, chain Chain) (State, *Failure) {
	st, fail := chain.Run(ctx, req)
	if fail != nil {
		e.metricInc(MetricChainFailed)
		e.auditEvent(ctx, "chain_failed", st.Subject, false, fail.Err, map[string]string{
			"code": string(fail.Code),
		})
		return st, fail
	}

	e.metricInc(MetricChainPassed)
	return st, nil
}

/*
====================================
DEVICES
====================================
*/

// RegisterDevice records a new device for a subject in the external device
// store. A duplicate registration fails with [ErrDeviceExists].
func (e *Engine) RegisterDevice(ctx context.Context, subject string, device Device) error {
	if e == nil || e.devices == nil {
		return ErrEngineNotReady
	}
	if subject == "" || device.ID == "" {
		return errors.New("subject and device id are required")
	}
	if device.Kind != DeviceMobile && device.Kind != DeviceDesktop {
		return errors.New("unknown device kind")
	}

	callCtx, cancel := e.providerContext(ctx)
	defer cancel()

	if err := e.devices.RegisterDevice(callCtx, subject, device); err != nil {
		if errors.Is(err, ErrDeviceExists) {
			e.metricInc(MetricDeviceDuplicate)
			e.auditEvent(ctx, "device_registered", subject, false, err, map[string]string{"device": device.ID})
			return ErrDeviceExists
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricDeviceRegistered)
	e.auditEvent(ctx, "device_registered", subject, true, nil, map[string]string{"device": device.ID})
	return nil
}

/*
====================================
PHONE CHANGE
====================================
*/

// StartPhoneChange opens a phone-number change for a subject: a one-time
// numeric code is stored hashed and delivered to the new number over SMS.
// Any previously pending change for the subject is replaced.
func (e *Engine) StartPhoneChange(ctx context.Context, subject, phoneNumber string) error {
	if e == nil || e.phoneChanges == nil || e.sms == nil {
		return ErrEngineNotReady
	}
	if !e.config.PhoneChange.Enabled {
		return errors.New("phone change disabled")
	}
	if subject == "" || phoneNumber == "" {
		return errors.New("subject and phone number are required")
	}

	code, err := internal.NewNumericCode(e.config.PhoneChange.CodeDigits)
	if err != nil {
		return err
	}

	record := &phoneChangeRecord{
		PhoneNumber: phoneNumber,
		SecretHash:  hashPhoneChangeCode(code),
		ExpiresAt:   time.Now().Add(e.config.PhoneChange.CodeTTL).Unix(),
	}
	if err := e.phoneChanges.Save(ctx, subject, record, e.config.PhoneChange.CodeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrPhoneChangeUnavailable, err)
	}

	callCtx, cancel := e.providerContext(ctx)
	defer cancel()

	if err := e.sms.SendSMS(callCtx, phoneNumber, "Your verification code is "+code); err != nil {
		// Without delivery the code is unusable; drop the pending record.
		_ = e.phoneChanges.Delete(ctx, subject)
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricPhoneChangeStarted)
	e.auditEvent(ctx, "phone_change_started", subject, true, nil, nil)
	return nil
}

// ConfirmPhoneChange verifies the SMS code and commits the new number to the
// account store as verified. A wrong, expired, or missing code fails with
// [ErrPhoneNumberNotVerified]; exhausting all attempts fails with
// [ErrPhoneChangeRateLimited] and cancels the pending change.
func (e *Engine) ConfirmPhoneChange(ctx context.Context, subject, code string) error {
	if e == nil || e.phoneChanges == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if subject == "" || code == "" {
		return ErrPhoneNumberNotVerified
	}

	record, err := e.phoneChanges.Consume(ctx, subject, code, e.config.PhoneChange.MaxAttempts)
	if err != nil {
		e.metricInc(MetricPhoneChangeRejected)
		e.auditEvent(ctx, "phone_change_confirmed", subject, false, err, nil)
		switch {
		case errors.Is(err, errPhoneChangeAttempts):
			return ErrPhoneChangeRateLimited
		case errors.Is(err, errPhoneChangeNotFound), errors.Is(err, errPhoneChangeMismatch):
			return ErrPhoneNumberNotVerified
		default:
			return fmt.Errorf("%w: %v", ErrPhoneChangeUnavailable, err)
		}
	}

	callCtx, cancel := e.providerContext(ctx)
	defer cancel()

	if err := e.accounts.SetPhoneNumber(callCtx, subject, record.PhoneNumber, true); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metricInc(MetricPhoneChangeConfirmed)
	e.auditEvent(ctx, "phone_change_confirmed", subject, true, nil, nil)
	return nil
}
