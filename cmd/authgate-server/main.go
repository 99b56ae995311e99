// Command authgate-server runs the gateway as a standalone HTTP service in
// front of a real Redis and an OpenID Connect issuer.
//
// Configuration is read from the environment:
//
//	REDIS_ADDR            redis address (default localhost:6379)
//	OIDC_ISSUER           OpenID Connect issuer URL (required)
//	OIDC_CLIENT_ID        audience expected in incoming ID tokens (required)
//	LISTEN_ADDR           HTTP listen address (default :8080)
//	TOKEN_SIGNING_METHOD  "ed25519" or "hs256" (default hs256)
//	TOKEN_KEY             signing key; hex for hs256, PEM path for ed25519
//	TOKEN_TTL             session token lifetime (default 5m)
//	EXCHANGE_SWEEP        sweep interval for expired handoffs (default 1m)
//	AUDIT_ENABLED         emit JSON audit lines to stderr (default true)
//
// The device and account stores are deployment-specific; this binary keeps
// them in process memory, which is useful for staging but not for production.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	authgate "github.com/sessionforge/authgate"
	"github.com/sessionforge/authgate/middleware"
	"github.com/sessionforge/authgate/oidcprovider"
)

type serverConfig struct {
	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	OIDCIssuer    string        `env:"OIDC_ISSUER,required"`
	OIDCClientID  string        `env:"OIDC_CLIENT_ID,required"`
	ListenAddr    string        `env:"LISTEN_ADDR,default=:8080"`
	SigningMethod string        `env:"TOKEN_SIGNING_METHOD,default=hs256"`
	TokenKey      string        `env:"TOKEN_KEY,required"`
	TokenTTL      time.Duration `env:"TOKEN_TTL,default=5m"`
	ExchangeSweep time.Duration `env:"EXCHANGE_SWEEP,default=1m"`
	AuditEnabled  bool          `env:"AUDIT_ENABLED,default=true"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var sc serverConfig
	if err := envdecode.StrictDecode(&sc); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- redis ----------
	rdb := redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// ---------- identity ----------
	identity, err := oidcprovider.New(ctx, sc.OIDCIssuer, sc.OIDCClientID)
	if err != nil {
		return fmt.Errorf("oidc: %w", err)
	}

	// ---------- engine ----------
	cfg := authgate.DefaultConfig()
	cfg.Token.TTL = sc.TokenTTL
	cfg.Token.SigningMethod = sc.SigningMethod
	cfg.Exchange.SweepInterval = sc.ExchangeSweep
	cfg.Audit.Enabled = sc.AuditEnabled
	cfg.Metrics.Enabled = true

	if err := loadSigningKey(&cfg, sc); err != nil {
		return err
	}

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(identity).
		WithDeviceProvider(newMemoryDeviceStore()).
		WithAccountProvider(newMemoryAccountStore()).
		WithSMSSender(logSMS{}).
		WithAuditSink(authgate.NewJSONWriterSink(os.Stderr)).
		Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	// ---------- routes ----------
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/session", sessionHandler(engine))
	r.Post("/exchange/resolve", resolveHandler(engine))

	guarded := authgate.Chain{engine.IdentityCheck(), engine.AccessTokenCheck()}
	r.Group(func(r chi.Router) {
		r.Use(middleware.ChainGuard(engine, guarded))
		r.Get("/capabilities", capabilitiesHandler(engine))
		r.Post("/exchange", exchangeHandler(engine))
		r.Post("/devices", registerDeviceHandler(engine))
	})

	phoneChain := authgate.Chain{
		engine.IdentityCheck(),
		authgate.RequireParams("phoneNumber"),
		engine.ConditionalSecondFactorCheck("phoneNumber"),
	}
	r.With(middleware.ChainGuard(engine, phoneChain)).Post("/phone", phoneHandler(engine))

	confirmChain := authgate.Chain{engine.IdentityCheck(), authgate.RequireParams("code")}
	r.With(middleware.ChainGuard(engine, confirmChain)).Post("/phone/confirm", confirmHandler(engine))

	// ---------- serve ----------
	srv := &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", sc.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadSigningKey(cfg *authgate.Config, sc serverConfig) error {
	switch sc.SigningMethod {
	case "hs256":
		key, err := hex.DecodeString(sc.TokenKey)
		if err != nil {
			return fmt.Errorf("TOKEN_KEY must be hex for hs256: %w", err)
		}
		cfg.Token.PrivateKey = key
	case "ed25519":
		pem, err := os.ReadFile(sc.TokenKey)
		if err != nil {
			return fmt.Errorf("TOKEN_KEY must be a PEM path for ed25519: %w", err)
		}
		cfg.Token.PrivateKey = pem
		pub, err := os.ReadFile(sc.TokenKey + ".pub")
		if err != nil {
			return fmt.Errorf("ed25519 public key: %w", err)
		}
		cfg.Token.PublicKey = pub
	default:
		return fmt.Errorf("unsupported signing method %q", sc.SigningMethod)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func sessionHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, fail := engine.RunChain(r.Context(),
			middleware.RequestFromHTTP(r, engine.CookieName()),
			authgate.Chain{engine.IdentityCheck(), engine.EmailVerifiedCheck()},
		)
		if fail != nil {
			middleware.WriteFailure(w, fail)
			return
		}

		tok, cookie, err := engine.IssueAccessToken(r.Context(), st.Subject)
		if err != nil {
			http.Error(w, "token issuance failed", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, cookie)
		writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
	}
}

func capabilitiesHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := middleware.StateFromContext(r.Context())

		caps, err := engine.Capabilities(r.Context(), st.Subject)
		if err != nil {
			http.Error(w, "capability resolution failed", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"capabilities": caps,
			"methods":      caps.Methods(),
		})
	}
}

func exchangeHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := middleware.StateFromContext(r.Context())

		hash, err := engine.CreateExchange(r.Context(), st.Subject)
		if err != nil {
			http.Error(w, "exchange unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
	}
}

func resolveHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Hash string `json:"hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Hash == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		subject, err := engine.ResolveExchange(r.Context(), body.Hash)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"subject": subject})
		case errors.Is(err, authgate.ErrExchangeExpired):
			http.Error(w, "exchange expired", http.StatusGone)
		case errors.Is(err, authgate.ErrExchangeNotFound):
			http.Error(w, "exchange not found", http.StatusNotFound)
		default:
			http.Error(w, "exchange unavailable", http.StatusServiceUnavailable)
		}
	}
}

func registerDeviceHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := middleware.StateFromContext(r.Context())

		var body struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		err := engine.RegisterDevice(r.Context(), st.Subject, authgate.Device{
			ID:   body.ID,
			Kind: authgate.DeviceKind(body.Kind),
			Name: body.Name,
		})
		switch {
		case err == nil:
			w.WriteHeader(http.StatusCreated)
		case errors.Is(err, authgate.ErrDeviceExists):
			middleware.WriteFailure(w, &authgate.Failure{Code: authgate.CodeDeviceExists, Err: err})
		default:
			http.Error(w, "device store unavailable", http.StatusServiceUnavailable)
		}
	}
}

func phoneHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := middleware.StateFromContext(r.Context())

		if err := engine.StartPhoneChange(r.Context(), st.Subject, r.FormValue("phoneNumber")); err != nil {
			http.Error(w, "phone change unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func confirmHandler(engine *authgate.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := middleware.StateFromContext(r.Context())

		err := engine.ConfirmPhoneChange(r.Context(), st.Subject, r.FormValue("code"))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, authgate.ErrPhoneChangeRateLimited):
			http.Error(w, "too many attempts", http.StatusTooManyRequests)
		case errors.Is(err, authgate.ErrPhoneNumberNotVerified):
			middleware.WriteFailure(w, &authgate.Failure{Code: authgate.CodePhoneNumberNotVerified, Err: err})
		default:
			http.Error(w, "phone change unavailable", http.StatusServiceUnavailable)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------------------------------------------------------------------------
// In-process device and account stores.
// ---------------------------------------------------------------------------

type memoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]map[string]authgate.Device
}

func newMemoryDeviceStore() *memoryDeviceStore {
	return &memoryDeviceStore{devices: make(map[string]map[string]authgate.Device)}
}

func (s *memoryDeviceStore) CountMobileDevices(_ context.Context, subject string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.devices[subject] {
		if d.Kind == authgate.DeviceMobile {
			n++
		}
	}
	return n, nil
}

func (s *memoryDeviceStore) CountAllDevices(_ context.Context, subject string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices[subject]), nil
}

func (s *memoryDeviceStore) RegisterDevice(_ context.Context, subject string, device authgate.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[subject][device.ID]; ok {
		return authgate.ErrDeviceExists
	}
	if s.devices[subject] == nil {
		s.devices[subject] = make(map[string]authgate.Device)
	}
	s.devices[subject][device.ID] = device
	return nil
}

type memoryAccountStore struct {
	mu       sync.RWMutex
	verified map[string]bool
	numbers  map[string]string
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{
		verified: make(map[string]bool),
		numbers:  make(map[string]string),
	}
}

func (s *memoryAccountStore) PhoneVerified(_ context.Context, subject string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verified[subject], nil
}

func (s *memoryAccountStore) SetPhoneNumber(_ context.Context, subject, number string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numbers[subject] = number
	s.verified[subject] = verified
	return nil
}

// logSMS stands in for a real SMS gateway. Wire a provider client here.
type logSMS struct{}

func (logSMS) SendSMS(_ context.Context, toNumber, body string) error {
	log.Printf("SMS to %s: %s", toNumber, body)
	return nil
}
