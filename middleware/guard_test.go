package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgate "github.com/sessionforge/authgate"
)

type mapIdentityProvider map[string]authgate.Identity

func (m mapIdentityProvider) VerifyIdentityToken(ctx context.Context, token string) (authgate.Identity, error) {
	id, ok := m[token]
	if !ok {
		return authgate.Identity{}, errors.New("unknown identity token")
	}
	return id, nil
}

func newGuardEngine(t *testing.T) (*authgate.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authgate.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(mapIdentityProvider{
			"idp-token-u1": {Subject: "u1", EmailVerified: true},
		}).
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

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not the JSON error contract: %v", err)
	}
	return body["error"]
}

func TestChainGuardRejectsBadIdentityToken(t *testing.T) {
	engine, done := newGuardEngine(t)
	defer done()

	handler := ChainGuard(engine, authgate.Chain{engine.IdentityCheck()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run after a chain failure")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got != "InvalidIdentityToken" {
		t.Fatalf("error = %q, want InvalidIdentityToken", got)
	}
}

func TestChainGuardMissingHeader(t *testing.T) {
	engine, done := newGuardEngine(t)
	defer done()

	handler := ChainGuard(engine, authgate.Chain{engine.IdentityCheck()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := decodeError(t, rec); got != "MissingHeader" {
		t.Fatalf("error = %q, want MissingHeader", got)
	}
}

func TestChainGuardMissingParameter(t *testing.T) {
	engine, done := newGuardEngine(t)
	defer done()

	chain := authgate.Chain{engine.IdentityCheck(), authgate.RequireParams("phoneNumber")}
	handler := ChainGuard(engine, chain)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	req := httptest.NewRequest(http.MethodGet, "/phone", nil)
	req.Header.Set("Authorization", "Bearer idp-token-u1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
	if got := decodeError(t, rec); got != "MissingParameter:phoneNumber" {
		t.Fatalf("error = %q, want MissingParameter:phoneNumber", got)
	}
}

func TestChainGuardInjectsState(t *testing.T) {
	engine, done := newGuardEngine(t)
	defer done()

	var seen authgate.State
	var ok bool
	handler := ChainGuard(engine, authgate.Chain{engine.IdentityCheck()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, ok = StateFromContext(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer idp-token-u1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ok {
		t.Fatal("chain state missing from the request context")
	}
	if seen.Subject != "u1" || !seen.EmailVerified {
		t.Fatalf("unexpected state: %+v", seen)
	}
}

func TestRequestFromHTTP(t *testing.T) {
	form := url.Values{"phoneNumber": {"+15550100"}}
	req := httptest.NewRequest(http.MethodPost, "/phone?source=web", strings.NewReader(form.Encode()))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "tok123"})

	out := RequestFromHTTP(req, "accessToken")

	if out.AuthorizationHeader != "Bearer abc" {
		t.Fatalf("header = %q", out.AuthorizationHeader)
	}
	if out.AccessToken != "tok123" {
		t.Fatalf("access token = %q", out.AccessToken)
	}
	if out.Param("phoneNumber") != "+15550100" {
		t.Fatalf("form param = %q", out.Param("phoneNumber"))
	}
	if out.Param("source") != "web" {
		t.Fatalf("query param = %q", out.Param("source"))
	}
	if out.Param("missing") != "" {
		t.Fatal("absent params must read as empty")
	}
}
