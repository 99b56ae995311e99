package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519 keygen failed: %v", err)
	}

	m, err := NewManager(Config{
		TTL:           ttl,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, 5*time.Minute)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := m.Verify(tok, "u1"); err != nil {
		t.Fatalf("Verify failed immediately after issuance: %v", err)
	}
}

func TestVerifyRejectsWrongSubject(t *testing.T) {
	m := newTestManager(t, 5*time.Minute)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := m.Verify(tok, "u2"); err == nil {
		t.Fatal("expected subject mismatch to fail verification")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, 50*time.Millisecond)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if err := m.Verify(tok, "u1"); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestVerifyRejectsMutatedToken(t *testing.T) {
	m := newTestManager(t, 5*time.Minute)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Flip one character in every segment of the compact form.
	for _, pos := range []int{2, len(tok) / 2, len(tok) - 2} {
		mutated := []byte(tok)
		if mutated[pos] == 'A' {
			mutated[pos] = 'B'
		} else {
			mutated[pos] = 'A'
		}
		if string(mutated) == tok {
			continue
		}
		if err := m.Verify(string(mutated), "u1"); err == nil {
			t.Fatalf("expected mutation at position %d to fail verification", pos)
		}
	}
}

func TestVerifyRejectsMissingAccessMarker(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519 keygen failed: %v", err)
	}

	m, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	// Correctly signed token without the access marker.
	now := time.Now()
	raw := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	signed, err := raw.SignedString(priv)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if err := m.Verify(signed, "u1"); err == nil {
		t.Fatal("expected token without access marker to fail verification")
	}
	if m.Check(signed, "u1") {
		t.Fatal("expected Check to report false without access marker")
	}
}

func TestCheckSoftVariant(t *testing.T) {
	m := newTestManager(t, 5*time.Minute)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !m.Check(tok, "u1") {
		t.Fatal("expected Check to report true for a valid token")
	}
	if m.Check(tok, "other") {
		t.Fatal("expected Check to report false for a foreign subject")
	}
	if m.Check("garbage", "u1") {
		t.Fatal("expected Check to report false for garbage input")
	}
}

func TestCookieAttributesAlignWithTTL(t *testing.T) {
	m := newTestManager(t, 5*time.Minute)

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	c := m.Cookie(tok)
	if c.Name != "accessToken" {
		t.Fatalf("cookie name = %q, want accessToken", c.Name)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatal("cookie must be HttpOnly and Secure")
	}
	if c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("cookie SameSite = %v, want None", c.SameSite)
	}
	if c.MaxAge != 300 {
		t.Fatalf("cookie MaxAge = %d, want 300 (token TTL in seconds)", c.MaxAge)
	}
	if c.Value != tok {
		t.Fatal("cookie value must carry the issued token")
	}

	cleared := m.ClearCookie()
	if cleared.MaxAge != -1 || cleared.Value != "" {
		t.Fatalf("ClearCookie must expire the cookie, got MaxAge=%d Value=%q", cleared.MaxAge, cleared.Value)
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := m.Verify(tok, "u1"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: "none"}); err == nil {
		t.Fatal("expected unsupported signing method to be rejected")
	}
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected missing ed25519 keys to be rejected")
	}
}
