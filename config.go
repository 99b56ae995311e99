package authgate

import (
	"errors"
	"time"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token       TokenConfig
	Exchange    ExchangeConfig
	PhoneChange PhoneChangeConfig
	Provider    ProviderConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authgate APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	CookieName    string
}

/*
====================================
EXCHANGE CONFIG
====================================
*/

// ExchangeConfig defines a public type used by authgate APIs.
//
// ExchangeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ExchangeConfig struct {
	TTL           time.Duration
	RedisPrefix   string
	SweepInterval time.Duration // 0 disables the background sweeper
}

// PhoneChangeConfig defines a public type used by authgate APIs.
//
// PhoneChangeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PhoneChangeConfig struct {
	Enabled     bool
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
	RedisPrefix string
}

// ProviderConfig bounds calls to external collaborators (identity provider,
// device store, account store). A timeout is reported as the calling check's
// normal failure, not a distinct code.
type ProviderConfig struct {
	Timeout time.Duration
}

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
			CookieName:    "accessToken",
		},
		Exchange: ExchangeConfig{
			TTL:           60 * time.Second,
			RedisPrefix:   "axh",
			SweepInterval: 0,
		},
		PhoneChange: PhoneChangeConfig{
			Enabled:     true,
			CodeTTL:     5 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 5,
			RedisPrefix: "apc",
		},
		Provider: ProviderConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.TTL > time.Hour {
		return errors.New("Token TTL must be <= 1h; access tokens are short-lived by contract")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported Token signing method")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.CookieName == "" {
		return errors.New("Token CookieName must not be empty")
	}

	// Exchange
	if c.Exchange.TTL <= 0 {
		return errors.New("Exchange TTL must be > 0")
	}
	if c.Exchange.TTL > 10*time.Minute {
		return errors.New("Exchange TTL must be <= 10m; handoffs are time-boxed by contract")
	}
	if c.Exchange.SweepInterval < 0 {
		return errors.New("Exchange SweepInterval must be >= 0")
	}
	if c.Exchange.RedisPrefix == "" {
		return errors.New("Exchange RedisPrefix must not be empty")
	}

	// Phone change
	if c.PhoneChange.Enabled {
		if c.PhoneChange.CodeTTL <= 0 {
			return errors.New("PhoneChange CodeTTL must be > 0")
		}
		if c.PhoneChange.CodeDigits < 6 || c.PhoneChange.CodeDigits > 10 {
			return errors.New("PhoneChange CodeDigits must be between 6 and 10")
		}
		if c.PhoneChange.MaxAttempts <= 0 {
			return errors.New("PhoneChange MaxAttempts must be > 0")
		}
		if c.PhoneChange.RedisPrefix == "" {
			return errors.New("PhoneChange RedisPrefix must not be empty")
		}
	}

	// Provider
	if c.Provider.Timeout <= 0 {
		return errors.New("Provider Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
