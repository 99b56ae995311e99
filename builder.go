package authgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/sessionforge/authgate/internal/stores"
	"github.com/sessionforge/authgate/token"
)

// Builder defines a public type used by authgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity IdentityProvider
	devices  DeviceProvider
	accounts AccountProvider
	sms      SMSSender

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
//
// WithIdentityProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityProvider(ip IdentityProvider) *Builder {
	b.identity = ip
	return b
}

// WithDeviceProvider describes the withdeviceprovider operation and its observable behavior.
//
// WithDeviceProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDeviceProvider(dp DeviceProvider) *Builder {
	b.devices = dp
	return b
}

// WithAccountProvider describes the withaccountprovider operation and its observable behavior.
//
// WithAccountProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountProvider(ap AccountProvider) *Builder {
	b.accounts = ap
	return b
}

// WithSMSSender describes the withsmssender operation and its observable behavior.
//
// WithSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSMSSender(s SMSSender) *Builder {
	b.sms = s
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider is required")
	}

	tokens, err := token.NewManager(token.Config{
		TTL:           b.config.Token.TTL,
		SigningMethod: token.SigningMethod(b.config.Token.SigningMethod),
		PrivateKey:    b.config.Token.PrivateKey,
		PublicKey:     b.config.Token.PublicKey,
		Issuer:        b.config.Token.Issuer,
		Leeway:        b.config.Token.Leeway,
		CookieName:    b.config.Token.CookieName,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       b.config,
		tokens:       tokens,
		exchange:     stores.NewExchangeStore(b.redis, b.config.Exchange.RedisPrefix, b.config.Exchange.TTL),
		phoneChanges: newPhoneChangeStore(b.redis, b.config.PhoneChange.RedisPrefix),
		identity:     b.identity,
		devices:      b.devices,
		accounts:     b.accounts,
		sms:          b.sms,
		audit:        newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:      NewMetrics(b.config.Metrics),
	}

	if interval := b.config.Exchange.SweepInterval; interval > 0 {
		engine.sweepDone = make(chan struct{})
		engine.sweepWG.Add(1)
		go engine.runSweeper(interval)
	}

	b.built = true
	return engine, nil
}
