package authgate

import "errors"

var (
	// ErrIdentityInvalid is an exported constant or variable used by the gateway engine.
	ErrIdentityInvalid = errors.New("invalid identity token")
	// ErrIdentityUnavailable is an exported constant or variable used by the gateway engine.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
	// ErrAccessTokenInvalid is an exported constant or variable used by the gateway engine.
	ErrAccessTokenInvalid = errors.New("invalid access token")
	// ErrExchangeNotFound is an exported constant or variable used by the gateway engine.
	ErrExchangeNotFound = errors.New("exchange entry not found")
	// ErrExchangeExpired is an exported constant or variable used by the gateway engine.
	ErrExchangeExpired = errors.New("exchange entry expired")
	// ErrExchangeUnavailable is an exported constant or variable used by the gateway engine.
	ErrExchangeUnavailable = errors.New("exchange backend unavailable")
	// ErrDeviceExists is an exported constant or variable used by the gateway engine.
	ErrDeviceExists = errors.New("device already registered")
	// ErrPhoneNumberNotVerified is an exported constant or variable used by the gateway engine.
	ErrPhoneNumberNotVerified = errors.New("phone number not verified")
	// ErrPhoneChangeRateLimited is an exported constant or variable used by the gateway engine.
	ErrPhoneChangeRateLimited = errors.New("phone change attempts exceeded")
	// ErrPhoneChangeUnavailable is an exported constant or variable used by the gateway engine.
	ErrPhoneChangeUnavailable = errors.New("phone change backend unavailable")
	// ErrProviderUnavailable is an exported constant or variable used by the gateway engine.
	ErrProviderUnavailable = errors.New("collaborator backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the gateway engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
