package authgate

import "context"

// Identity is the result of verifying a first-factor bearer token with the
// identity provider. It is consumed once per request and never persisted.
type Identity struct {
	Subject       string
	EmailVerified bool
}

// IdentityProvider verifies opaque bearer tokens issued by the external
// identity authority. Implementations must treat the token as opaque and
// must not cache verification results. The oidcprovider subpackage ships an
// OIDC-backed implementation.
type IdentityProvider interface {
	VerifyIdentityToken(ctx context.Context, token string) (Identity, error)
}

// DeviceKind classifies a registered device for capability resolution.
//
// DeviceKind values are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DeviceKind string

const (
	// DeviceMobile is an exported constant or variable used by the gateway engine.
	DeviceMobile DeviceKind = "mobile"
	// DeviceDesktop is an exported constant or variable used by the gateway engine.
	DeviceDesktop DeviceKind = "desktop"
)

// Device is the minimal device record the gateway hands to the device store.
type Device struct {
	ID   string
	Kind DeviceKind
	Name string
}

// DeviceProvider is the external device store. The gateway only counts
// records and registers new ones; ownership of the data stays with the
// caller.
type DeviceProvider interface {
	CountMobileDevices(ctx context.Context, subject string) (int, error)
	CountAllDevices(ctx context.Context, subject string) (int, error)
	RegisterDevice(ctx context.Context, subject string, device Device) error
}

// AccountProvider is the external account store. PhoneVerified feeds the
// capability resolver; SetPhoneNumber commits a confirmed phone change.
type AccountProvider interface {
	PhoneVerified(ctx context.Context, subject string) (bool, error)
	SetPhoneNumber(ctx context.Context, subject, number string, verified bool) error
}

// SMSSender delivers second-factor codes out of band. Delivery transport
// (Twilio or otherwise) is entirely the implementer's concern.
type SMSSender interface {
	SendSMS(ctx context.Context, toNumber, body string) error
}
