// Package authgate provides an authentication and session-capability gateway:
// cookie-bound short-lived access tokens, a single-use identity exchange, and
// per-request resolution of the second-factor methods an account may use.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the validation [Chain] machinery, and value types (State, Failure,
// MetricsSnapshot). Ephemeral storage and secret generation live under
// internal/ and are never exported. The access token service and the
// capability resolver are small standalone subpackages ([token],
// [capability]) so they can be consumed without the Engine.
//
// # What this package must NOT do
//
//   - Verify identity-provider tokens itself. First-factor verification is
//     delegated to an [IdentityProvider]; the oidcprovider subpackage ships a
//     real implementation.
//   - Own durable account or device records. Those are reached through
//     [AccountProvider] and [DeviceProvider].
//   - Retry failed operations. Every operation here is either safe to repeat
//     (capability resolution) or explicitly single-use (exchange resolution);
//     retries belong to the caller.
//
// # Failure contract
//
// Validation chains stop at the first failing check and report only that
// check's [Code]. The code-to-HTTP-status mapping is a stable contract and is
// exercised by the middleware package.
package authgate
