// Package token implements the access token service: issuance and
// verification of signed, short-lived, self-contained tokens asserting that
// first-factor login recently succeeded, plus their cookie binding.
//
// Tokens are never stored server-side. A token is valid when its signature
// checks out, it has not expired, its subject matches the expected subject,
// and it carries the access marker claim. Verify enforces all four; Check is
// the soft variant for endpoints that degrade instead of rejecting.
//
// The signing key is loaded once at construction and read through a single
// internal accessor, which is the extension point for future key rotation.
package token
