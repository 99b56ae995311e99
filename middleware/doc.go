// Package middleware adapts authgate validation chains to net/http.
//
// ChainGuard extracts the chain inputs from the incoming request, runs the
// chain through the engine, and either rejects the request with the stable
// JSON error contract ({"error": "<code>"} plus the mapped status) or passes
// the accumulated chain state to the next handler via the request context.
package middleware
