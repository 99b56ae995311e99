package authgate

import "context"

// Request carries the request-scoped inputs a validation chain may examine.
// It is assembled once per request (the middleware package does this for
// net/http) and never mutated by checks.
type Request struct {
	// AuthorizationHeader is the raw Authorization header value, expected
	// to be of the form "Bearer <token>".
	AuthorizationHeader string
	// AccessToken is the value of the access-token cookie, if present.
	AccessToken string
	// Params are the request fields visible to field-presence and
	// second-factor checks.
	Params map[string]string
}

// Param returns a request field by name, or "" when absent.
func (r Request) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// State is the enrichment accumulated by a chain run. Checks return a new
// State instead of mutating shared request state; downstream business logic
// reads it from the request context.
type State struct {
	Subject       string
	EmailVerified bool
	HasAccess     bool
}

// Failure is the terminal outcome of a failed check. Only the first failure
// of a chain is ever reported; later checks never run.
type Failure struct {
	Code Code
	Err  error
}

func failure(code Code, err error) *Failure {
	return &Failure{Code: code, Err: err}
}

// Check is one named verification step. Run either returns the enriched
// state or a Failure; it must not do both.
type Check struct {
	Name string
	Run  func(ctx context.Context, req Request, st State) (State, *Failure)
}

// Chain is an ordered sequence of checks executed strictly in order.
//
// Chain instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Chain []Check

// Run executes the chain against one request: each check sees the state
// accumulated by its predecessors, and the first failure stops execution so
// nothing about later checks leaks to the client.
func (c Chain) Run(ctx context.Context, req Request) (State, *Failure) {
	var st State
	for _, check := range c {
		next, fail := check.Run(ctx, req, st)
		if fail != nil {
			return st, fail
		}
		st = next
	}
	return st, nil
}
