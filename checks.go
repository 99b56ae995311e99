package authgate

import (
	"context"
	"errors"
	"strings"
)

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func (e *Engine) verifyIdentity(ctx context.Context, req Request, st State, requireVerifiedEmail bool) (State, *Failure) {
	if req.AuthorizationHeader == "" {
		return st, failure(CodeMissingHeader, nil)
	}
	raw, ok := bearerToken(req.AuthorizationHeader)
	if !ok {
		return st, failure(CodeMissingBearer, nil)
	}

	callCtx, cancel := e.providerContext(ctx)
	defer cancel()

	identity, err := e.identity.VerifyIdentityToken(callCtx, raw)
	if err != nil {
		// A timed-out provider reads the same as a rejected credential.
		e.metricInc(MetricIdentityRejected)
		return st, failure(CodeInvalidIdentityToken, err)
	}
	if requireVerifiedEmail && !identity.EmailVerified {
		e.metricInc(MetricIdentityRejected)
		return st, failure(CodeInvalidIdentityToken, errors.New("email not verified"))
	}

	st.Subject = identity.Subject
	st.EmailVerified = identity.EmailVerified
	return st, nil
}

// IdentityCheck verifies the first-factor bearer token with the identity
// provider and writes the resolved subject into the chain state.
func (e *Engine) IdentityCheck() Check {
	return Check{
		Name: "identity",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			return e.verifyIdentity(ctx, req, st, false)
		},
	}
}

// EmailVerifiedCheck is IdentityCheck for endpoints that require a fully
// onboarded account: the provider must also report the email as verified.
func (e *Engine) EmailVerifiedCheck() Check {
	return Check{
		Name: "identity-email-verified",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			return e.verifyIdentity(ctx, req, st, true)
		},
	}
}

func (e *Engine) runAccessTokenCheck(req Request, st State) (State, *Failure) {
	if st.Subject == "" {
		// A subject-producing check must run earlier in the same chain.
		return st, failure(CodeInvalidAccessToken, errors.New("no subject resolved before access token check"))
	}
	if err := e.tokens.Verify(req.AccessToken, st.Subject); err != nil {
		e.metricInc(MetricTokenRejected)
		return st, failure(CodeInvalidAccessToken, err)
	}

	e.metricInc(MetricTokenVerified)
	st.HasAccess = true
	return st, nil
}

// AccessTokenCheck hard-verifies the session cookie against the subject
// resolved earlier in the chain. Used as a gate on mutating endpoints.
func (e *Engine) AccessTokenCheck() Check {
	return Check{
		Name: "access-token",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			return e.runAccessTokenCheck(req, st)
		},
	}
}

// SoftAccessCheck annotates the state with whether the request currently
// carries session access. It never fails; read endpoints use it to decide
// what to reveal rather than whether to answer.
func (e *Engine) SoftAccessCheck() Check {
	return Check{
		Name: "access-token-soft",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			st.HasAccess = e.tokens.Check(req.AccessToken, st.Subject)
			return st, nil
		},
	}
}

// ConditionalSecondFactorCheck gates a sensitive field mutation behind the
// access token, but only when the gate can actually be satisfied: when the
// request does not touch the field, or the subject has no usable
// second-factor method, the check passes unconditionally so nobody is locked
// out by a gate they cannot clear.
func (e *Engine) ConditionalSecondFactorCheck(paramName string) Check {
	return Check{
		Name: "conditional-second-factor",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			if req.Param(paramName) == "" {
				e.metricInc(MetricSecondFactorSkipped)
				return st, nil
			}

			caps, err := e.Capabilities(ctx, st.Subject)
			if err != nil {
				// Fail closed with the delegated check's code.
				return st, failure(CodeInvalidAccessToken, err)
			}
			if !caps.Any() {
				e.metricInc(MetricSecondFactorSkipped)
				return st, nil
			}

			e.metricInc(MetricSecondFactorEnforced)
			return e.runAccessTokenCheck(req, st)
		},
	}
}

// RequireParams fails with MissingParameter:<field> for the first absent or
// empty field, in declaration order.
func RequireParams(fields ...string) Check {
	return Check{
		Name: "require-params",
		Run: func(ctx context.Context, req Request, st State) (State, *Failure) {
			for _, field := range fields {
				if req.Param(field) == "" {
					return st, failure(MissingParameterCode(field), nil)
				}
			}
			return st, nil
		},
	}
}
