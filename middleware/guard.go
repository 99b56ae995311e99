package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	authgate "github.com/sessionforge/authgate"
)

type chainStateContextKey struct{}

// StateFromContext returns the chain state accumulated by a ChainGuard
// earlier in the handler stack.
func StateFromContext(ctx context.Context) (authgate.State, bool) {
	st, ok := ctx.Value(chainStateContextKey{}).(authgate.State)
	return st, ok
}

// RequestFromHTTP extracts the chain inputs from an incoming request: the
// Authorization header, the access-token cookie, and the query plus form
// parameters.
func RequestFromHTTP(r *http.Request, cookieName string) authgate.Request {
	req := authgate.Request{
		AuthorizationHeader: r.Header.Get("Authorization"),
		Params:              map[string]string{},
	}

	if c, err := r.Cookie(cookieName); err == nil {
		req.AccessToken = c.Value
	}

	_ = r.ParseForm()
	for name, values := range r.Form {
		if len(values) > 0 {
			req.Params[name] = values[0]
		}
	}

	return req
}

// ChainGuard runs a validation chain before the wrapped handler. The first
// failing check terminates the request with that check's code; on success
// the chain state is attached to the request context.
func ChainGuard(engine *authgate.Engine, chain authgate.Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authgate.WithClientIP(r.Context(), clientIP(r))
			req := RequestFromHTTP(r, engine.CookieName())

			st, fail := engine.RunChain(ctx, req, chain)
			if fail != nil {
				WriteFailure(w, fail)
				return
			}

			ctx = context.WithValue(ctx, chainStateContextKey{}, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteFailure writes the stable error contract for a chain failure:
// {"error": "<code>"} with the code's mapped HTTP status.
func WriteFailure(w http.ResponseWriter, fail *authgate.Failure) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fail.Code.Status())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": string(fail.Code),
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
