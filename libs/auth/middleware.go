package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/fureverhome/pawbook/libs/httpx"
)

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// Middleware rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so an access_token query parameter is
// accepted as a fallback.
func Middleware(v *Verifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				httpx.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// SubjectKey keys per-caller rate limits by token subject, falling back to IP.
func SubjectKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return "sub:" + p.Subject
	}
	return "ip:" + httpx.ClientIP(r)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
