package middleware

import (
	"context"
	"net/http"

	"dealerdesk/internal/requestdata"
)

type contextKeyDataContext struct{}

// DataScope constructs the request's data context from the authenticated
// tenant and guarantees its release on every exit path: normal completion,
// handler error, timeout, and panic (Recovery sits outside this middleware,
// so the deferred release runs before the panic is swallowed).
//
// This is the structured replacement for "response finished" cleanup
// callbacks: a handler cannot opt out of the release.
func DataScope(factory *requestdata.Factory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := factory.NewContext(GetTenantID(r.Context()))
			defer rc.Release()

			ctx := context.WithValue(r.Context(), contextKeyDataContext{}, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetDataContext retrieves the request's data context. Handlers must use this
// rather than constructing contexts themselves, so the pipeline keeps control
// of the release.
func GetDataContext(ctx context.Context) *requestdata.Context {
	rc, _ := ctx.Value(contextKeyDataContext{}).(*requestdata.Context)
	return rc
}
