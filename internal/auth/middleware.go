package auth

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

const bearerPrefix = "bearer "

// Bearer attaches the principal carried by a valid Authorization header. Requests
// without the header pass through untouched; a malformed or invalid token is
// rejected with 401.
func Bearer(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, err := extractBearerToken(header)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			claims, err := tokens.Parse(token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{UserID: claims.Subject, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects requests that carry neither a bearer token nor a
// session bound to a user.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return "", shared.Detail(shared.ErrUnauthenticated, "invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", shared.Detail(shared.ErrUnauthenticated, "missing bearer token")
	}
	return token, nil
}
