package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

func chiRouter(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func TestTokensRejectTampering(t *testing.T) {
	tokens := newTokens(t)
	issued, err := tokens.Issue(auth.Identity{ID: "01HUSER", Email: "user@test.local"})
	require.NoError(t, err)
	require.Equal(t, "Bearer", issued.TokenType)
	require.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	other, err := auth.NewTokens("another-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(issued.Token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = tokens.Parse(issued.Token + "x")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "01HUSER", Issuer: "odyssey-access"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(unsigned)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokensRequireSecret(t *testing.T) {
	_, err := auth.NewTokens("  ", time.Hour)
	require.Error(t, err)
}

func TestBearerMiddleware(t *testing.T) {
	tokens := newTokens(t)
	issued, err := tokens.Issue(auth.Identity{ID: "01HUSER", Email: "user@test.local"})
	require.NoError(t, err)

	var seen string
	handler := auth.Bearer(tokens)(auth.RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p.UserID
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + issued.Token, status: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + issued.Token, status: http.StatusNoContent},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
			if tc.status == http.StatusNoContent {
				require.Equal(t, "01HUSER", seen)
			}
		})
	}
}
