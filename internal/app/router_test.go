package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	_ "github.com/odyssey-erp/odyssey-access/internal/testing/guard"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.Tokens) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens, err := auth.NewTokens("router-secret", time.Hour)
	require.NoError(t, err)
	router := NewRouter(RouterParams{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppEnv: "test", AppRequestTimeout: time.Second},
		SessionManager: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		Tokens:         tokens,
		Metrics:        observability.NewMetrics(),
	})
	return router, tokens
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequirePrincipal(t *testing.T) {
	router, tokens := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	issued, err := tokens.Issue(auth.Identity{ID: "u-1", Email: "a@example.com"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/users/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{SessionSecret: "s", AuthSecret: "a", SiteURL: "https://example.com"}
	require.NoError(t, cfg.validate())

	missing := cfg
	missing.AuthSecret = ""
	require.Error(t, missing.validate())

	missing = cfg
	missing.SiteURL = ""
	require.Error(t, missing.validate())
}
