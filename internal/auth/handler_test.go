package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	_ "github.com/odyssey-erp/odyssey-access/testing"
)

type stubRepo struct {
	user     *auth.Identity
	sessions map[string]string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID string, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]string{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func newTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	return tokens
}

func newAuthHandler(t *testing.T, repo *stubRepo) (*auth.Handler, *shared.SessionManager, *auth.Tokens) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	tokens := newTokens(t)
	handler := auth.NewHandler(nil, auth.NewService(repo, tokens), sessionManager)
	return handler, sessionManager, tokens
}

func activeUser(t *testing.T) *auth.Identity {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.Identity{ID: "01HUSER", Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}
}

func postToken(t *testing.T, handler *auth.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chiRouter(handler)
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestIssueTokenSuccess(t *testing.T) {
	repo := &stubRepo{user: activeUser(t)}
	handler, _, tokens := newAuthHandler(t, repo)

	res := postToken(t, handler, `{"email":"User@Test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.True(t, payload.Success)

	claims, err := tokens.Parse(payload.Token)
	require.NoError(t, err)
	require.Equal(t, "01HUSER", claims.Subject)
	require.Len(t, repo.sessions, 1)
}

func TestIssueTokenInvalidCredentials(t *testing.T) {
	handler, _, _ := newAuthHandler(t, &stubRepo{user: activeUser(t)})

	res := postToken(t, handler, `{"email":"user@test.local","password":"wrongpass"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), shared.ErrInvalidCredentials.Error())

	res = postToken(t, handler, `{"email":"nobody@test.local","password":"wrongpass"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestIssueTokenValidation(t *testing.T) {
	handler, _, _ := newAuthHandler(t, &stubRepo{})

	res := postToken(t, handler, `{"email":"not-an-email","password":"123"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), `"Email":"email"`)
	require.Contains(t, res.Body.String(), `"Password":"min"`)

	res = postToken(t, handler, `{"email":"a@b.c","password":"123456","extra":1}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestInactiveIdentityCannotAuthenticate(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	svc := auth.NewService(&stubRepo{user: user}, newTokens(t))
	_, err := svc.Authenticate(context.Background(), user.Email, "correctpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{}
	handler, sessionManager, _ := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("01HUSER")
	require.NoError(t, repo.CreateSession(context.Background(), sess.ID, "01HUSER", time.Now().Add(time.Hour), "", ""))

	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	chiRouter(handler).ServeHTTP(res, req)
	require.NoError(t, sessionManager.Commit(ctx, res, req, sess))

	require.Equal(t, http.StatusNoContent, res.Code)
	require.Empty(t, repo.sessions)
	require.Contains(t, res.Header().Get("Set-Cookie"), "Max-Age=0")
}
