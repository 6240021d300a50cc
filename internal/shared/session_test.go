package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		return nil
	}
	return cookies[0]
}

func TestAnonymousSessionIsNotPersisted(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Nil(t, commit(t, sm, sess))
	require.Empty(t, mr.Keys())
}

func TestBoundSessionRoundTrip(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("u-1")
	cookie := commit(t, sm, sess)
	require.NotNil(t, cookie)
	require.Len(t, mr.Keys(), 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "u-1", loaded.User())
	require.Equal(t, sess.ID, loaded.ID)
}

func TestTamperedCookieStartsFreshSession(t *testing.T) {
	sm, _ := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("u-1")
	cookie := commit(t, sm, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID + ".forged"})
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, loaded.User())
	require.NotEqual(t, cookie.Value, loaded.ID)
}

func TestRebindingRotatesID(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser("u-1")
	cookie := commit(t, sm, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	oldID := loaded.ID
	loaded.SetUser("u-2")
	require.NotEqual(t, oldID, loaded.ID)
	commit(t, sm, loaded)
	require.False(t, mr.Exists("session:"+oldID))
	require.True(t, mr.Exists("session:"+loaded.ID))
}

func TestDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser("u-1")
	commit(t, sm, sess)
	sm.Destroy(sess)
	cookie := commit(t, sm, sess)
	require.NotNil(t, cookie)
	require.Equal(t, -1, cookie.MaxAge)
	require.Empty(t, mr.Keys())
}
