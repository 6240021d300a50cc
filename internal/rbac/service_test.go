package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/roles"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type memoryStore struct {
	mu          sync.Mutex
	roles       map[string]roles.Role
	catalog     map[string][]string
	permissions map[string]Permission
	assignments []Assignment
	overrides   []Override
	nextID      int
	failWith    error
	loads       int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:       map[string]roles.Role{},
		catalog:     map[string][]string{},
		permissions: map[string]Permission{},
	}
}

func (m *memoryStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%03d", prefix, m.nextID)
}

func (m *memoryStore) ListAssignments(ctx context.Context, scope Scope) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Assignment
	for _, a := range m.assignments {
		if a.UserID != scope.UserID || (scope.LocationID != "" && a.LocationID != scope.LocationID) {
			continue
		}
		if role, ok := m.roles[a.RoleID]; ok {
			a.Role = &role
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryStore) RolePermissionNames(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(roleIDs))
	for _, id := range roleIDs {
		if names, ok := m.catalog[id]; ok {
			out[id] = append([]string(nil), names...)
		}
	}
	return out, nil
}

func (m *memoryStore) ListOverrides(ctx context.Context, scope Scope) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Override
	for _, o := range m.overrides {
		if o.UserID == scope.UserID && (scope.LocationID == "" || o.LocationID == scope.LocationID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) GetPermission(ctx context.Context, id string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) InsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id("ura")
	m.assignments = append(m.assignments, a)
	return a, nil
}

func (m *memoryStore) DeactivateAssignment(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.assignments {
		if m.assignments[i].ID == id && m.assignments[i].UserID == userID {
			m.assignments[i].IsActive = false
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryStore) InsertOverride(ctx context.Context, o Override) (Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.id("up")
	m.overrides = append(m.overrides, o)
	return o, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) RecordResolution(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func seededStore() *memoryStore {
	store := newMemoryStore()
	store.roles["role-manager"] = roles.Role{ID: "role-manager", Name: "manager", Level: 70, IsActive: true}
	store.roles["role-runner"] = roles.Role{ID: "role-runner", Name: "runner", Level: 20, IsActive: true}
	store.catalog["role-manager"] = []string{shared.PermViewOrders, shared.PermManageOrders}
	store.permissions["perm-orders"] = Permission{ID: "perm-orders", Name: shared.PermManageOrders, Category: "orders"}
	store.assignments = []Assignment{
		{ID: "a1", UserID: "manager", RoleID: "role-manager", LocationID: "L1", IsActive: true},
		{ID: "a2", UserID: "runner", RoleID: "role-runner", LocationID: "L1", IsActive: true},
	}
	return store
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestEffectivePermissionsByLocation(t *testing.T) {
	svc := NewService(seededStore(), nil)
	ctx := context.Background()

	set, err := svc.EffectivePermissions(ctx, "manager", "L1")
	require.NoError(t, err)
	require.Equal(t, []string{shared.PermManageOrders, shared.PermViewOrders}, set.Names())

	set, err = svc.EffectivePermissions(ctx, "manager", "L2")
	require.NoError(t, err)
	require.Zero(t, set.Len())

	set, err = svc.EffectivePermissions(ctx, "nobody", "")
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestEffectivePermissionsStorageFailureIsNotEmptySet(t *testing.T) {
	store := seededStore()
	store.failWith = errors.New("connection reset")
	svc := NewService(store, nil)

	_, err := svc.EffectivePermissions(context.Background(), "manager", "L1")
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrPersistence)

	ok, err := svc.HasPermission(context.Background(), "manager", "L1", shared.PermViewOrders)
	require.Error(t, err)
	require.False(t, ok)
}

// gatedStore blocks assignment loads until released and fails like a driver would
// when the query context is already cancelled.
type gatedStore struct {
	*memoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) ListAssignments(ctx context.Context, scope Scope) ([]Assignment, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.memoryStore.ListAssignments(ctx, scope)
}

func TestSharedResolutionSurvivesFirstCallerCancel(t *testing.T) {
	store := &gatedStore{memoryStore: seededStore(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	var (
		wg                   sync.WaitGroup
		leaderErr, followErr error
		followSet            PermissionSet
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = svc.EffectivePermissions(leaderCtx, "manager", "L1")
	}()
	<-store.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		followSet, followErr = svc.EffectivePermissions(context.Background(), "manager", "L1")
	}()
	cancel()
	close(store.release)
	wg.Wait()

	require.NoError(t, leaderErr)
	require.NoError(t, followErr)
	require.True(t, followSet.Has(shared.PermManageOrders))
}

func TestEffectivePermissionsRequiresUser(t *testing.T) {
	_, err := NewService(seededStore(), nil).EffectivePermissions(context.Background(), " ", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEffectivePermissionsCachedUntilWrite(t *testing.T) {
	store := seededStore()
	cache, _ := newTestCache(t)
	recorder := &countingRecorder{}
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, WithCache(cache), WithRecorder(recorder), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := svc.EffectivePermissions(ctx, "manager", "L1")
	require.NoError(t, err)
	set, err := svc.EffectivePermissions(ctx, "manager", "L1")
	require.NoError(t, err)
	require.True(t, set.Has(shared.PermManageOrders))
	require.Equal(t, 1, store.loads)
	require.Equal(t, 1, recorder.outcomes["cache_hit"])

	_, err = svc.SetOverride(ctx, OverrideInput{UserID: "manager", PermissionID: "perm-orders", LocationID: "L1", Granted: false, GrantedBy: "admin"})
	require.NoError(t, err)

	set, err = svc.EffectivePermissions(ctx, "manager", "L1")
	require.NoError(t, err)
	require.False(t, set.Has(shared.PermManageOrders))
	require.True(t, set.Has(shared.PermViewOrders))
	require.Equal(t, 2, store.loads)
}

func TestCacheDisabledWithoutClient(t *testing.T) {
	cache := NewCache(nil, 0)
	key, err := cache.Key(context.Background(), Scope{UserID: "u1"})
	require.NoError(t, err)
	require.Empty(t, key)
	require.NoError(t, cache.Set(context.Background(), key, []string{"x"}))
	_, ok, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Invalidate(context.Background()))
}

func TestCacheKeyChangesOnInvalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	before, err := cache.Key(ctx, Scope{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "rbac:perms:0:u1:*", before)
	require.NoError(t, cache.Set(ctx, before, []string{shared.PermViewOrders}))
	require.True(t, mr.Exists(before))

	require.NoError(t, cache.Invalidate(ctx))
	after, err := cache.Key(ctx, Scope{UserID: "u1", LocationID: "L1"})
	require.NoError(t, err)
	require.Equal(t, "rbac:perms:1:u1:L1", after)
	_, ok, err := cache.Get(ctx, after)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAssignRoleAndCanManage(t *testing.T) {
	store := seededStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	ok, err := svc.CanManageUser(ctx, "manager", "runner")
	require.NoError(t, err)
	require.True(t, ok)

	created, err := svc.AssignRole(ctx, AssignRoleInput{UserID: "runner", RoleID: "role-manager", LocationID: "L2", AssignedBy: "admin"})
	require.NoError(t, err)
	require.True(t, created.IsActive)

	ok, err = svc.CanManageUser(ctx, "manager", "runner")
	require.NoError(t, err)
	require.False(t, ok)

	locations, err := svc.UserLocations(ctx, "runner")
	require.NoError(t, err)
	require.Equal(t, []string{"L1", "L2"}, locations)

	require.NoError(t, svc.DeactivateAssignment(ctx, "runner", created.ID))
	level, err := svc.AuthorityLevel(ctx, "runner")
	require.NoError(t, err)
	require.Equal(t, 20, level)

	_, err = svc.AssignRole(ctx, AssignRoleInput{UserID: "runner"})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, svc.DeactivateAssignment(ctx, "runner", "missing"), shared.ErrNotFound)
}

func TestSetOverrideUnknownPermission(t *testing.T) {
	svc := NewService(seededStore(), nil)
	_, err := svc.SetOverride(context.Background(), OverrideInput{UserID: "runner", PermissionID: "missing", LocationID: "L1", Granted: true})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMiddlewareRequireAny(t *testing.T) {
	mw := Middleware{Service: NewService(seededStore(), nil)}
	handler := mw.RequireAny(shared.PermManageOrders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set, err := PermissionsFromContext(r.Context())
		require.NoError(t, err)
		require.True(t, set.Has(shared.PermManageOrders))
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		user   string
		query  string
		status int
	}{
		{name: "granted", user: "manager", query: "?location_id=L1", status: http.StatusNoContent},
		{name: "other location", user: "manager", query: "?location_id=L2", status: http.StatusForbidden},
		{name: "lacking", user: "runner", status: http.StatusForbidden},
		{name: "anonymous", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders"+tc.query, nil)
			if tc.user != "" {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: tc.user}))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestMiddlewareResolutionFailureIsServerError(t *testing.T) {
	store := seededStore()
	store.failWith = errors.New("db down")
	mw := Middleware{Service: NewService(store, nil)}
	handler := mw.RequireAll(shared.PermViewOrders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: "manager"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), `"success":false`)
}

func TestPermissionsFromContextUnresolved(t *testing.T) {
	set, err := PermissionsFromContext(context.Background())
	require.ErrorIs(t, err, ErrUnresolved)
	require.Zero(t, set.Len())
}
