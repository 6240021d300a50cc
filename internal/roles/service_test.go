package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type memoryRoleRepo struct {
	roles map[string]Role
	perms map[string][]string
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles: map[string]Role{"r-mgr": {ID: "r-mgr", Name: "manager", Level: 70, IsActive: true}},
		perms: map[string][]string{},
	}
}

func (m *memoryRoleRepo) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		if !filter.IncludeInactive && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRoleRepo) GetRole(ctx context.Context, id string) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *memoryRoleRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return Role{}, shared.ErrConflict
		}
	}
	role.ID = "r-" + role.Name
	role.IsActive = true
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRoleRepo) ListRolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	return m.perms[roleID], nil
}

func (m *memoryRoleRepo) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	m.perms[roleID] = permissionIDs
	return nil
}

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Invalidate(ctx context.Context) error {
	n.calls++
	return n.err
}

func TestCreateRoleDefaultsFromKind(t *testing.T) {
	svc := NewService(newMemoryRoleRepo(), nil, nil)

	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "  Chef_De_Cuisine "})
	require.NoError(t, err)
	require.Equal(t, "chef_de_cuisine", role.Name)
	require.Equal(t, "Chef De Cuisine", role.DisplayName)
	require.Equal(t, DefaultLevel(KindChefDeCuisine), role.Level)

	hr, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "hr", Level: 55})
	require.NoError(t, err)
	require.Equal(t, "HR", hr.DisplayName)
	require.Equal(t, 55, hr.Level)
}

func TestCreateRoleValidation(t *testing.T) {
	svc := NewService(newMemoryRoleRepo(), nil, nil)

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(context.Background(), CreateRoleInput{Name: "baker", Level: -1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(context.Background(), CreateRoleInput{Name: "manager"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSetRolePermissionsDedupesAndInvalidates(t *testing.T) {
	repo := newMemoryRoleRepo()
	notifier := &countingNotifier{}
	svc := NewService(repo, notifier, nil)

	err := svc.SetRolePermissions(context.Background(), "r-mgr", []string{"p1", " p2 ", "p1", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, repo.perms["r-mgr"])
	require.Equal(t, 1, notifier.calls)

	ids, err := svc.RolePermissionIDs(context.Background(), "r-mgr")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids)
}

func TestSetRolePermissionsUnknownRole(t *testing.T) {
	notifier := &countingNotifier{}
	svc := NewService(newMemoryRoleRepo(), notifier, nil)

	err := svc.SetRolePermissions(context.Background(), "missing", []string{"p1"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, notifier.calls)

	_, err = svc.RolePermissionIDs(context.Background(), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetRolePermissionsToleratesNotifierFailure(t *testing.T) {
	notifier := &countingNotifier{err: errors.New("redis down")}
	svc := NewService(newMemoryRoleRepo(), notifier, nil)

	require.NoError(t, svc.SetRolePermissions(context.Background(), "r-mgr", []string{"p1"}))
	require.Equal(t, 1, notifier.calls)
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		require.Equal(t, k, KindOf(k.String()), k.String())
		require.Positive(t, DefaultLevel(k), k.String())
	}
	require.Equal(t, KindUnknown, KindOf("sommelier"))
	require.Empty(t, FallbackPermissions(KindUnknown))
	require.ElementsMatch(t, shared.AllPermissionNames(), FallbackPermissions(KindAdmin))
}
