package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/roles"
)

func assignment(location string, level int, active bool) Assignment {
	return Assignment{LocationID: location, IsActive: active, Role: &roles.Role{Level: level}}
}

func TestAuthorityLevel(t *testing.T) {
	require.Zero(t, AuthorityLevel(nil))
	require.Equal(t, 70, AuthorityLevel([]Assignment{assignment("L1", 30, true), assignment("L2", 70, true), assignment("L3", 90, false)}))
	require.Zero(t, AuthorityLevel([]Assignment{{LocationID: "L1", IsActive: true}}))
}

func TestCanManageIsStrict(t *testing.T) {
	gm := []Assignment{assignment("L1", 90, true)}
	manager := []Assignment{assignment("L1", 70, true)}
	peer := []Assignment{assignment("L2", 70, true)}

	require.True(t, CanManage(gm, manager))
	require.False(t, CanManage(manager, gm))
	require.False(t, CanManage(manager, peer))
	require.False(t, CanManage(manager, manager))
	require.True(t, CanManage(manager, nil))
	require.False(t, CanManage(nil, nil))
}

func TestLocations(t *testing.T) {
	assignments := []Assignment{assignment("L2", 10, true), assignment("L1", 20, true), assignment("L2", 30, true), assignment("L3", 40, false)}
	require.Equal(t, []string{"L2", "L1"}, Locations(assignments))
	require.True(t, HasLocationAccess(assignments, "L1"))
	require.False(t, HasLocationAccess(assignments, "L3"))
}

func TestGroupByCategory(t *testing.T) {
	grouped := GroupByCategory([]Permission{
		{Name: "view_orders", Category: "orders"},
		{Name: "view_haccp", Category: "haccp"},
		{Name: "manage_orders", Category: "orders"},
	})
	require.Len(t, grouped, 2)
	require.Equal(t, "view_orders", grouped["orders"][0].Name)
	require.Equal(t, "manage_orders", grouped["orders"][1].Name)
}
