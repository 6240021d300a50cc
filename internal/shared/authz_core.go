package shared

// Permission names understood by the access engine.
const (
	PermInviteUsers = "invite_users"
	PermManageUsers = "manage_users"
	PermViewUsers   = "view_users"
	PermAssignRoles = "assign_roles"
	PermManageStaff = "manage_staff"

	PermManageInventory = "manage_inventory"
	PermViewInventory   = "view_inventory"
	PermUpdateStock     = "update_stock"

	PermManageOrders  = "manage_orders"
	PermViewOrders    = "view_orders"
	PermApproveOrders = "approve_orders"

	PermManageHACCP        = "manage_haccp"
	PermViewHACCP          = "view_haccp"
	PermCompleteChecklists = "complete_checklists"

	PermManageMaintenance = "manage_maintenance"
	PermViewMaintenance   = "view_maintenance"

	PermViewFinancials   = "view_financials"
	PermManageFinancials = "manage_financials"

	PermManageSettings  = "manage_settings"
	PermViewSettings    = "view_settings"
	PermViewDashboard   = "view_dashboard"
	PermManageLocations = "manage_locations"
)

// CatalogEntry describes a permission seeded into the catalog.
type CatalogEntry struct {
	Name     string
	Category string
}

// PermissionCatalog lists every known permission with its category.
func PermissionCatalog() []CatalogEntry {
	return []CatalogEntry{
		{PermInviteUsers, "users"},
		{PermManageUsers, "users"},
		{PermViewUsers, "users"},
		{PermAssignRoles, "users"},
		{PermManageStaff, "users"},
		{PermManageInventory, "inventory"},
		{PermViewInventory, "inventory"},
		{PermUpdateStock, "inventory"},
		{PermManageOrders, "orders"},
		{PermViewOrders, "orders"},
		{PermApproveOrders, "orders"},
		{PermManageHACCP, "haccp"},
		{PermViewHACCP, "haccp"},
		{PermCompleteChecklists, "haccp"},
		{PermManageMaintenance, "maintenance"},
		{PermViewMaintenance, "maintenance"},
		{PermViewFinancials, "financials"},
		{PermManageFinancials, "financials"},
		{PermManageSettings, "settings"},
		{PermViewSettings, "settings"},
		{PermViewDashboard, "general"},
		{PermManageLocations, "settings"},
	}
}

// AllPermissionNames returns the catalog names in declaration order.
func AllPermissionNames() []string {
	catalog := PermissionCatalog()
	names := make([]string, len(catalog))
	for i, entry := range catalog {
		names[i] = entry.Name
	}
	return names
}
