package rbac

import (
	"github.com/odyssey-erp/odyssey-access/internal/roles"
)

// Resolve computes the effective permission set for scope:
//
//	(role grants ∪ direct grants) \ direct revokes
//
// rolePermissions maps role ID to the names granted through role_permissions. A role
// with no entry there falls back to the static table for its kind. Revocations win
// over every grant of the same name.
func Resolve(scope Scope, assignments []Assignment, rolePermissions map[string][]string, overrides []Override) PermissionSet {
	var granted []string
	for _, a := range assignments {
		if !inScope(scope, a.UserID, a.LocationID) || !a.IsActive || a.Role == nil {
			continue
		}
		granted = append(granted, RoleGrants(*a.Role, rolePermissions[a.RoleID])...)
	}

	revoked := make(map[string]struct{})
	for _, o := range latestOverrides(scope, overrides) {
		if o.Granted {
			granted = append(granted, o.PermissionName)
			continue
		}
		revoked[normalize(o.PermissionName)] = struct{}{}
	}

	set := NewPermissionSet(granted...)
	for name := range revoked {
		delete(set.names, name)
	}
	return set
}

// RoleGrants returns the names a role grants: its catalog rows, or the static
// fallback for its kind when the catalog has none.
func RoleGrants(role roles.Role, catalog []string) []string {
	if len(catalog) > 0 {
		return catalog
	}
	return roles.FallbackPermissions(role.Kind())
}

type overrideKey struct {
	permission string
	location   string
}

// latestOverrides keeps one row per (permission, location): the most recently
// granted, ties broken by the greater ID.
func latestOverrides(scope Scope, overrides []Override) []Override {
	latest := make(map[overrideKey]Override, len(overrides))
	var order []overrideKey
	for _, o := range overrides {
		if !inScope(scope, o.UserID, o.LocationID) || normalize(o.PermissionName) == "" {
			continue
		}
		key := overrideKey{permission: normalize(o.PermissionName), location: o.LocationID}
		current, ok := latest[key]
		if !ok {
			order = append(order, key)
			latest[key] = o
			continue
		}
		if newer(o, current) {
			latest[key] = o
		}
	}
	out := make([]Override, 0, len(order))
	for _, key := range order {
		out = append(out, latest[key])
	}
	return out
}

func newer(a, b Override) bool {
	if !a.GrantedAt.Equal(b.GrantedAt) {
		return a.GrantedAt.After(b.GrantedAt)
	}
	return a.ID > b.ID
}

func inScope(scope Scope, userID, locationID string) bool {
	if scope.UserID != "" && userID != "" && scope.UserID != userID {
		return false
	}
	return scope.LocationID == "" || scope.LocationID == locationID
}
