package rbac

import (
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/roles"
)

// Permission is an immutable catalog entry.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment is a user↔role↔location row. Role is nil when the role row could
// not be resolved.
type Assignment struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	RoleID     string      `json:"role_id"`
	LocationID string      `json:"location_id"`
	AssignedBy string      `json:"assigned_by,omitempty"`
	AssignedAt time.Time   `json:"assigned_at"`
	IsActive   bool        `json:"is_active"`
	Role       *roles.Role `json:"role,omitempty"`
}

// Override is a direct per-user, per-location grant (Granted) or revoke (!Granted).
type Override struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PermissionID   string    `json:"permission_id"`
	PermissionName string    `json:"permission_name"`
	LocationID     string    `json:"location_id"`
	Granted        bool      `json:"granted"`
	GrantedBy      string    `json:"granted_by,omitempty"`
	GrantedAt      time.Time `json:"granted_at"`
}

// Scope selects which rows take part in a resolution. An empty LocationID spans
// every location.
type Scope struct {
	UserID     string
	LocationID string
}

// AssignRoleInput describes a role assignment write.
type AssignRoleInput struct {
	UserID     string `json:"userId" validate:"required"`
	RoleID     string `json:"roleId" validate:"required"`
	LocationID string `json:"locationId" validate:"required"`
	AssignedBy string `json:"-"`
}

// OverrideInput describes a direct grant or revoke write.
type OverrideInput struct {
	UserID       string `json:"userId" validate:"required"`
	PermissionID string `json:"permissionId" validate:"required"`
	LocationID   string `json:"locationId" validate:"required"`
	Granted      bool   `json:"granted"`
	GrantedBy    string `json:"-"`
}
