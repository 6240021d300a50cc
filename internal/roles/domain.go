package roles

import "time"

// Role is a named authority bundle. Level ranks authority; higher means more.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Level       int       `json:"level"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Kind classifies the role for the static fallback table.
func (r Role) Kind() Kind {
	return KindOf(r.Name)
}

// CreateRoleInput carries the fields required to create a role.
type CreateRoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"max=128"`
	Description string `json:"description" validate:"max=512"`
	Level       int    `json:"level" validate:"gte=0,lte=1000"`
}

// ListFilter narrows role listings.
type ListFilter struct {
	IncludeInactive bool
}
