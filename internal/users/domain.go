package users

import "time"

// Profile holds the personal details of a user. Its ID equals the identity ID.
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Phone          string    `json:"phone,omitempty"`
	IsActive       bool      `json:"is_active"`
	CanInviteUsers bool      `json:"can_invite_users"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// User is a profile annotated with provisioning state for management listings.
type User struct {
	Profile
	OpenGaps         int  `json:"open_gaps"`
	UnderProvisioned bool `json:"under_provisioned"`
}

// ListFilter narrows ListUsers.
type ListFilter struct {
	Search               string
	OnlyUnderProvisioned bool
}

// UpdateProfileInput is a partial profile update. Nil fields are left unchanged.
type UpdateProfileInput struct {
	FirstName      *string `json:"firstName" validate:"omitempty,max=100"`
	LastName       *string `json:"lastName" validate:"omitempty,max=100"`
	Phone          *string `json:"phone" validate:"omitempty,max=40"`
	IsActive       *bool   `json:"isActive"`
	CanInviteUsers *bool   `json:"canInviteUsers"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}
