package invitations

import (
	"strings"
	"time"
)

// Status is the stored lifecycle state of an invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// AllowedExpiryDays enumerates the accepted ExpiresInDays values.
var AllowedExpiryDays = []int{1, 3, 7, 14, 30}

// DefaultExpiryDays applies when a create request leaves ExpiresInDays unset. Resend
// always uses it.
const DefaultExpiryDays = 7

// Invitation is a time-bounded offer admitting a new identity with staged grants.
type Invitation struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	InvitedBy   string             `json:"invited_by"`
	Token       string             `json:"-"`
	Status      Status             `json:"status"`
	ExpiresAt   time.Time          `json:"expires_at"`
	AcceptedAt  *time.Time         `json:"accepted_at,omitempty"`
	RevokedAt   *time.Time         `json:"revoked_at,omitempty"`
	Notes       string             `json:"notes,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Roles       []StagedRole       `json:"roles"`
	Permissions []StagedPermission `json:"permissions"`
}

// StagedRole is a role assignment materialized on acceptance.
type StagedRole struct {
	ID           string `json:"id"`
	InvitationID string `json:"invitation_id"`
	RoleID       string `json:"role_id"`
	LocationID   string `json:"location_id"`
}

// StagedPermission is a direct grant materialized on acceptance.
type StagedPermission struct {
	ID           string `json:"id"`
	InvitationID string `json:"invitation_id"`
	PermissionID string `json:"permission_id"`
	LocationID   string `json:"location_id"`
}

// IsExpired reports whether now is past the expiry instant.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EffectiveStatus is the status every consumer must act on: a stored pending row
// past its expiry is expired.
func (i Invitation) EffectiveStatus(now time.Time) Status {
	return EffectiveStatus(i.Status, i.ExpiresAt, now)
}

// IsRedeemable reports whether the invitation can still be accepted.
func (i Invitation) IsRedeemable(now time.Time) bool {
	return i.EffectiveStatus(now) == StatusPending
}

// EffectiveStatus derives the status from the stored value and expiry.
func EffectiveStatus(stored Status, expiresAt, now time.Time) Status {
	if stored == StatusPending && now.After(expiresAt) {
		return StatusExpired
	}
	return stored
}

// LocationIDs returns the distinct locations referenced by staged rows.
func (i Invitation) LocationIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, r := range i.Roles {
		add(r.LocationID)
	}
	for _, p := range i.Permissions {
		add(p.LocationID)
	}
	return out
}

// View is the API representation with derived status fields.
type View struct {
	Invitation
	EffectiveStatus Status `json:"effective_status"`
	Expired         bool   `json:"expired"`
}

// ViewAt renders i as of now.
func (i Invitation) ViewAt(now time.Time) View {
	return View{Invitation: i, EffectiveStatus: i.EffectiveStatus(now), Expired: i.EffectiveStatus(now) == StatusExpired}
}

// RoleGrant stages a role at a location.
type RoleGrant struct {
	LocationID string `json:"locationId" validate:"required"`
	RoleID     string `json:"roleId" validate:"required"`
}

// PermissionGrant stages a direct permission at a location.
type PermissionGrant struct {
	LocationID   string `json:"locationId" validate:"required"`
	PermissionID string `json:"permissionId" validate:"required"`
}

// CreateInput is the invitation creation request.
type CreateInput struct {
	Email         string            `json:"email" validate:"required,email,max=320"`
	FirstName     string            `json:"firstName" validate:"max=100"`
	LastName      string            `json:"lastName" validate:"max=100"`
	Locations     []string          `json:"locations" validate:"dive,required"`
	Roles         []RoleGrant       `json:"roles" validate:"dive"`
	Permissions   []PermissionGrant `json:"permissions" validate:"dive"`
	Notes         string            `json:"notes" validate:"max=2000"`
	ExpiresInDays int               `json:"expiresInDays"`
}

// normalized trims every string field and lower-cases the email so validation sees
// the values that will be stored.
func (in CreateInput) normalized() CreateInput {
	out := in
	out.Email = strings.ToLower(strings.TrimSpace(in.Email))
	out.FirstName = strings.TrimSpace(in.FirstName)
	out.LastName = strings.TrimSpace(in.LastName)
	out.Notes = strings.TrimSpace(in.Notes)
	out.Locations = make([]string, 0, len(in.Locations))
	for _, id := range in.Locations {
		out.Locations = append(out.Locations, strings.TrimSpace(id))
	}
	out.Roles = make([]RoleGrant, 0, len(in.Roles))
	for _, r := range in.Roles {
		out.Roles = append(out.Roles, RoleGrant{LocationID: strings.TrimSpace(r.LocationID), RoleID: strings.TrimSpace(r.RoleID)})
	}
	out.Permissions = make([]PermissionGrant, 0, len(in.Permissions))
	for _, p := range in.Permissions {
		out.Permissions = append(out.Permissions, PermissionGrant{LocationID: strings.TrimSpace(p.LocationID), PermissionID: strings.TrimSpace(p.PermissionID)})
	}
	return out
}

// Created is returned to the inviter.
type Created struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Link      string    `json:"invitation_link"`
}

// ListFilter narrows List. Status matches the effective status.
type ListFilter struct {
	Status Status
	Email  string
	Limit  int
}

// Email is the content handed to the delivery job.
type Email struct {
	InvitationID string    `json:"invitation_id"`
	To           string    `json:"to"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Link         string    `json:"link"`
	ExpiresAt    time.Time `json:"expires_at"`
}
