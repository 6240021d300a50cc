package onboarding

import "time"

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 6

// CompleteInput is submitted by the invitee.
type CompleteInput struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Phone           string `json:"phone"`
}

// GapKind names the provisioning step that failed.
type GapKind string

const (
	GapProfile    GapKind = "profile"
	GapRole       GapKind = "role"
	GapPermission GapKind = "permission"
)

// Gap records a non-gating onboarding step that failed. RefID is the staged row id
// for role and permission gaps.
type Gap struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	InvitationID string     `json:"invitation_id"`
	Kind         GapKind    `json:"kind"`
	RefID        string     `json:"ref_id,omitempty"`
	Phone        string     `json:"-"`
	LastError    string     `json:"last_error"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Result reports the outcome of the non-gating steps.
type Result struct {
	UnderProvisioned bool  `json:"under_provisioned"`
	Gaps             []Gap `json:"gaps,omitempty"`
}
