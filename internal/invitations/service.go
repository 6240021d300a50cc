package invitations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// PermissionChecker resolves a single permission for a user. An empty location spans
// every location.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, locationID, name string) (bool, error)
}

// InviteFlagReader reads the profile-level invite flag.
type InviteFlagReader interface {
	CanInviteUsers(ctx context.Context, userID string) (bool, error)
}

// LocationValidator checks that locations exist and are active.
type LocationValidator interface {
	RequireActive(ctx context.Context, ids []string) error
}

// Mailer queues invitation emails.
type Mailer interface {
	EnqueueInvitationEmail(ctx context.Context, email Email) error
}

// Auditor records lifecycle events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts lifecycle events.
type Recorder interface {
	RecordInvitation(event string)
}

// Config carries service settings.
type Config struct {
	SiteURL     string
	DefaultDays int
}

// Deps groups the collaborators of Service. Mailer, Auditor and Recorder are
// optional.
type Deps struct {
	Repo        Repository
	Permissions PermissionChecker
	Flags       InviteFlagReader
	Locations   LocationValidator
	Mailer      Mailer
	Auditor     Auditor
	Recorder    Recorder
	Logger      *slog.Logger
}

// Service is the invitation lifecycle manager.
type Service struct {
	repo        Repository
	perms       PermissionChecker
	flags       InviteFlagReader
	locations   LocationValidator
	mailer      Mailer
	auditor     Auditor
	recorder    Recorder
	logger      *slog.Logger
	validate    *validator.Validate
	siteURL     string
	defaultDays int
	now         func() time.Time
}

// NewService constructs the lifecycle manager.
func NewService(cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	days := cfg.DefaultDays
	if !slices.Contains(AllowedExpiryDays, days) {
		days = DefaultExpiryDays
	}
	return &Service{
		repo:        deps.Repo,
		perms:       deps.Permissions,
		flags:       deps.Flags,
		locations:   deps.Locations,
		mailer:      deps.Mailer,
		auditor:     deps.Auditor,
		recorder:    deps.Recorder,
		logger:      logger,
		validate:    validator.New(),
		siteURL:     strings.TrimRight(cfg.SiteURL, "/"),
		defaultDays: days,
		now:         time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Authorize succeeds when actor holds invite_users at any location or carries the
// profile invite flag.
func (s *Service) Authorize(ctx context.Context, actor shared.Principal) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return shared.ErrUnauthenticated
	}
	ok, err := s.perms.HasPermission(ctx, actor.UserID, "", shared.PermInviteUsers)
	if err != nil {
		return fmt.Errorf("invitations: authorize: %w", err)
	}
	if ok {
		return nil
	}
	ok, err = s.flags.CanInviteUsers(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("invitations: authorize: %w", err)
	}
	if ok {
		return nil
	}
	return shared.Detail(shared.ErrPermissionDenied, "insufficient permissions to invite users")
}

// Create issues a new invitation with its staged grants.
func (s *Service) Create(ctx context.Context, actor shared.Principal, input CreateInput) (Created, error) {
	input = input.normalized()
	days, err := s.validateCreate(input)
	if err != nil {
		return Created{}, err
	}
	if err := s.Authorize(ctx, actor); err != nil {
		return Created{}, err
	}

	now := s.now().UTC()
	inv := Invitation{
		ID:        ids.NewAt(now),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		InvitedBy: actor.UserID,
		Status:    StatusPending,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, r := range input.Roles {
		inv.Roles = append(inv.Roles, StagedRole{RoleID: r.RoleID, LocationID: r.LocationID})
	}
	for _, p := range input.Permissions {
		inv.Permissions = append(inv.Permissions, StagedPermission{PermissionID: p.PermissionID, LocationID: p.LocationID})
	}
	if err := s.locations.RequireActive(ctx, stagedLocations(input.Locations, inv)); err != nil {
		return Created{}, err
	}
	if inv.Token, err = NewToken(now); err != nil {
		return Created{}, err
	}

	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, inv)
	}); err != nil {
		return Created{}, fmt.Errorf("invitations: create: %w", err)
	}

	created := s.created(inv)
	s.afterIssue(ctx, actor, shared.AuditInvitationCreated, inv, created, nil)
	return created, nil
}

// Resend revokes the invitation and issues a fresh one with the same invitee and
// staged grants and the default expiry. Of two concurrent resends only one succeeds.
func (s *Service) Resend(ctx context.Context, actor shared.Principal, id string) (Created, error) {
	if err := s.Authorize(ctx, actor); err != nil {
		return Created{}, err
	}
	now := s.now().UTC()
	token, err := NewToken(now)
	if err != nil {
		return Created{}, err
	}

	var fresh Invitation
	var previous string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		revoked, err := tx.RevokeIfOpen(ctx, old.ID, now)
		if err != nil {
			return err
		}
		if !revoked {
			return terminalError(old.Status)
		}
		previous = old.ID
		fresh = Invitation{
			ID:        ids.NewAt(now),
			Email:     old.Email,
			FirstName: old.FirstName,
			LastName:  old.LastName,
			InvitedBy: actor.UserID,
			Token:     token,
			Status:    StatusPending,
			ExpiresAt: now.Add(DefaultExpiryDays * 24 * time.Hour),
			Notes:     old.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, r := range old.Roles {
			fresh.Roles = append(fresh.Roles, StagedRole{RoleID: r.RoleID, LocationID: r.LocationID})
		}
		for _, p := range old.Permissions {
			fresh.Permissions = append(fresh.Permissions, StagedPermission{PermissionID: p.PermissionID, LocationID: p.LocationID})
		}
		return tx.Insert(ctx, fresh)
	})
	if err != nil {
		return Created{}, fmt.Errorf("invitations: resend %s: %w", id, err)
	}

	created := s.created(fresh)
	s.afterIssue(ctx, actor, shared.AuditInvitationResent, fresh, created, map[string]any{"previous_id": previous})
	return created, nil
}

// Revoke marks the invitation revoked. Repeating it is harmless; users created from
// an accepted invitation are left alone.
func (s *Service) Revoke(ctx context.Context, actor shared.Principal, id string) error {
	if err := s.Authorize(ctx, actor); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.repo.Revoke(ctx, id, now); err != nil {
		return fmt.Errorf("invitations: revoke %s: %w", id, err)
	}
	s.record("revoked")
	s.audit(ctx, shared.AuditLog{ActorID: actor.UserID, Action: shared.AuditInvitationRevoked, Entity: "invitation", EntityID: id, At: now})
	return nil
}

// LookupByToken returns the redeemable invitation holding token. A row that is not
// stored as pending is reported as not found; a pending row past its expiry fails
// with shared.ErrExpired.
func (s *Service) LookupByToken(ctx context.Context, token string) (Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Invitation{}, shared.Detail(shared.ErrNotFound, "invitation token is required")
	}
	inv, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return Invitation{}, fmt.Errorf("invitations: lookup: %w", err)
	}
	if err := Redeemable(inv, s.now()); err != nil {
		return Invitation{}, fmt.Errorf("invitations: lookup: %w", err)
	}
	return inv, nil
}

// Redeemable checks that inv can be accepted at now. A lapsed invitation fails with
// shared.ErrExpired whatever its stored status, so the answer does not depend on the
// expiry sweep. Other non-pending rows fail with shared.ErrNotFound joined with the
// specific terminal state.
func Redeemable(inv Invitation, now time.Time) error {
	if inv.IsExpired(now) {
		return shared.ErrExpired
	}
	if inv.Status != StatusPending {
		return errors.Join(shared.ErrNotFound, terminalError(inv.Status))
	}
	return nil
}

// Get returns one invitation.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id string) (View, error) {
	if err := s.Authorize(ctx, actor); err != nil {
		return View{}, err
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("invitations: get %s: %w", id, err)
	}
	return inv.ViewAt(s.now()), nil
}

// List returns invitations newest first, filtered on effective status.
func (s *Service) List(ctx context.Context, actor shared.Principal, filter ListFilter) ([]View, error) {
	if err := s.Authorize(ctx, actor); err != nil {
		return nil, err
	}
	filter.Email = strings.TrimSpace(filter.Email)
	wanted := filter.Status
	if wanted != "" {
		filter.Limit = 0
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("invitations: list: %w", err)
	}
	now := s.now()
	out := make([]View, 0, len(rows))
	for _, inv := range rows {
		view := inv.ViewAt(now)
		if wanted != "" && view.EffectiveStatus != wanted {
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

// ExpireStale persists the expired status of lapsed pending invitations. Reads do not
// depend on it.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("invitations: expire stale: %w", err)
	}
	return n, nil
}

func (s *Service) validateCreate(input CreateInput) (int, error) {
	if err := s.validate.Struct(input); err != nil {
		return 0, fmt.Errorf("invitations: create: %v: %w", err, shared.ErrValidation)
	}
	days := input.ExpiresInDays
	if days == 0 {
		days = s.defaultDays
	}
	if !slices.Contains(AllowedExpiryDays, days) {
		return 0, shared.Detail(shared.ErrValidation, "expiresInDays must be one of 1, 3, 7, 14 or 30")
	}
	return days, nil
}

// Link builds the invitee-facing onboarding URL for token.
func (s *Service) Link(token string) string {
	return s.siteURL + "/onboarding?token=" + url.QueryEscape(token)
}

func (s *Service) created(inv Invitation) Created {
	return Created{ID: inv.ID, Email: inv.Email, Token: inv.Token, ExpiresAt: inv.ExpiresAt, Link: s.Link(inv.Token)}
}

// afterIssue runs the best-effort side effects of a committed invitation.
func (s *Service) afterIssue(ctx context.Context, actor shared.Principal, action string, inv Invitation, created Created, meta map[string]any) {
	if s.mailer != nil {
		email := Email{
			InvitationID: inv.ID,
			To:           inv.Email,
			FirstName:    inv.FirstName,
			LastName:     inv.LastName,
			Link:         created.Link,
			ExpiresAt:    inv.ExpiresAt,
		}
		if err := s.mailer.EnqueueInvitationEmail(ctx, email); err != nil {
			s.logger.Warn("enqueue invitation email", slog.String("invitation_id", inv.ID), slog.Any("error", err))
			s.record("email_failed")
		}
	}
	if action == shared.AuditInvitationResent {
		s.record("resent")
	} else {
		s.record("created")
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["email"] = inv.Email
	meta["roles"] = len(inv.Roles)
	meta["permissions"] = len(inv.Permissions)
	s.audit(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "invitation", EntityID: inv.ID, Meta: meta, At: inv.CreatedAt})
}

func (s *Service) audit(ctx context.Context, log shared.AuditLog) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, log); err != nil {
		s.logger.Warn("audit invitation", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) record(event string) {
	if s.recorder != nil {
		s.recorder.RecordInvitation(event)
	}
}

func terminalError(status Status) error {
	switch status {
	case StatusAccepted:
		return shared.ErrAlreadyAccepted
	case StatusRevoked:
		return shared.ErrAlreadyRevoked
	case StatusExpired:
		return shared.ErrExpired
	default:
		return shared.ErrConflict
	}
}

func stagedLocations(explicit []string, inv Invitation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range append(append([]string{}, explicit...), inv.LocationIDs()...) {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
