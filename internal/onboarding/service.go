package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

// InvitationLookup finds a redeemable invitation by token.
type InvitationLookup interface {
	LookupByToken(ctx context.Context, token string) (invitations.Invitation, error)
}

// Invalidator drops cached permission sets after grants are written.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Auditor records the acceptance.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts onboarding outcomes.
type Recorder interface {
	RecordOnboarding(outcome string)
	RecordProvisioningGap(kind string)
}

// Deps groups the collaborators of Service. Invalidator, Auditor and Recorder are
// optional.
type Deps struct {
	Store       Store
	Lookup      InvitationLookup
	Invalidator Invalidator
	Auditor     Auditor
	Recorder    Recorder
	Logger      *slog.Logger
}

// Service turns an invitation into an active user.
type Service struct {
	store       Store
	lookup      InvitationLookup
	invalidator Invalidator
	auditor     Auditor
	recorder    Recorder
	logger      *slog.Logger
	hash        func(string) (string, error)
	now         func() time.Time
}

// NewService constructs Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       deps.Store,
		lookup:      deps.Lookup,
		invalidator: deps.Invalidator,
		auditor:     deps.Auditor,
		recorder:    deps.Recorder,
		logger:      logger,
		hash:        auth.HashPassword,
		now:         time.Now,
	}
}

// Complete redeems the invitation holding input.Token. Identity creation and the
// accepted transition are all-or-nothing; the profile and staged grants that follow
// are best-effort and any failure is left as a gap for the reconciler.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (users.Profile, Result, error) {
	token := strings.TrimSpace(input.Token)
	if _, err := s.lookup.LookupByToken(ctx, token); err != nil {
		if errors.Is(err, shared.ErrPersistence) {
			return users.Profile{}, Result{}, fmt.Errorf("onboarding: lookup: %w", err)
		}
		s.record("invalid_invitation")
		return users.Profile{}, Result{}, fmt.Errorf("onboarding: %w: %w", shared.ErrInvalidInvitation, err)
	}
	if utf8.RuneCountInString(input.Password) < MinPasswordLength {
		return users.Profile{}, Result{}, shared.Detail(shared.ErrValidation, "password must be at least 6 characters long")
	}
	if input.Password != input.ConfirmPassword {
		return users.Profile{}, Result{}, shared.Detail(shared.ErrValidation, "passwords do not match")
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return users.Profile{}, Result{}, fmt.Errorf("onboarding: hash password: %w", err)
	}
	now := s.now().UTC()
	inv, identity, err := s.store.Accept(ctx, token, hash, now)
	if err != nil {
		s.record("rejected")
		return users.Profile{}, Result{}, fmt.Errorf("onboarding: accept: %w", err)
	}

	profile := users.Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		FirstName: inv.FirstName,
		LastName:  inv.LastName,
		Phone:     strings.TrimSpace(input.Phone),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := s.provision(ctx, identity.ID, inv, profile, now)
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate permission cache", slog.Any("error", err))
		}
	}
	if s.auditor != nil {
		meta := map[string]any{"user_id": identity.ID, "under_provisioned": result.UnderProvisioned}
		if err := s.auditor.Record(ctx, shared.AuditLog{ActorID: identity.ID, Action: shared.AuditInvitationAccepted, Entity: "invitation", EntityID: inv.ID, Meta: meta, At: now}); err != nil {
			s.logger.Warn("audit invitation accepted", slog.Any("error", err))
		}
	}
	if result.UnderProvisioned {
		s.record("under_provisioned")
	} else {
		s.record("completed")
	}
	return profile, result, nil
}

func (s *Service) provision(ctx context.Context, userID string, inv invitations.Invitation, profile users.Profile, now time.Time) Result {
	var gaps []Gap
	gap := func(kind GapKind, ref string, cause error) {
		gaps = append(gaps, Gap{
			ID:           ids.NewAt(now),
			UserID:       userID,
			InvitationID: inv.ID,
			Kind:         kind,
			RefID:        ref,
			Phone:        profile.Phone,
			LastError:    cause.Error(),
			CreatedAt:    now,
		})
		if s.recorder != nil {
			s.recorder.RecordProvisioningGap(string(kind))
		}
	}

	if err := s.store.CreateProfile(ctx, profile, now); err != nil {
		s.logger.Error("create profile", slog.String("user_id", userID), slog.Any("error", err))
		gap(GapProfile, "", err)
	}
	if len(inv.Roles)+len(inv.Permissions) > 0 {
		if err := s.store.Materialize(ctx, userID, inv, now); err != nil {
			s.logger.Error("materialize staged grants", slog.String("user_id", userID), slog.String("invitation_id", inv.ID), slog.Any("error", err))
			for _, role := range inv.Roles {
				gap(GapRole, role.ID, err)
			}
			for _, perm := range inv.Permissions {
				gap(GapPermission, perm.ID, err)
			}
		}
	}
	if len(gaps) == 0 {
		return Result{}
	}
	if err := s.store.RecordGaps(ctx, gaps); err != nil {
		s.logger.Error("record provisioning gaps", slog.String("user_id", userID), slog.Int("gaps", len(gaps)), slog.Any("error", err))
	}
	return Result{UnderProvisioned: true, Gaps: gaps}
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordOnboarding(outcome)
	}
}
