package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

const (
	defaultReconcileBatch = 100
	// MaxGapAttempts stops retrying a gap that keeps failing.
	MaxGapAttempts = 10
)

// Reconciler retries open provisioning gaps. Every step it replays is idempotent.
type Reconciler struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
	batch       int
	now         func() time.Time
}

// NewReconciler constructs Reconciler. invalidator may be nil.
func NewReconciler(store Store, invalidator Invalidator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, invalidator: invalidator, logger: logger, batch: defaultReconcileBatch, now: time.Now}
}

// Summary counts one reconciliation pass.
type Summary struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
}

// Run processes one batch of open gaps.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	gaps, err := r.store.OpenGaps(ctx, MaxGapAttempts, r.batch)
	if err != nil {
		return Summary{}, fmt.Errorf("onboarding: reconcile: %w", err)
	}
	var summary Summary
	cache := map[string]invitations.Invitation{}
	for _, gap := range gaps {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Attempted++
		if err := r.replay(ctx, gap, cache); err != nil {
			summary.Failed++
			r.logger.Warn("provisioning gap still open", slog.String("gap_id", gap.ID), slog.String("kind", string(gap.Kind)), slog.Any("error", err))
			if ferr := r.store.FailGap(ctx, gap.ID, err.Error()); ferr != nil {
				return summary, fmt.Errorf("onboarding: reconcile: %w", ferr)
			}
			continue
		}
		if err := r.store.ResolveGap(ctx, gap.ID, r.now().UTC()); err != nil {
			return summary, fmt.Errorf("onboarding: reconcile: %w", err)
		}
		summary.Resolved++
	}
	if summary.Resolved > 0 && r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx); err != nil {
			r.logger.Warn("invalidate permission cache", slog.Any("error", err))
		}
	}
	return summary, nil
}

func (r *Reconciler) replay(ctx context.Context, gap Gap, cache map[string]invitations.Invitation) error {
	inv, ok := cache[gap.InvitationID]
	if !ok {
		var err error
		inv, err = r.store.Invitation(ctx, gap.InvitationID)
		if err != nil {
			return err
		}
		cache[gap.InvitationID] = inv
	}
	now := r.now().UTC()
	switch gap.Kind {
	case GapProfile:
		return r.store.CreateProfile(ctx, users.Profile{
			ID:        gap.UserID,
			Email:     inv.Email,
			FirstName: inv.FirstName,
			LastName:  inv.LastName,
			Phone:     gap.Phone,
			IsActive:  true,
		}, now)
	case GapRole:
		for _, role := range inv.Roles {
			if role.ID == gap.RefID {
				only := inv
				only.Roles, only.Permissions = []invitations.StagedRole{role}, nil
				return r.store.Materialize(ctx, gap.UserID, only, now)
			}
		}
	case GapPermission:
		for _, perm := range inv.Permissions {
			if perm.ID == gap.RefID {
				newer, err := r.store.HasOverrideSince(ctx, gap.UserID, perm.PermissionID, perm.LocationID, gap.CreatedAt)
				if err != nil {
					return err
				}
				if newer {
					// An administrator decided this grant after the gap opened.
					r.logger.Info("provisioning gap superseded by override",
						slog.String("gap_id", gap.ID),
						slog.String("user_id", gap.UserID),
						slog.String("permission_id", perm.PermissionID))
					return nil
				}
				only := inv
				only.Roles, only.Permissions = nil, []invitations.StagedPermission{perm}
				return r.store.Materialize(ctx, gap.UserID, only, now)
			}
		}
	default:
		return shared.Detail(shared.ErrValidation, "unknown provisioning gap kind "+string(gap.Kind))
	}
	return shared.Detail(shared.ErrNotFound, "staged row "+gap.RefID+" no longer exists")
}
