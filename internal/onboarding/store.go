package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
)

// Store persists onboarding steps.
type Store interface {
	// Accept locks the invitation by token, creates the identity and marks the
	// invitation accepted in one transaction.
	Accept(ctx context.Context, token, passwordHash string, now time.Time) (invitations.Invitation, auth.Identity, error)
	CreateProfile(ctx context.Context, p users.Profile, now time.Time) error
	// Materialize writes the staged roles and permissions of inv for userID in one
	// transaction. Rows the user already holds are skipped.
	Materialize(ctx context.Context, userID string, inv invitations.Invitation, now time.Time) error
	// HasOverrideSince reports whether userID has a grant or revoke for the permission
	// at the location recorded at or after since.
	HasOverrideSince(ctx context.Context, userID, permissionID, locationID string, since time.Time) (bool, error)
	RecordGaps(ctx context.Context, gaps []Gap) error
	OpenGaps(ctx context.Context, maxAttempts, limit int) ([]Gap, error)
	ResolveGap(ctx context.Context, id string, now time.Time) error
	FailGap(ctx context.Context, id, message string) error
	Invitation(ctx context.Context, id string) (invitations.Invitation, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Accept runs at ReadCommitted so a second caller blocked on the row lock observes
// the accepted row and fails cleanly.
func (s *PGStore) Accept(ctx context.Context, token, passwordHash string, now time.Time) (invitations.Invitation, auth.Identity, error) {
	var (
		inv      invitations.Invitation
		identity auth.Identity
	)
	err := db.WithTxLevel(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		inv, err = invitations.LockByToken(ctx, tx, token)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidInvitation, err)
		}
		if err := invitations.Redeemable(inv, now); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidInvitation, err)
		}
		identity, err = auth.InsertIdentity(ctx, tx, inv.Email, passwordHash, now)
		if err != nil {
			return err
		}
		accepted, err := invitations.MarkAccepted(ctx, tx, inv.ID, now)
		if err != nil {
			return err
		}
		if !accepted {
			return fmt.Errorf("%w: %w", shared.ErrInvalidInvitation, shared.ErrAlreadyAccepted)
		}
		return nil
	})
	if err != nil {
		return invitations.Invitation{}, auth.Identity{}, err
	}
	return inv, identity, nil
}

func (s *PGStore) CreateProfile(ctx context.Context, p users.Profile, now time.Time) error {
	return users.InsertProfile(ctx, s.pool, p, now)
}

func (s *PGStore) Materialize(ctx context.Context, userID string, inv invitations.Invitation, now time.Time) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, role := range inv.Roles {
			if _, err := rbac.EnsureAssignment(ctx, tx, rbac.Assignment{
				UserID:     userID,
				RoleID:     role.RoleID,
				LocationID: role.LocationID,
				AssignedBy: inv.InvitedBy,
				AssignedAt: now,
			}); err != nil {
				return err
			}
		}
		for _, perm := range inv.Permissions {
			if _, err := rbac.EnsureGrant(ctx, tx, rbac.Override{
				UserID:       userID,
				PermissionID: perm.PermissionID,
				LocationID:   perm.LocationID,
				Granted:      true,
				GrantedBy:    inv.InvitedBy,
				GrantedAt:    now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) HasOverrideSince(ctx context.Context, userID, permissionID, locationID string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_permissions
			WHERE user_id = $1 AND permission_id = $2 AND location_id = $3 AND granted_at >= $4
		)`, userID, permissionID, locationID, since.UTC()).Scan(&exists)
	if err != nil {
		return false, db.Translate("onboarding: override since", err)
	}
	return exists, nil
}

func (s *PGStore) RecordGaps(ctx context.Context, gaps []Gap) error {
	if len(gaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, g := range gaps {
		if g.ID == "" {
			g.ID = ids.NewAt(g.CreatedAt)
		}
		batch.Queue(`
			INSERT INTO provisioning_gaps (id, user_id, invitation_id, kind, ref_id, phone, last_error, attempts, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, 0, $8)`,
			g.ID, g.UserID, g.InvitationID, string(g.Kind), g.RefID, g.Phone, g.LastError, g.CreatedAt.UTC())
	}
	return db.Translate("onboarding: record gaps", s.pool.SendBatch(ctx, batch).Close())
}

func (s *PGStore) OpenGaps(ctx context.Context, maxAttempts, limit int) ([]Gap, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, invitation_id, kind, COALESCE(ref_id, ''), COALESCE(phone, ''), last_error, attempts, created_at, resolved_at
		FROM provisioning_gaps
		WHERE resolved_at IS NULL AND attempts < $1
		ORDER BY created_at, id
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, db.Translate("onboarding: open gaps", err)
	}
	gaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Gap, error) {
		var (
			g    Gap
			kind string
		)
		err := row.Scan(&g.ID, &g.UserID, &g.InvitationID, &kind, &g.RefID, &g.Phone, &g.LastError, &g.Attempts, &g.CreatedAt, &g.ResolvedAt)
		g.Kind = GapKind(kind)
		return g, err
	})
	if err != nil {
		return nil, db.Translate("onboarding: open gaps", err)
	}
	return gaps, nil
}

func (s *PGStore) ResolveGap(ctx context.Context, id string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE provisioning_gaps SET resolved_at = $2, attempts = attempts + 1 WHERE id = $1`, id, now.UTC())
	return db.Translate("onboarding: resolve gap", err)
}

func (s *PGStore) FailGap(ctx context.Context, id, message string) error {
	_, err := s.pool.Exec(ctx, `UPDATE provisioning_gaps SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, message)
	return db.Translate("onboarding: fail gap", err)
}

func (s *PGStore) Invitation(ctx context.Context, id string) (invitations.Invitation, error) {
	return invitations.Load(ctx, s.pool, id)
}

var _ Store = (*PGStore)(nil)
