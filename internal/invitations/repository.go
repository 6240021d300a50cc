package invitations

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Repository is the invitation store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Invitation, error)
	GetByToken(ctx context.Context, token string) (Invitation, error)
	List(ctx context.Context, filter ListFilter) ([]Invitation, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// TxRepository exposes the writes that must share a transaction.
type TxRepository interface {
	Insert(ctx context.Context, inv Invitation) error
	LockForUpdate(ctx context.Context, id string) (Invitation, error)
	RevokeIfOpen(ctx context.Context, id string, at time.Time) (bool, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

// WithTx runs fn inside one transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

const invitationColumns = `id, email, first_name, last_name, invited_by, token, status, expires_at,
	accepted_at, revoked_at, COALESCE(notes, ''), created_at, updated_at`

// Get loads an invitation with its staged rows.
func (r *PGRepository) Get(ctx context.Context, id string) (Invitation, error) {
	return load(ctx, r.pool, `WHERE id = $1`, id)
}

// GetByToken loads an invitation by token regardless of status.
func (r *PGRepository) GetByToken(ctx context.Context, token string) (Invitation, error) {
	return load(ctx, r.pool, `WHERE token = $1`, token)
}

// List returns invitations newest first without staged rows.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE 1=1`
	args := []any{}
	if filter.Email != "" {
		args = append(args, "%"+strings.ToLower(filter.Email)+"%")
		query += ` AND email ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate("invitations: list", err)
	}
	out, err := pgx.CollectRows(rows, scanInvitation)
	if err != nil {
		return nil, db.Translate("invitations: list", err)
	}
	return out, nil
}

// Revoke marks an invitation revoked whatever its state.
func (r *PGRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations SET status = 'revoked', revoked_at = $2, updated_at = $2
		WHERE id = $1`, id, at.UTC())
	if err != nil {
		return db.Translate("invitations: revoke", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExpireStale stores the expired status on pending rows past their expiry.
func (r *PGRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at < $1`, now.UTC())
	if err != nil {
		return 0, db.Translate("invitations: expire stale", err)
	}
	return tag.RowsAffected(), nil
}

func (t pgTx) Insert(ctx context.Context, inv Invitation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invitations (id, email, first_name, last_name, invited_by, token, status, expires_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $10)`,
		inv.ID, inv.Email, inv.FirstName, inv.LastName, inv.InvitedBy, inv.Token, string(inv.Status), inv.ExpiresAt.UTC(), inv.Notes, inv.CreatedAt.UTC())
	if err != nil {
		return db.Translate("invitations: insert", err)
	}
	if len(inv.Roles) > 0 {
		batch := &pgx.Batch{}
		for _, role := range inv.Roles {
			batch.Queue(`INSERT INTO invitation_roles_locations (id, invitation_id, role_id, location_id) VALUES ($1, $2, $3, $4)`,
				ids.NewAt(inv.CreatedAt), inv.ID, role.RoleID, role.LocationID)
		}
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			return db.Translate("invitations: insert staged roles", err)
		}
	}
	if len(inv.Permissions) > 0 {
		batch := &pgx.Batch{}
		for _, perm := range inv.Permissions {
			batch.Queue(`INSERT INTO invitation_permissions (id, invitation_id, permission_id, location_id) VALUES ($1, $2, $3, $4)`,
				ids.NewAt(inv.CreatedAt), inv.ID, perm.PermissionID, perm.LocationID)
		}
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			return db.Translate("invitations: insert staged permissions", err)
		}
	}
	return nil
}

func (t pgTx) LockForUpdate(ctx context.Context, id string) (Invitation, error) {
	return load(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

// RevokeIfOpen revokes a row still pending, or already marked expired by the sweep.
func (t pgTx) RevokeIfOpen(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invitations SET status = 'revoked', revoked_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'expired')`, id, at.UTC())
	if err != nil {
		return false, db.Translate("invitations: revoke open", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LockByToken loads and row-locks the invitation holding token through q, which must
// be a transaction for the lock to matter.
func LockByToken(ctx context.Context, q db.Querier, token string) (Invitation, error) {
	return load(ctx, q, `WHERE token = $1 FOR UPDATE`, token)
}

// Load reads an invitation with its staged rows through q.
func Load(ctx context.Context, q db.Querier, id string) (Invitation, error) {
	return load(ctx, q, `WHERE id = $1`, id)
}

// MarkAccepted transitions a pending invitation to accepted. It reports false when
// the row was no longer pending.
func MarkAccepted(ctx context.Context, q db.Querier, id string, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE invitations SET status = 'accepted', accepted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at.UTC())
	if err != nil {
		return false, db.Translate("invitations: mark accepted", err)
	}
	return tag.RowsAffected() == 1, nil
}

func load(ctx context.Context, q db.Querier, where string, arg string) (Invitation, error) {
	rows, err := q.Query(ctx, `SELECT `+invitationColumns+` FROM invitations `+where, arg)
	if err != nil {
		return Invitation{}, db.Translate("invitations: load", err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInvitation)
	if err != nil {
		return Invitation{}, db.Translate("invitations: load", err)
	}
	if inv.Roles, err = stagedRoles(ctx, q, inv.ID); err != nil {
		return Invitation{}, err
	}
	if inv.Permissions, err = stagedPermissions(ctx, q, inv.ID); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

func stagedRoles(ctx context.Context, q db.Querier, invitationID string) ([]StagedRole, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invitation_id, role_id, location_id FROM invitation_roles_locations
		WHERE invitation_id = $1 ORDER BY id`, invitationID)
	if err != nil {
		return nil, db.Translate("invitations: staged roles", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StagedRole, error) {
		var s StagedRole
		err := row.Scan(&s.ID, &s.InvitationID, &s.RoleID, &s.LocationID)
		return s, err
	})
	if err != nil {
		return nil, db.Translate("invitations: staged roles", err)
	}
	return out, nil
}

func stagedPermissions(ctx context.Context, q db.Querier, invitationID string) ([]StagedPermission, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invitation_id, permission_id, location_id FROM invitation_permissions
		WHERE invitation_id = $1 ORDER BY id`, invitationID)
	if err != nil {
		return nil, db.Translate("invitations: staged permissions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StagedPermission, error) {
		var s StagedPermission
		err := row.Scan(&s.ID, &s.InvitationID, &s.PermissionID, &s.LocationID)
		return s, err
	})
	if err != nil {
		return nil, db.Translate("invitations: staged permissions", err)
	}
	return out, nil
}

func scanInvitation(row pgx.CollectableRow) (Invitation, error) {
	var (
		inv    Invitation
		status string
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.FirstName, &inv.LastName, &inv.InvitedBy, &inv.Token, &status,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.RevokedAt, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Status = Status(status)
	return inv, err
}

var _ Repository = (*PGRepository)(nil)
