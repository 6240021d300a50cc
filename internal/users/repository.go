package users

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileSelect = `
	SELECT p.id, u.email, p.first_name, p.last_name, COALESCE(p.phone, ''), p.is_active, p.can_invite_users,
	       COALESCE(p.notes, ''), p.created_at, p.updated_at,
	       (SELECT COUNT(*) FROM provisioning_gaps g WHERE g.user_id = p.id AND g.resolved_at IS NULL)
	FROM user_profiles p
	JOIN users u ON u.id = p.id`

// ListUsers returns profiles with their open provisioning gap count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	query := profileSelect + ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (u.email ILIKE $` + n + ` OR p.first_name ILIKE $` + n + ` OR p.last_name ILIKE $` + n + `)`
	}
	if filter.OnlyUnderProvisioned {
		query += ` AND EXISTS (SELECT 1 FROM provisioning_gaps g WHERE g.user_id = p.id AND g.resolved_at IS NULL)`
	}
	query += ` ORDER BY p.last_name, p.first_name, p.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate("users: list", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, db.Translate("users: list", err)
	}
	return users, nil
}

// GetUser loads one annotated profile.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	rows, err := r.pool.Query(ctx, profileSelect+` WHERE p.id = $1`, id)
	if err != nil {
		return User{}, db.Translate("users: get", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return User{}, db.Translate("users: get", err)
	}
	return user, nil
}

// UpdateProfile writes the mutable profile columns.
func (r *Repository) UpdateProfile(ctx context.Context, p Profile) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_profiles
		SET first_name = $2, last_name = $3, phone = NULLIF($4, ''), is_active = $5, can_invite_users = $6,
		    notes = NULLIF($7, ''), updated_at = $8
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.IsActive, p.CanInviteUsers, p.Notes, p.UpdatedAt)
	if err != nil {
		return db.Translate("users: update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertProfile creates the profile row through q. An existing profile for the same
// identity is left untouched so the call can be retried.
func InsertProfile(ctx context.Context, q db.Querier, p Profile, now time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_profiles (id, first_name, last_name, phone, is_active, can_invite_users, notes, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.IsActive, p.CanInviteUsers, p.Notes, now.UTC())
	return db.Translate("users: insert profile", err)
}

func scanUser(row pgx.CollectableRow) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.IsActive, &u.CanInviteUsers,
		&u.Notes, &u.CreatedAt, &u.UpdatedAt, &u.OpenGaps)
	u.UnderProvisioned = u.OpenGaps > 0
	return u, err
}
