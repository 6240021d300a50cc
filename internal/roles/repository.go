package roles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, display_name, description, level, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.Level, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns roles ordered by level, highest first.
func (r *Repository) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE ($1 OR is_active) ORDER BY level DESC, name`, filter.IncludeInactive)
	if err != nil {
		return nil, db.Translate("roles: list", err)
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, db.Translate("roles: scan", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate("roles: list", err)
	}
	return out, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return Role{}, db.Translate("roles: get", err)
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, display_name, description, level, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING `+roleColumns,
		ids.New(), role.Name, role.DisplayName, role.Description, role.Level))
	if err != nil {
		return Role{}, db.Translate("roles: create", err)
	}
	return created, nil
}

// ListRolePermissionIDs returns the permission IDs granted to a role.
func (r *Repository) ListRolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, db.Translate("roles: list permissions", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.Translate("roles: list permissions", err)
	}
	return out, nil
}

// ReplaceRolePermissions attaches and detaches grants so the role holds exactly
// permissionIDs. Runs as one transaction so resolvers never see a partial set.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, p FROM unnest($2::text[]) AS p
			ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionIDs)
		return err
	})
	return db.Translate("roles: replace permissions", err)
}

var _ RepositoryPort = (*Repository)(nil)
