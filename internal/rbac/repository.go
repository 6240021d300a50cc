package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/roles"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAssignments returns the user's assignments joined with their role. Inactive rows
// are included; the resolver filters them.
func (r *Repository) ListAssignments(ctx context.Context, scope Scope) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.role_id, a.location_id, COALESCE(a.assigned_by, ''), a.assigned_at, a.is_active,
		       ro.id, ro.name, ro.display_name, ro.description, ro.level, ro.is_active, ro.created_at, ro.updated_at
		FROM user_roles_locations a
		LEFT JOIN roles ro ON ro.id = a.role_id
		WHERE a.user_id = $1 AND ($2 = '' OR a.location_id = $2)
		ORDER BY a.assigned_at, a.id`, scope.UserID, scope.LocationID)
	if err != nil {
		return nil, db.Translate("rbac: list assignments", err)
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var (
			a           Assignment
			roleID      pgtype.Text
			name        pgtype.Text
			display     pgtype.Text
			description pgtype.Text
			level       pgtype.Int4
			active      pgtype.Bool
			createdAt   pgtype.Timestamptz
			updatedAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.LocationID, &a.AssignedBy, &a.AssignedAt, &a.IsActive,
			&roleID, &name, &display, &description, &level, &active, &createdAt, &updatedAt); err != nil {
			return nil, db.Translate("rbac: scan assignment", err)
		}
		if roleID.Valid {
			a.Role = &roles.Role{
				ID:          roleID.String,
				Name:        name.String,
				DisplayName: display.String,
				Description: description.String,
				Level:       int(level.Int32),
				IsActive:    active.Bool,
				CreatedAt:   createdAt.Time,
				UpdatedAt:   updatedAt.Time,
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate("rbac: list assignments", err)
	}
	return out, nil
}

// RolePermissionNames maps each role ID to its catalog grants.
func (r *Repository) RolePermissionNames(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
		ORDER BY rp.role_id, p.name`, roleIDs)
	if err != nil {
		return nil, db.Translate("rbac: role permissions", err)
	}
	defer rows.Close()
	out := make(map[string][]string, len(roleIDs))
	for rows.Next() {
		var roleID, name string
		if err := rows.Scan(&roleID, &name); err != nil {
			return nil, db.Translate("rbac: scan role permission", err)
		}
		out[roleID] = append(out[roleID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate("rbac: role permissions", err)
	}
	return out, nil
}

// ListOverrides returns the user's direct grants and revokes.
func (r *Repository) ListOverrides(ctx context.Context, scope Scope) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT up.id, up.user_id, up.permission_id, p.name, up.location_id, up.granted, COALESCE(up.granted_by, ''), up.granted_at
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1 AND ($2 = '' OR up.location_id = $2)
		ORDER BY up.granted_at, up.id`, scope.UserID, scope.LocationID)
	if err != nil {
		return nil, db.Translate("rbac: list overrides", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Override, error) {
		var o Override
		err := row.Scan(&o.ID, &o.UserID, &o.PermissionID, &o.PermissionName, &o.LocationID, &o.Granted, &o.GrantedBy, &o.GrantedAt)
		return o, err
	})
	if err != nil {
		return nil, db.Translate("rbac: list overrides", err)
	}
	return out, nil
}

const permissionColumns = `id, name, display_name, COALESCE(description, ''), category, created_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.Category, &p.CreatedAt)
	return p, err
}

// ListPermissions returns the catalog ordered by category and display name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY category, display_name`)
	if err != nil {
		return nil, db.Translate("rbac: list permissions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		return scanPermission(row)
	})
	if err != nil {
		return nil, db.Translate("rbac: list permissions", err)
	}
	return out, nil
}

// GetPermission fetches a catalog entry.
func (r *Repository) GetPermission(ctx context.Context, id string) (Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		return Permission{}, db.Translate("rbac: get permission", err)
	}
	return p, nil
}

// InsertAssignment stores an assignment row.
func (r *Repository) InsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	a.ID = ids.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles_locations (id, user_id, role_id, location_id, assigned_by, assigned_at, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		a.ID, a.UserID, a.RoleID, a.LocationID, a.AssignedBy, a.AssignedAt, a.IsActive)
	if err != nil {
		return Assignment{}, db.Translate("rbac: insert assignment", err)
	}
	return a, nil
}

// EnsureAssignment inserts an active assignment through q unless an identical active
// one exists. It reports whether a row was written.
func EnsureAssignment(ctx context.Context, q db.Querier, a Assignment) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_roles_locations (id, user_id, role_id, location_id, assigned_by, assigned_at, is_active)
		SELECT $1::text, $2::text, $3::text, $4::text, NULLIF($5::text, ''), $6::timestamptz, TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM user_roles_locations
			WHERE user_id = $2 AND role_id = $3 AND location_id = $4 AND is_active
		)`,
		ids.NewAt(a.AssignedAt), a.UserID, a.RoleID, a.LocationID, a.AssignedBy, a.AssignedAt)
	if err != nil {
		return false, db.Translate("rbac: ensure assignment", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EnsureGrant inserts a direct grant through q unless the user already has any
// override row, grant or revoke, for the same permission and location. An existing
// revoke therefore keeps winning.
func EnsureGrant(ctx context.Context, q db.Querier, o Override) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_permissions (id, user_id, permission_id, location_id, granted, granted_by, granted_at)
		SELECT $1::text, $2::text, $3::text, $4::text, TRUE, NULLIF($5::text, ''), $6::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM user_permissions
			WHERE user_id = $2 AND permission_id = $3 AND location_id = $4
		)`,
		ids.NewAt(o.GrantedAt), o.UserID, o.PermissionID, o.LocationID, o.GrantedBy, o.GrantedAt)
	if err != nil {
		return false, db.Translate("rbac: ensure grant", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateAssignment flags an assignment inactive.
func (r *Repository) DeactivateAssignment(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_roles_locations SET is_active = FALSE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return db.Translate("rbac: deactivate assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate("rbac: deactivate assignment", pgx.ErrNoRows)
	}
	return nil
}

// InsertOverride stores a direct grant or revoke.
func (r *Repository) InsertOverride(ctx context.Context, o Override) (Override, error) {
	o.ID = ids.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (id, user_id, permission_id, location_id, granted, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		o.ID, o.UserID, o.PermissionID, o.LocationID, o.Granted, o.GrantedBy, o.GrantedAt)
	if err != nil {
		return Override{}, db.Translate("rbac: insert override", err)
	}
	return o, nil
}

var _ Store = (*Repository)(nil)
