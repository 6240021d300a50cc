package locations

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/platform/ids"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Location, error)
	Get(ctx context.Context, id string) (Location, error)
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, id string, location Location) error
	SetActive(ctx context.Context, id string, active bool) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const locationColumns = `id, name, address, city, country, phone, email, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE 1=1`
	args := []any{}
	argCount := 0

	if !filters.IncludeInactive {
		query += ` AND is_active`
	}
	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR city ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IDs != nil {
		argCount++
		query += ` AND id = ANY($` + strconv.Itoa(argCount) + `)`
		args = append(args, filters.IDs)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate("locations: list", err)
	}
	out, err := pgx.CollectRows(rows, scanLocation)
	if err != nil {
		return nil, db.Translate("locations: list", err)
	}
	return out, nil
}

func (r *repository) Get(ctx context.Context, id string) (Location, error) {
	rows, err := r.db.Query(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	if err != nil {
		return Location{}, db.Translate("locations: get", err)
	}
	loc, err := pgx.CollectExactlyOneRow(rows, scanLocation)
	if err != nil {
		return Location{}, db.Translate("locations: get", err)
	}
	return loc, nil
}

func (r *repository) Create(ctx context.Context, location Location) (Location, error) {
	now := time.Now().UTC()
	location.ID = ids.NewAt(now)
	location.IsActive = true
	location.CreatedAt = now
	location.UpdatedAt = now
	_, err := r.db.Exec(ctx, `
		INSERT INTO locations (id, name, address, city, country, phone, email, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)`,
		location.ID, location.Name, location.Address, location.City, location.Country, location.Phone, location.Email, now)
	if err != nil {
		return Location{}, db.Translate("locations: create", err)
	}
	return location, nil
}

func (r *repository) Update(ctx context.Context, id string, location Location) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE locations SET name = $1, address = $2, city = $3, country = $4, phone = $5, email = $6, updated_at = now()
		WHERE id = $7`,
		location.Name, location.Address, location.City, location.Country, location.Phone, location.Email, id)
	if err != nil {
		return db.Translate("locations: update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return db.Translate("locations: set active", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanLocation(row pgx.CollectableRow) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.City, &l.Country, &l.Phone, &l.Email, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
