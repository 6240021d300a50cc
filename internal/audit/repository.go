package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
)

// Repository membaca audit_logs.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// PGRepository mengimplementasikan Repository di PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Timeline mengembalikan baris terbaru lebih dulu.
func (r *PGRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildTimelineQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Translate("audit: timeline", err)
	}
	out, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, db.Translate("audit: timeline", err)
	}
	return out, nil
}

func buildTimelineQuery(q Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT occurred_at, COALESCE(actor_id, ''), action, entity, entity_id, meta FROM audit_logs WHERE 1=1`)
	add := func(clause string, value any) {
		args = append(args, value)
		sb.WriteString(" AND " + strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if from := toPgTime(q.From); from.Valid {
		add("occurred_at >= ?", from)
	}
	if to := toPgTime(q.To); to.Valid {
		add("occurred_at < ?", to)
	}
	if v := optionalText(q.Actor); v.Valid {
		add("actor_id = ?", v)
	}
	if v := optionalText(q.Entity); v.Valid {
		add("entity = ?", v)
	}
	if v := optionalText(q.EntityID); v.Valid {
		add("entity_id = ?", v)
	}
	if v := optionalText(q.Action); v.Valid {
		add("action = ?", v)
	}
	sb.WriteString(" ORDER BY occurred_at DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

func scanRow(row pgx.CollectableRow) (TimelineRow, error) {
	var (
		out  TimelineRow
		at   pgtype.Timestamptz
		meta []byte
	)
	if err := row.Scan(&at, &out.ActorID, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
		return TimelineRow{}, err
	}
	if at.Valid {
		out.At = at.Time
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &out.Meta); err != nil {
			return TimelineRow{}, err
		}
	}
	return out, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
