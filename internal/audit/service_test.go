package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall Query
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	s.lastCall = q
	if q.Limit > 0 && len(s.rows) > q.Limit {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func mockRow(at, actor, action, entity, entityID string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, ActorID: actor, Action: action, Entity: entity, EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2024-03-10T10:00:00Z", "u-1", "invitation.created", "invitation", "i-1"),
		mockRow("2024-03-09T09:00:00Z", "u-1", "role.assigned", "user_location_role", "a-1"),
		mockRow("2024-03-08T08:00:00Z", "u-2", "invitation.accepted", "invitation", "i-2"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 3, repo.lastCall.Limit)
	require.Zero(t, repo.lastCall.Offset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500, Action: "role.assigned"})
	require.NoError(t, err)
	require.Equal(t, 50, result.Paging.PageSize)
	require.Equal(t, 51, repo.lastCall.Limit)
	require.Equal(t, 100, repo.lastCall.Offset)
	require.Equal(t, "role.assigned", repo.lastCall.Action)
	require.NotNil(t, result.Rows)
	require.Equal(t, 2, result.Paging.PrevPage)
}

func TestServiceExportUnbounded(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow("2024-03-10T10:00:00Z", "u-1", "invitation.revoked", "invitation", "i-9")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Entity: "invitation", Page: 4, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, repo.lastCall.Limit)
	require.Zero(t, repo.lastCall.Offset)
	require.Equal(t, "invitation", repo.lastCall.Entity)
}

func TestWriteCSV(t *testing.T) {
	row := mockRow("2024-03-10T10:00:00Z", "u-1", "permission.override", "user_permission", "o-1")
	row.Meta = map[string]any{"granted": false}
	out, err := WriteCSV([]TimelineRow{row})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "at,actor_id,action,entity,entity_id,meta", lines[0])
	require.Equal(t, `2024-03-10T10:00:00Z,u-1,permission.override,user_permission,o-1,"{""granted"":false}"`, lines[1])
}

func TestBuildTimelineQuery(t *testing.T) {
	sql, args := buildTimelineQuery(Query{
		From:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Actor:  " u-1 ",
		Action: "role.assigned",
		Limit:  21,
		Offset: 20,
	})
	require.Contains(t, sql, "occurred_at >= $1")
	require.Contains(t, sql, "actor_id = $2")
	require.Contains(t, sql, "action = $3")
	require.Contains(t, sql, "LIMIT $4 OFFSET $5")
	require.Len(t, args, 5)
	require.NotContains(t, sql, "entity_id =")

	sql, args = buildTimelineQuery(Query{})
	require.NotContains(t, sql, "LIMIT")
	require.Empty(t, args)
}
