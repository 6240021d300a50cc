package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type memoryUserRepo struct {
	users map[string]User
}

func (m *memoryUserRepo) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	var out []User
	for _, u := range m.users {
		if filter.OnlyUnderProvisioned && !u.UnderProvisioned {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryUserRepo) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, p Profile) error {
	u, ok := m.users[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	u.Profile = p
	m.users[p.ID] = u
	return nil
}

func newRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[string]User{
		"u1": {Profile: Profile{ID: "u1", FirstName: "Ada", LastName: "Rossi", IsActive: true, CanInviteUsers: true}},
		"u2": {Profile: Profile{ID: "u2", FirstName: "Bo", IsActive: true}, OpenGaps: 1, UnderProvisioned: true},
		"u3": {Profile: Profile{ID: "u3", IsActive: false, CanInviteUsers: true}},
	}}
}

func TestCanInviteUsers(t *testing.T) {
	svc := NewService(newRepo())
	ctx := context.Background()

	ok, err := svc.CanInviteUsers(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanInviteUsers(ctx, "u2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanInviteUsers(ctx, "u3")
	require.NoError(t, err)
	require.False(t, ok, "inactive profiles cannot invite")

	ok, err = svc.CanInviteUsers(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListUnderProvisioned(t *testing.T) {
	users, err := NewService(newRepo()).ListUsers(context.Background(), ListFilter{OnlyUnderProvisioned: true})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "u2", users[0].ID)
}

func TestUpdateProfilePartial(t *testing.T) {
	repo := newRepo()
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	phone := " +39 055 123 "
	inactive := false

	p, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileInput{Phone: &phone, IsActive: &inactive})
	require.NoError(t, err)
	require.Equal(t, "+39 055 123", p.Phone)
	require.Equal(t, "Ada Rossi", p.FullName())
	require.False(t, repo.users["u1"].IsActive)
	require.Equal(t, svc.now(), p.UpdatedAt)

	_, err = svc.UpdateProfile(context.Background(), "missing", UpdateProfileInput{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
