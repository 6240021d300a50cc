package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, p Profile) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// ListUsers returns users matching filter.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListUsers(ctx, filter)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CanInviteUsers reports the profile-level invite flag. A user without a profile
// simply lacks it.
func (s *Service) CanInviteUsers(ctx context.Context, id string) (bool, error) {
	user, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsActive && user.CanInviteUsers, nil
}

// UpdateProfile applies a partial update.
func (s *Service) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (Profile, error) {
	if err := s.validate.Struct(input); err != nil {
		return Profile{}, fmt.Errorf("users: update profile: %v: %w", err, shared.ErrValidation)
	}
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	p := current.Profile
	if input.FirstName != nil {
		p.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		p.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Phone != nil {
		p.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.IsActive != nil {
		p.IsActive = *input.IsActive
	}
	if input.CanInviteUsers != nil {
		p.CanInviteUsers = *input.CanInviteUsers
	}
	if input.Notes != nil {
		p.Notes = *input.Notes
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
