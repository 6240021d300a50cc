package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filter ListFilter) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	ListRolePermissionIDs(ctx context.Context, roleID string) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// ChangeNotifier is told when grants change so cached resolutions can be dropped.
type ChangeNotifier interface {
	Invalidate(ctx context.Context) error
}

// Service handles role business logic.
type Service struct {
	repo     RepositoryPort
	notifier ChangeNotifier
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo RepositoryPort, notifier ChangeNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, validate: validator.New()}
}

// ListRoles returns roles ordered by authority.
func (s *Service) ListRoles(ctx context.Context, filter ListFilter) ([]Role, error) {
	return s.repo.ListRoles(ctx, filter)
}

// GetRole fetches a role.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole validates and stores a role. Display name and level default from the
// role kind when omitted.
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	input.Name = strings.ToLower(strings.TrimSpace(input.Name))
	if err := s.validate.Struct(input); err != nil {
		return Role{}, fmt.Errorf("roles: create: %v: %w", err, shared.ErrValidation)
	}
	role := Role{
		Name:        input.Name,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Description: strings.TrimSpace(input.Description),
		Level:       input.Level,
	}
	if role.DisplayName == "" {
		role.DisplayName = DisplayName(role.Name)
	}
	if role.Level == 0 {
		role.Level = DefaultLevel(KindOf(role.Name))
	}
	return s.repo.CreateRole(ctx, role)
}

// RolePermissionIDs lists the permission IDs granted to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissionIDs(ctx, roleID)
}

// SetRolePermissions replaces the baseline grants for a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	unique := make([]string, 0, len(permissionIDs))
	seen := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, unique); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate permission cache", slog.String("role_id", roleID), slog.Any("error", err))
		}
	}
	return nil
}
