package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Store is the persistence surface the resolver reads from and grant writes go to.
type Store interface {
	ListAssignments(ctx context.Context, scope Scope) ([]Assignment, error)
	RolePermissionNames(ctx context.Context, roleIDs []string) (map[string][]string, error)
	ListOverrides(ctx context.Context, scope Scope) ([]Override, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	InsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
	DeactivateAssignment(ctx context.Context, userID, id string) error
	InsertOverride(ctx context.Context, o Override) (Override, error)
}

// ResolutionRecorder observes resolution outcomes.
type ResolutionRecorder interface {
	RecordResolution(outcome string)
}

// Auditor records grant changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service resolves effective permissions and records grant changes.
type Service struct {
	store    Store
	cache    *Cache
	recorder ResolutionRecorder
	auditor  Auditor
	logger   *slog.Logger
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithCache enables Redis caching of resolved sets.
func WithCache(cache *Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithRecorder attaches a resolution observer.
func WithRecorder(r ResolutionRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithAuditor records role assignments and overrides in the audit log.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service backed by store.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EffectivePermissions returns the permission set in effect for userID at
// locationID, or across every location when locationID is empty. A storage failure
// is returned as an error wrapping shared.ErrPersistence, never as an empty set.
func (s *Service) EffectivePermissions(ctx context.Context, userID, locationID string) (PermissionSet, error) {
	scope := Scope{UserID: strings.TrimSpace(userID), LocationID: strings.TrimSpace(locationID)}
	if scope.UserID == "" {
		return PermissionSet{}, fmt.Errorf("rbac: resolve: user id required: %w", shared.ErrValidation)
	}

	key, err := s.cache.Key(ctx, scope)
	if err != nil {
		s.logger.Warn("rbac cache key", slog.Any("error", err))
		key = ""
	}
	if names, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("rbac cache read", slog.Any("error", err))
	} else if ok {
		s.record("cache_hit")
		return NewPermissionSet(names...), nil
	}

	v, err, _ := s.group.Do(scope.UserID+"|"+scope.LocationID, func() (any, error) {
		// Callers sharing this flight must not inherit the first caller's cancellation.
		return s.resolve(context.WithoutCancel(ctx), scope)
	})
	if err != nil {
		s.record("error")
		return PermissionSet{}, err
	}
	set := v.(PermissionSet)
	s.record("resolved")
	if err := s.cache.Set(ctx, key, set.Names()); err != nil {
		s.logger.Warn("rbac cache write", slog.Any("error", err))
	}
	return set, nil
}

func (s *Service) resolve(ctx context.Context, scope Scope) (PermissionSet, error) {
	var (
		assignments []Assignment
		overrides   []Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = s.store.ListAssignments(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		overrides, err = s.store.ListOverrides(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return PermissionSet{}, fmt.Errorf("rbac: resolve %s: %w", scope.UserID, persistence(err))
	}

	roleIDs := make([]string, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}
		roleIDs = append(roleIDs, a.RoleID)
	}
	rolePerms := map[string][]string{}
	if len(roleIDs) > 0 {
		var err error
		rolePerms, err = s.store.RolePermissionNames(ctx, roleIDs)
		if err != nil {
			return PermissionSet{}, fmt.Errorf("rbac: resolve %s: %w", scope.UserID, persistence(err))
		}
	}
	return Resolve(scope, assignments, rolePerms, overrides), nil
}

// HasPermission resolves and checks a single permission.
func (s *Service) HasPermission(ctx context.Context, userID, locationID, name string) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID, locationID)
	if err != nil {
		return false, err
	}
	return set.Has(name), nil
}

// Assignments returns every role assignment of userID, inactive ones included.
func (s *Service) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	out, err := s.store.ListAssignments(ctx, Scope{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("rbac: assignments %s: %w", userID, persistence(err))
	}
	return out, nil
}

// AuthorityLevel returns the user's highest active role level.
func (s *Service) AuthorityLevel(ctx context.Context, userID string) (int, error) {
	assignments, err := s.Assignments(ctx, userID)
	if err != nil {
		return 0, err
	}
	return AuthorityLevel(assignments), nil
}

// CanManageUser reports whether managerID strictly outranks targetID.
func (s *Service) CanManageUser(ctx context.Context, managerID, targetID string) (bool, error) {
	manager, err := s.Assignments(ctx, managerID)
	if err != nil {
		return false, err
	}
	target, err := s.Assignments(ctx, targetID)
	if err != nil {
		return false, err
	}
	return CanManage(manager, target), nil
}

// UserLocations lists the locations where userID holds an active role.
func (s *Service) UserLocations(ctx context.Context, userID string) ([]string, error) {
	assignments, err := s.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Locations(assignments), nil
}

// ListPermissions returns the catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", persistence(err))
	}
	return perms, nil
}

// AssignRole stores an active role assignment.
func (s *Service) AssignRole(ctx context.Context, input AssignRoleInput) (Assignment, error) {
	if err := s.validate.Struct(input); err != nil {
		return Assignment{}, fmt.Errorf("rbac: assign role: %v: %w", err, shared.ErrValidation)
	}
	created, err := s.store.InsertAssignment(ctx, Assignment{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		LocationID: input.LocationID,
		AssignedBy: input.AssignedBy,
		AssignedAt: s.now().UTC(),
		IsActive:   true,
	})
	if err != nil {
		return Assignment{}, err
	}
	s.invalidate(ctx)
	s.audit(ctx, shared.AuditLog{
		ActorID:  input.AssignedBy,
		Action:   shared.AuditRoleAssigned,
		Entity:   "user",
		EntityID: created.UserID,
		Meta:     map[string]any{"assignment_id": created.ID, "role_id": created.RoleID, "location_id": created.LocationID},
		At:       created.AssignedAt,
	})
	return created, nil
}

// DeactivateAssignment flags one of userID's assignments inactive.
func (s *Service) DeactivateAssignment(ctx context.Context, userID, id string) error {
	if err := s.store.DeactivateAssignment(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SetOverride records a direct grant or revoke. Older rows for the same key are kept;
// resolution reads the most recent.
func (s *Service) SetOverride(ctx context.Context, input OverrideInput) (Override, error) {
	if err := s.validate.Struct(input); err != nil {
		return Override{}, fmt.Errorf("rbac: set override: %v: %w", err, shared.ErrValidation)
	}
	perm, err := s.store.GetPermission(ctx, input.PermissionID)
	if err != nil {
		return Override{}, err
	}
	created, err := s.store.InsertOverride(ctx, Override{
		UserID:         input.UserID,
		PermissionID:   perm.ID,
		PermissionName: perm.Name,
		LocationID:     input.LocationID,
		Granted:        input.Granted,
		GrantedBy:      input.GrantedBy,
		GrantedAt:      s.now().UTC(),
	})
	if err != nil {
		return Override{}, err
	}
	s.invalidate(ctx)
	s.audit(ctx, shared.AuditLog{
		ActorID:  input.GrantedBy,
		Action:   shared.AuditPermissionOverride,
		Entity:   "user",
		EntityID: created.UserID,
		Meta:     map[string]any{"permission": created.PermissionName, "location_id": created.LocationID, "granted": created.Granted},
		At:       created.GrantedAt,
	})
	return created, nil
}

// Invalidate drops every cached resolution.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("rbac cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) audit(ctx context.Context, log shared.AuditLog) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, log); err != nil {
		s.logger.Warn("rbac audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordResolution(outcome)
	}
}

func persistence(err error) error {
	if shared.IsDomainError(err) || errors.Is(err, shared.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
}
