package locations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Location, error) {
	filters.Search = strings.TrimSpace(filters.Search)
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id string) (Location, error) {
	if strings.TrimSpace(id) == "" {
		return Location{}, shared.Detail(shared.ErrValidation, "invalid location ID")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, location Location) (Location, error) {
	location = normalize(location)
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	return s.repo.Create(ctx, location)
}

func (s *Service) Update(ctx context.Context, id string, location Location) error {
	if strings.TrimSpace(id) == "" {
		return shared.Detail(shared.ErrValidation, "invalid location ID")
	}
	location = normalize(location)
	if err := s.validate(location); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, location)
}

// Deactivate soft-deletes a location; assignments referencing it are kept.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, false)
}

// Reactivate restores a deactivated location.
func (s *Service) Reactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, true)
}

// RequireActive fails with shared.ErrNotFound naming the first id that is missing or
// inactive.
func (s *Service) RequireActive(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.repo.List(ctx, ListFilters{IDs: ids})
	if err != nil {
		return err
	}
	active := make(map[string]struct{}, len(found))
	for _, l := range found {
		active[l.ID] = struct{}{}
	}
	missing := make([]string, 0)
	for _, id := range ids {
		if _, ok := active[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("locations: %w", shared.Detail(shared.ErrNotFound, "location not found or inactive: "+missing[0]))
}
