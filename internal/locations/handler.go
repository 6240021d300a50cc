package locations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Guard enforces permissions on routes.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
	RequireAll(perms ...string) func(http.Handler) http.Handler
}

// AccessLister lists the locations where a user holds an active role.
type AccessLister interface {
	UserLocations(ctx context.Context, userID string) ([]string, error)
}

type Handler struct {
	logger  *slog.Logger
	service *Service
	access  AccessLister
	guard   Guard
}

func NewHandler(logger *slog.Logger, service *Service, access AccessLister, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, access: access, guard: guard}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermManageLocations))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Post("/{id}/deactivate", h.Deactivate)
		r.Post("/{id}/reactivate", h.Reactivate)
	})
}

// List returns active locations. With mine=true only the caller's assigned
// locations are returned.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{
		Search:          r.URL.Query().Get("search"),
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
	}
	if r.URL.Query().Get("mine") == "true" {
		principal, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		ids, err := h.access.UserLocations(r.Context(), principal.UserID)
		if err != nil {
			h.logger.Error("list user locations failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		filters.IDs = append([]string{}, ids...)
	}
	locations, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list locations failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "locations": locations})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	location, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "location": location})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form LocationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	location, err := h.service.Create(r.Context(), form.toLocation())
	if err != nil {
		h.logger.Warn("create location failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "location": location})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var form LocationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Update(r.Context(), chi.URLParam(r, "id"), form.toLocation()); err != nil {
		h.logger.Warn("update location failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}
