package rbac

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Handler exposes permission resolution and grant management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountMe registers the current-user routes.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/permissions", h.myPermissions)
}

// MountPermissions registers the catalog routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PermViewSettings, shared.PermManageSettings, shared.PermAssignRoles)).Get("/", h.listPermissions)
}

// MountUserGrants registers per-user grant routes on the /users router.
func (h *Handler) MountUserGrants(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PermViewUsers, shared.PermManageUsers)).Get("/{id}/roles", h.listAssignments)
	r.With(h.guard.RequireAny(shared.PermAssignRoles, shared.PermManageUsers)).Post("/{id}/roles", h.assignRole)
	r.With(h.guard.RequireAny(shared.PermAssignRoles, shared.PermManageUsers)).Delete("/{id}/roles/{assignmentID}", h.deactivateAssignment)
	r.With(h.guard.RequireAll(shared.PermManageUsers)).Post("/{id}/permissions", h.setOverride)
	r.With(h.guard.RequireAny(shared.PermViewUsers, shared.PermManageUsers)).Get("/{id}/can-manage/{target}", h.canManage)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	set, err := h.service.EffectivePermissions(r.Context(), principal.UserID, r.URL.Query().Get(LocationParam))
	if err != nil {
		h.logger.Error("resolve permissions", slog.String("user_id", principal.UserID), slog.Any("error", err))
		httpx.JSON(w, httpx.StatusFor(err), map[string]any{"resolved": false, "error": shared.UserSafeMessage(err)})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resolved": true, "permissions": set.Names()})
}

type categoryGroup struct {
	Category    string       `json:"category"`
	Permissions []Permission `json:"permissions"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	grouped := GroupByCategory(perms)
	categories := make([]string, 0, len(grouped))
	for c := range grouped {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	out := make([]categoryGroup, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryGroup{Category: c, Permissions: grouped[c]})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "categories": out})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	assignments, err := h.service.Assignments(r.Context(), userID)
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"assignments": assignments,
		"level":       AuthorityLevel(assignments),
		"locations":   Locations(assignments),
	})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var input AssignRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.UserID = chi.URLParam(r, "id")
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.ensureOutranks(r, actor.UserID, input.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.AssignedBy = actor.UserID
	created, err := h.service.AssignRole(r.Context(), input)
	if err != nil {
		h.logger.Warn("assign role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "assignment": created})
}

func (h *Handler) deactivateAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.ensureOutranks(r, actor.UserID, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeactivateAssignment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "assignmentID")); err != nil {
		h.logger.Warn("deactivate assignment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	var input OverrideInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.UserID = chi.URLParam(r, "id")
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.ensureOutranks(r, actor.UserID, input.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.GrantedBy = actor.UserID
	created, err := h.service.SetOverride(r.Context(), input)
	if err != nil {
		h.logger.Warn("set override", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "override": created})
}

func (h *Handler) canManage(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.CanManageUser(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "target"))
	if err != nil {
		h.logger.Error("can manage", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "canManage": ok})
}

// ensureOutranks stops actors from changing grants of users at or above their level.
func (h *Handler) ensureOutranks(r *http.Request, actorID, targetID string) error {
	if strings.TrimSpace(targetID) == "" {
		return shared.Detail(shared.ErrValidation, "user id required")
	}
	ok, err := h.service.CanManageUser(r.Context(), actorID, targetID)
	if err != nil {
		h.logger.Error("authority check", slog.Any("error", err))
		return err
	}
	if !ok {
		return shared.ErrPermissionDenied
	}
	return nil
}
