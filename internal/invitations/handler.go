package invitations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

const idempotencyModule = "invitations.create"

// IdempotencyStore claims retry keys for create requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the invitation HTTP API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	keys    IdempotencyStore
}

// NewHandler builds Handler instance. keys may be nil.
func NewHandler(logger *slog.Logger, service *Service, keys IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, keys: keys}
}

// MountRoutes registers the authenticated invitation routes. Authorization happens in
// the service because the invite flag is not a permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/resend", h.resend)
	r.Post("/{id}/revoke", h.revoke)
}

// MountPublic registers routes reachable with only a token.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/lookup", h.lookup)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrConflict) {
				h.logger.Error("claim idempotency key", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
	}

	created, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		if key != "" && h.keys != nil {
			if derr := h.keys.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.logFailure("create invitation", actor, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "invitation": created})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	filter := ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Email:  r.URL.Query().Get("email"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, shared.Detail(shared.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	views, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.logFailure("list invitations", actor, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "invitations": views})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	view, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure("show invitation", actor, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "invitation": view})
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	created, err := h.service.Resend(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure("resend invitation", actor, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "invitation": created})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Revoke(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.logFailure("revoke invitation", actor, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// lookupView is what an unauthenticated invitee may see.
type lookupView struct {
	Email       string             `json:"email"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	ExpiresAt   string             `json:"expires_at"`
	Roles       []StagedRole       `json:"roles"`
	Permissions []StagedPermission `json:"permissions"`
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.LookupByToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		status := httpx.StatusFor(err)
		if errors.Is(err, shared.ErrNotFound) {
			status = http.StatusNotFound
		}
		if status == http.StatusInternalServerError {
			h.logger.Error("lookup invitation", slog.Any("error", err))
		}
		httpx.JSON(w, status, httpx.Failure{Success: false, Error: shared.UserSafeMessage(err), Code: httpx.CodeFor(err)})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "invitation": lookupView{
		Email:       inv.Email,
		FirstName:   inv.FirstName,
		LastName:    inv.LastName,
		ExpiresAt:   inv.ExpiresAt.UTC().Format(time.RFC3339),
		Roles:       inv.Roles,
		Permissions: inv.Permissions,
	}})
}

func (h *Handler) logFailure(op string, actor shared.Principal, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("actor_id", actor.UserID), slog.Any("error", err))
		return
	}
	h.logger.Warn(op, slog.String("actor_id", actor.UserID), slog.Any("error", err))
}
