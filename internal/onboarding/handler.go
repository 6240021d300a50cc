package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RedirectTarget is where a completed onboarding lands.
const RedirectTarget = "/dashboard"

// SessionRegistrar records browser sessions for later revocation.
type SessionRegistrar interface {
	RegisterSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error
}

// Handler exposes the onboarding endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *shared.SessionManager
	registrar SessionRegistrar
}

// NewHandler builds Handler. sessions and registrar may be nil, in which case no
// session is bound.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, registrar SessionRegistrar) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, sessions: sessions, registrar: registrar}
}

// MountRoutes registers onboarding routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.complete)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if token := r.URL.Query().Get("token"); token != "" {
		input.Token = token
	}

	profile, result, err := h.service.Complete(r.Context(), input)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("complete onboarding", slog.Any("error", err))
		} else {
			h.logger.Warn("complete onboarding", slog.Any("error", err))
		}
		httpx.JSON(w, status, httpx.Failure{Success: false, Error: shared.UserSafeMessage(err), Code: httpx.CodeFor(err)})
		return
	}
	if result.UnderProvisioned {
		h.logger.Warn("user onboarded with provisioning gaps", slog.String("user_id", profile.ID), slog.Int("gaps", len(result.Gaps)))
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(profile.ID)
		if h.registrar != nil && h.sessions != nil {
			expiresAt := time.Now().Add(h.sessions.TTL())
			if err := h.registrar.RegisterSession(r.Context(), sess.ID, profile.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.String("user_id", profile.ID), slog.Any("error", err))
			}
		}
	}
	http.Redirect(w, r, RedirectTarget, http.StatusSeeOther)
}

func decodeInput(r *http.Request) (CompleteInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var input CompleteInput
		err := httpx.DecodeJSON(r, &input)
		return input, err
	}
	if err := r.ParseForm(); err != nil {
		return CompleteInput{}, shared.Detail(shared.ErrValidation, "invalid form body")
	}
	return CompleteInput{
		Token:           r.PostForm.Get("token"),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirmPassword"),
		Phone:           r.PostForm.Get("phone"),
	}, nil
}

// statusFor reports used invitations as 409, expired ones as 410 and any other
// unusable invitation as 404.
func statusFor(err error) int {
	if errors.Is(err, shared.ErrInvalidInvitation) {
		switch {
		case errors.Is(err, shared.ErrAlreadyAccepted):
			return http.StatusConflict
		case errors.Is(err, shared.ErrExpired):
			return http.StatusGone
		case errors.Is(err, shared.ErrPersistence):
			return http.StatusInternalServerError
		default:
			return http.StatusNotFound
		}
	}
	return httpx.StatusFor(err)
}
