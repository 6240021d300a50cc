package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/odyssey-access/internal/audit/http"
	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	"github.com/odyssey-erp/odyssey-access/internal/locations"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/onboarding"
	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/roles"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Tokens         *auth.Tokens
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	RBACHandler        *rbac.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	LocationsHandler   *locations.Handler
	InvitationsHandler *invitations.Handler
	OnboardingHandler  *onboarding.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Tokens != nil {
		r.Use(auth.Bearer(params.Tokens))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Public surface: credentials, invitation lookup and onboarding.
	if params.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Use(StrictLimiter())
			params.AuthHandler.MountRoutes(r)
		})
	}
	if params.InvitationsHandler != nil {
		r.Route("/invitations", func(r chi.Router) {
			params.InvitationsHandler.MountPublic(r)
			r.Group(func(r chi.Router) {
				authenticated(r, params)
				params.InvitationsHandler.MountRoutes(r)
			})
		})
	}
	if params.OnboardingHandler != nil {
		r.Route("/onboarding", func(r chi.Router) {
			r.Use(StrictLimiter())
			params.OnboardingHandler.MountRoutes(r)
		})
	}

	r.Group(func(r chi.Router) {
		authenticated(r, params)

		if params.RBACHandler != nil {
			r.Route("/me", params.RBACHandler.MountMe)
			r.Route("/permissions", params.RBACHandler.MountPermissions)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		r.Route("/users", func(r chi.Router) {
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			if params.RBACHandler != nil {
				params.RBACHandler.MountUserGrants(r)
			}
		})
		if params.LocationsHandler != nil {
			r.Route("/locations", params.LocationsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAny(shared.PermManageSettings)).Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func authenticated(r chi.Router, params RouterParams) {
	r.Use(auth.RequirePrincipal)
	if params.RBACMiddleware.Service != nil {
		r.Use(params.RBACMiddleware.Resolve)
	}
}
