package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-access/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// LocationParam is the query parameter selecting the location a request acts on.
const LocationParam = "location_id"

// ErrUnresolved is reported when no resolution was attempted for the request.
var ErrUnresolved = errors.New("rbac: permissions not resolved")

// Resolution is the per-request outcome of a permission resolution.
type Resolution struct {
	Set PermissionSet
	Err error
}

type resolutionKey struct{}

// ContextWithResolution stores r in ctx.
func ContextWithResolution(ctx context.Context, r Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, r)
}

// PermissionsFromContext returns the set resolved for the request. The error is
// non-nil when resolution failed or never ran; callers must then treat the actor as
// holding no permissions.
func PermissionsFromContext(ctx context.Context) (PermissionSet, error) {
	r, ok := ctx.Value(resolutionKey{}).(Resolution)
	if !ok {
		return PermissionSet{}, ErrUnresolved
	}
	if r.Err != nil {
		return PermissionSet{}, r.Err
	}
	return r.Set, nil
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Resolve computes the principal's permissions once and stores the outcome in the
// request context. It never rejects a request.
func (m Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := PermissionsFromContext(r.Context()); !errors.Is(err, ErrUnresolved) {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(m.resolve(r)))
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require any", normalizePermissions(perms), PermissionSet.HasAny)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require all", normalizePermissions(perms), PermissionSet.HasAll)
}

func (m Middleware) require(op string, required []string, check func(PermissionSet, ...string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			ctx := r.Context()
			if _, err := PermissionsFromContext(ctx); errors.Is(err, ErrUnresolved) {
				ctx = m.resolve(r)
				r = r.WithContext(ctx)
			}
			granted, err := PermissionsFromContext(ctx)
			if err != nil {
				m.logger().Error(op, slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if check(granted, required...) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, shared.ErrPermissionDenied)
		})
	}
}

func (m Middleware) resolve(r *http.Request) context.Context {
	ctx := r.Context()
	principal, ok := shared.PrincipalFromContext(ctx)
	if !ok {
		return ContextWithResolution(ctx, Resolution{Err: shared.ErrUnauthenticated})
	}
	set, err := m.Service.EffectivePermissions(ctx, principal.UserID, strings.TrimSpace(r.URL.Query().Get(LocationParam)))
	return ContextWithResolution(ctx, Resolution{Set: set, Err: err})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalize(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
