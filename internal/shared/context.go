package shared

import (
	"context"
	"net/http"
	"strconv"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
)

// Role is the coarse authorization role supplied by the identity collaborator.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleCFO        Role = "cfo"
	RoleController Role = "controller"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

// Privileged reports whether the role may lock or reopen periods, void
// sequence numbers, and post into soft-closed periods.
func (r Role) Privileged() bool {
	switch r {
	case RoleAdmin, RoleCFO, RoleController:
		return true
	}
	return false
}

// Principal is the authenticated caller. Identity and authentication live
// outside this service; the gateway injects the principal per request and we
// trust it as given.
type Principal struct {
	UserID    int64
	CompanyID int64
	Role      Role
}

type principalKey struct{}

// ContextWithPrincipal attaches the principal to the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// PrincipalMiddleware reads the gateway-injected identity headers and rejects
// requests without a company scope. Every collection in the store is scoped
// by company id, so an unscoped request cannot be served.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
		companyID, err := strconv.ParseInt(r.Header.Get("X-Company-Id"), 10, 64)
		if err != nil || companyID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing company scope")
			return
		}
		p := Principal{
			UserID:    userID,
			CompanyID: companyID,
			Role:      Role(r.Header.Get("X-Role")),
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}
