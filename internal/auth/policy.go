package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "evcharge/internal/errors"
	"evcharge/internal/model"
)

// Resource is anything owned by a user.
type Resource interface {
	// ResourceOwner returns the owner id, or false when the resource has none.
	ResourceOwner() (uuid.UUID, bool)
}

// IsAdmin reports whether p holds the admin role.
func IsAdmin(p Principal) bool {
	return p.Role == model.RoleAdmin
}

// CanAccessResource reports whether p may read or modify r.
func CanAccessResource(p Principal, r Resource) bool {
	if IsAdmin(p) {
		return true
	}
	owner, ok := r.ResourceOwner()
	return ok && owner == p.ID
}

// AuthorizeRoles returns ErrForbidden unless p holds one of roles.
func AuthorizeRoles(p Principal, roles ...model.Role) error {
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return apperrors.ErrForbidden
}

// RequireRoles gates a route on the caller's role. It must run after the guard.
func RequireRoles(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := CurrentPrincipal(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
					Message: apperrors.ErrUnauthenticated.Error(),
					Code:    "UNAUTHENTICATED",
				})
			}
			if err := AuthorizeRoles(p, roles...); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, apperrors.ErrorResponse{
					Message: "user role not authorized to access this route",
					Code:    "FORBIDDEN",
				})
			}
			return next(c)
		}
	}
}
