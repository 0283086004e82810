package auth

import (
	"context"

	"github.com/google/uuid"

	"evcharge/internal/model"
)

// Principal is the authenticated caller. It never carries the password hash.
type Principal struct {
	ID    uuid.UUID  `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// PrincipalFromUser builds the minimal principal for a stored user.
func PrincipalFromUser(u *model.User) Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role}
}

type principalCtxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the principal attached by the guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}
