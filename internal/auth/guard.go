package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "evcharge/internal/errors"
	"evcharge/internal/model"
)

// Echo context keys set by the guard.
const (
	SessionKey   = "session"
	PrincipalKey = "principal"

	rejectCauseKey = "auth_reject_cause"
)

// UserFinder resolves stored users by id.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Session is what the guard stores for a verified request.
type Session struct {
	Claims    *Claims
	Principal Principal
}

// lookupError marks a store failure during the existence check.
type lookupError struct {
	err error
}

func (e *lookupError) Error() string { return fmt.Sprintf("resolve principal: %v", e.err) }
func (e *lookupError) Unwrap() error { return e.err }

// Guard authenticates requests carrying a bearer token.
type Guard struct {
	codec     *TokenCodec
	users     UserFinder
	tokens    TokenStoreInterface
	liveRoles bool
	log       zerolog.Logger
}

// GuardConfig collects the guard's collaborators.
type GuardConfig struct {
	Codec  *TokenCodec
	Users  UserFinder
	Tokens TokenStoreInterface
	// LiveRoles takes role and email from the stored user instead of the
	// token snapshot.
	LiveRoles bool
	Logger    zerolog.Logger
}

// NewGuard creates a new guard.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		codec:     cfg.Codec,
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		liveRoles: cfg.LiveRoles,
		log:       cfg.Logger.With().Str("component", "auth_guard").Logger(),
	}
}

// Middleware returns the echo middleware enforcing authentication.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		TokenLookup:    "header:" + echo.HeaderAuthorization + ":Bearer ",
		ContextKey:     SessionKey,
		ParseTokenFunc: g.parseToken,
		SuccessHandler: g.attach,
		ErrorHandler:   g.reject,
	})
}

// Authenticate runs the full verification for a raw token string.
func (g *Guard) Authenticate(ctx context.Context, tokenString string) (*Session, error) {
	claims, err := g.codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	if g.tokens != nil {
		revoked, err := g.tokens.IsTokenRevoked(ctx, claims.ID)
		if err == nil && revoked {
			return nil, fmt.Errorf("%w: token revoked", apperrors.ErrUnauthenticated)
		}
	}

	principal := claims.Principal()
	user, err := g.users.FindByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountGone
		}
		return nil, &lookupError{err: err}
	}
	if g.liveRoles {
		principal = PrincipalFromUser(user)
	}

	return &Session{Claims: claims, Principal: principal}, nil
}

func (g *Guard) parseToken(c echo.Context, auth string) (interface{}, error) {
	session, err := g.Authenticate(c.Request().Context(), auth)
	if err != nil {
		c.Set(rejectCauseKey, err)
		return nil, err
	}
	return session, nil
}

func (g *Guard) attach(c echo.Context) {
	session, ok := c.Get(SessionKey).(*Session)
	if !ok {
		return
	}
	c.Set(PrincipalKey, session.Principal)
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), session.Principal)))
}

func (g *Guard) reject(c echo.Context, err error) error {
	if cause, ok := c.Get(rejectCauseKey).(error); ok {
		err = cause
	}
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	var lookupErr *lookupError
	switch {
	case errors.As(err, &lookupErr):
		g.log.Error().Err(err).Str("request_id", requestID).Msg("principal lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, apperrors.ErrorResponse{
			Message: "internal server error",
			Code:    "INTERNAL_ERROR",
		})
	case errors.Is(err, apperrors.ErrAccountGone):
		g.log.Info().Str("request_id", requestID).Msg("token for deleted user")
		return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
			Message: apperrors.ErrAccountGone.Error(),
			Code:    "UNAUTHENTICATED",
		})
	default:
		g.log.Debug().Err(err).Str("request_id", requestID).Msg("request rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
			Message: apperrors.ErrUnauthenticated.Error(),
			Code:    "UNAUTHENTICATED",
		})
	}
}

// CurrentPrincipal returns the principal the guard attached to c.
func CurrentPrincipal(c echo.Context) (Principal, bool) {
	p, ok := c.Get(PrincipalKey).(Principal)
	return p, ok
}

// CurrentSession returns the verified session the guard attached to c.
func CurrentSession(c echo.Context) (*Session, bool) {
	s, ok := c.Get(SessionKey).(*Session)
	return s, ok
}
