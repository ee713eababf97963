package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
)

// Keys the middleware stores the caller under on the echo context.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyUsername = "username"
	ContextKeyUser     = "user"
)

type Middleware struct {
	authService *Service
}

func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// Authenticate resolves the session token into an active user and stores it on
// the context. Requests without a valid session get a 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := tokenFromRequest(c)
		if token == "" {
			return errcodes.Unauthorized("")
		}

		user, err := m.resolve(c, token)
		if err != nil {
			return err
		}

		setUser(c, user)
		return next(c)
	}
}

// AuthenticateOptional sets the user when a valid session is present and
// otherwise lets the request through anonymously.
func (m *Middleware) AuthenticateOptional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token := tokenFromRequest(c); token != "" {
			if user, err := m.resolve(c, token); err == nil {
				setUser(c, user)
			}
		}
		return next(c)
	}
}

// RequirePermission must run after Authenticate.
func (m *Middleware) RequirePermission(resource, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := UserFromContext(c)
			if user == nil {
				return errcodes.Unauthorized("")
			}
			if !user.HasPermission(resource, operation) {
				return errcodes.Forbidden("Using " + resource + ":" + operation)
			}
			return next(c)
		}
	}
}

func (m *Middleware) resolve(c echo.Context, token string) (*models.User, error) {
	claims, err := m.authService.ValidateToken(token)
	if err != nil {
		return nil, errcodes.Unauthorized("Invalid or expired token.")
	}

	user, err := m.authService.GetUserByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return nil, errcodes.Unauthorized("User not found or inactive.")
	}
	return user, nil
}

// tokenFromRequest reads the session cookie, falling back to a bearer token
// for the CLI and scripts.
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func setUser(c echo.Context, user *models.User) {
	c.Set(ContextKeyUserID, user.ID)
	c.Set(ContextKeyUsername, user.Username)
	c.Set(ContextKeyUser, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(c echo.Context) *models.User {
	user, _ := c.Get(ContextKeyUser).(*models.User)
	return user
}
