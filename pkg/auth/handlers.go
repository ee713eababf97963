package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
)

const (
	CookieName   = "lendshelf_session"
	CookieMaxAge = 7 * 24 * time.Hour
)

type handler struct {
	authService *Service
}

func buildMeResponse(user *models.User) MeResponse {
	resp := MeResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		RoleID:      user.RoleID,
		Permissions: make([]string, 0),
	}
	if user.Role != nil {
		resp.RoleName = user.Role.Name
		for _, p := range user.Role.Permissions {
			resp.Permissions = append(resp.Permissions, p.Resource+":"+p.Operation)
		}
	}
	return resp
}

func sessionCookie(c echo.Context, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// startSession issues a token for the user and responds with their profile.
func (h *handler) startSession(c echo.Context, status int, user *models.User) error {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}
	c.SetCookie(sessionCookie(c, token, int(CookieMaxAge.Seconds())))
	return errors.WithStack(c.JSON(status, buildMeResponse(user)))
}

func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Authenticate(ctx, params.Username, params.Password)
	if err != nil {
		return err
	}

	return h.startSession(c, http.StatusOK, user)
}

func (h *handler) logout(c echo.Context) error {
	c.SetCookie(sessionCookie(c, "", -1))
	return errors.WithStack(c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"}))
}

// register creates a reader account and logs it in.
func (h *handler) register(c echo.Context) error {
	ctx := c.Request().Context()

	params := RegisterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Register(ctx, params.Username, params.Email, params.Password)
	if err != nil {
		return err
	}

	return h.startSession(c, http.StatusCreated, user)
}

func (h *handler) me(c echo.Context) error {
	user := UserFromContext(c)
	if user == nil {
		return errcodes.Unauthorized("")
	}
	return errors.WithStack(c.JSON(http.StatusOK, buildMeResponse(user)))
}

// status reports whether the first admin still has to be created.
func (h *handler) status(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.authService.CountUsers(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, StatusResponse{
		NeedsSetup: count == 0,
	}))
}

func (h *handler) setup(c echo.Context) error {
	ctx := c.Request().Context()

	params := RegisterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.CreateFirstAdmin(ctx, params.Username, params.Email, params.Password)
	if err != nil {
		return err
	}

	return h.startSession(c, http.StatusOK, user)
}
