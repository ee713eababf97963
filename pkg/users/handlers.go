package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	userService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListUsersQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	users, total, err := h.userService.ListUsersWithTotal(ctx, ListUsersOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Users []*models.User `json:"users"`
		Total int            `json:"total"`
	}{users, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("User")
	}

	user, err := h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, user))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("User")
	}

	params := UpdateUserPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	self := auth.UserFromContext(c)
	opts := UpdateUserOptions{Columns: []string{}}
	if params.Email != nil {
		user.Email = params.Email
		opts.Columns = append(opts.Columns, "email")
	}
	if params.Role != nil && (user.Role == nil || *params.Role != user.Role.Name) {
		if self != nil && self.ID == user.ID {
			return errcodes.ValidationError("You can't change your own role.")
		}
		role, err := h.userService.RoleByName(ctx, *params.Role)
		if err != nil {
			return err
		}
		user.RoleID = role.ID
		opts.Columns = append(opts.Columns, "role_id")
	}
	if params.IsActive != nil && *params.IsActive != user.IsActive {
		if self != nil && self.ID == user.ID {
			return errcodes.ValidationError("You can't deactivate your own account.")
		}
		user.IsActive = *params.IsActive
		opts.Columns = append(opts.Columns, "is_active")
	}

	if err := h.userService.UpdateUser(ctx, user, opts); err != nil {
		return errors.WithStack(err)
	}

	user, err = h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, user))
}

// resetPassword lets users change their own password given the current one.
// Anyone else's needs users:write.
func (h *handler) resetPassword(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("User")
	}

	params := ResetPasswordPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	self := auth.UserFromContext(c)
	if self == nil {
		return errcodes.Unauthorized("")
	}

	user, err := h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	if self.ID == id {
		if params.CurrentPassword == nil || !auth.CheckPassword(*params.CurrentPassword, user.PasswordHash) {
			return errcodes.ValidationError("Current password is incorrect.")
		}
	} else if !self.HasPermission(models.ResourceUsers, models.OperationWrite) {
		return errcodes.Forbidden("Resetting another user's password")
	}

	if err := h.userService.ResetPassword(ctx, user, params.NewPassword); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("User")
	}

	if self := auth.UserFromContext(c); self != nil && self.ID == id {
		return errcodes.ValidationError("You can't delete your own account.")
	}

	if err := h.userService.DeleteUser(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}
