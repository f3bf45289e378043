package admin

import (
	"bytes"
	"strconv"
	"time"

	"taxingsolutions-backend/internal/access"
	"taxingsolutions-backend/internal/account"
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type UpdateRoleRequest struct {
	Role models.UserRole `json:"role"`
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid id")
	}
	return uint(id), nil
}

// ----------------------------------------
// USERS
// ----------------------------------------

func ListUsersHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		users, err := authority.VisibleUsers(c.UserContext(), actor)
		if err != nil {
			return err
		}

		res := make([]account.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, account.NewUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

func GetUserHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}

		user, err := authority.VisibleUser(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.JSON(account.NewUserResponse(user))
	}
}

func UpdateUserRoleHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var body UpdateRoleRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}

		user, err := authority.ChangeRole(c.UserContext(), actor, id, body.Role)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "User role updated successfully",
			"user":    account.NewUserResponse(user),
		})
	}
}

func DeleteUserHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}

		if err := authority.DeleteUser(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User deleted successfully"})
	}
}

// GET /admin/export/users?format=csv|xlsx
func ExportUsersHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var (
			buf         bytes.Buffer
			ext         string
			contentType string
		)
		switch c.Query("format", "csv") {
		case "csv":
			err = authority.ExportUsersCSV(c.UserContext(), actor, &buf)
			ext, contentType = "csv", "text/csv"
		case "xlsx":
			err = authority.ExportUsersXLSX(c.UserContext(), actor, &buf)
			ext, contentType = "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		default:
			return apperr.Validation("format must be csv or xlsx")
		}
		if err != nil {
			return err
		}

		filename := "users_export_" + time.Now().Format("20060102_150405") + "." + ext
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return c.Send(buf.Bytes())
	}
}
