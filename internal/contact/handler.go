package contact

import (
	"errors"
	"strconv"
	"strings"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type ContactResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func toResponse(m *models.Contact) ContactResponse {
	return ContactResponse{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Message:   m.Message,
		CreatedAt: m.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func CreateContactHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateContactRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Message = strings.TrimSpace(body.Message)
		if body.Name == "" || body.Message == "" {
			return apperr.Validation("name and message are required")
		}
		email, err := auth.NormalizeEmail(body.Email)
		if err != nil {
			return err
		}

		m := models.Contact{Name: body.Name, Email: email, Message: body.Message}
		if err := db.WithContext(c.UserContext()).Create(&m).Error; err != nil {
			return apperr.Internal("failed to save contact", err)
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&m))
	}
}

func ListContactsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var rows []models.Contact
		if err := db.WithContext(c.UserContext()).Order("id DESC").Find(&rows).Error; err != nil {
			return apperr.Internal("failed to list contacts", err)
		}

		res := make([]ContactResponse, 0, len(rows))
		for i := range rows {
			res = append(res, toResponse(&rows[i]))
		}
		return c.JSON(res)
	}
}

func GetContactHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := load(c, db)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(m))
	}
}

func DeleteContactHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := load(c, db)
		if err != nil {
			return err
		}
		if err := db.WithContext(c.UserContext()).Delete(&models.Contact{}, m.ID).Error; err != nil {
			return apperr.Internal("failed to delete contact", err)
		}
		return c.JSON(fiber.Map{"message": "Contact deleted successfully"})
	}
}

func load(c *fiber.Ctx, db *gorm.DB) (*models.Contact, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.Validation("invalid id")
	}
	var m models.Contact
	if err := db.WithContext(c.UserContext()).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("contact not found")
		}
		return nil, apperr.Internal("failed to load contact", err)
	}
	return &m, nil
}
