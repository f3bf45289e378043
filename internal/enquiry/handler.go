// Package enquiry stores service enquiries from the public site. Admin-tier readers see the enquiries
// tagged with their own franchise code; super admins see all of them.
package enquiry

import (
	"errors"
	"strconv"
	"strings"

	"taxingsolutions-backend/internal/access"
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateEnquiryRequest struct {
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Company       string  `json:"company"`
	JobTitle      string  `json:"jobTitle"`
	ServiceType   string  `json:"serviceType"`
	Budget        string  `json:"budget"`
	Timeline      string  `json:"timeline"`
	Message       string  `json:"message"`
	HowDidYouHear string  `json:"howDidYouHear"`
	FranchiseCode *string `json:"franchiseCode"`
}

func CreateEnquiryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateEnquiryRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}

		body.FirstName = strings.TrimSpace(body.FirstName)
		body.Message = strings.TrimSpace(body.Message)
		if body.FirstName == "" || body.Message == "" {
			return apperr.Validation("firstName and message are required")
		}
		email, err := auth.NormalizeEmail(body.Email)
		if err != nil {
			return err
		}

		e := models.Enquiry{
			FirstName:     body.FirstName,
			LastName:      strings.TrimSpace(body.LastName),
			Email:         email,
			Phone:         strings.TrimSpace(body.Phone),
			Company:       strings.TrimSpace(body.Company),
			JobTitle:      strings.TrimSpace(body.JobTitle),
			ServiceType:   strings.TrimSpace(body.ServiceType),
			Budget:        strings.TrimSpace(body.Budget),
			Timeline:      strings.TrimSpace(body.Timeline),
			Message:       body.Message,
			HowDidYouHear: strings.TrimSpace(body.HowDidYouHear),
		}
		if body.FranchiseCode != nil {
			if code := strings.TrimSpace(*body.FranchiseCode); code != "" {
				if len(code) > models.ReferralCodeLength {
					return apperr.Validation("franchiseCode is too long")
				}
				e.FranchiseCode = &code
			}
		}

		if err := db.WithContext(c.UserContext()).Create(&e).Error; err != nil {
			return apperr.Internal("failed to save enquiry", err)
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

func ListEnquiriesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		scope, err := access.ScopeFor(actor)
		if err != nil {
			return err
		}

		rows := []models.Enquiry{}
		q := scope.Apply(db.WithContext(c.UserContext()), "franchise_code")
		if err := q.Order("id DESC").Find(&rows).Error; err != nil {
			return apperr.Internal("failed to list enquiries", err)
		}
		return c.JSON(rows)
	}
}

func GetEnquiryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := load(c, db)
		if err != nil {
			return err
		}
		return c.JSON(e)
	}
}

func DeleteEnquiryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := load(c, db)
		if err != nil {
			return err
		}
		if err := db.WithContext(c.UserContext()).Delete(&models.Enquiry{}, e.ID).Error; err != nil {
			return apperr.Internal("failed to delete enquiry", err)
		}
		return c.JSON(fiber.Map{"message": "Enquiry deleted successfully"})
	}
}

// load fetches the enquiry named by :id and checks it is inside the caller's scope.
func load(c *fiber.Ctx, db *gorm.DB) (*models.Enquiry, error) {
	actor, err := auth.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	scope, err := access.ScopeFor(actor)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.Validation("invalid id")
	}

	var e models.Enquiry
	if err := db.WithContext(c.UserContext()).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("enquiry not found")
		}
		return nil, apperr.Internal("failed to load enquiry", err)
	}
	if !scope.Allows(e.FranchiseCode) {
		return nil, apperr.Forbidden("enquiry is outside your franchise")
	}
	return &e, nil
}
