package admin

import (
	"strings"

	"taxingsolutions-backend/internal/access"
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateFranchiseRequest struct {
	Email         string  `json:"email"`
	FranchiseName *string `json:"franchise_name"`
}

type FranchiseResponse struct {
	ID                uint   `json:"id"`
	UserID            uint   `json:"user_id"`
	FranchiseName     string `json:"franchise_name"`
	ReferralCode      string `json:"referral_code"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	CreatedAt         string `json:"created_at"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

func newFranchiseResponse(f *models.FranchiseWithOwner) FranchiseResponse {
	return FranchiseResponse{
		ID:            f.ID,
		UserID:        f.UserID,
		FranchiseName: f.Name,
		ReferralCode:  f.ReferralCode,
		FirstName:     f.FirstName,
		LastName:      f.LastName,
		Email:         f.Email,
		CreatedAt:     f.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// FRANCHISES
// ----------------------------------------

func ListFranchisesHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		franchises, err := authority.ListFranchises(c.UserContext(), actor)
		if err != nil {
			return err
		}

		res := make([]FranchiseResponse, 0, len(franchises))
		for i := range franchises {
			res = append(res, newFranchiseResponse(&franchises[i]))
		}
		return c.JSON(res)
	}
}

func CreateFranchiseHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var body CreateFranchiseRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}
		email, err := auth.NormalizeEmail(body.Email)
		if err != nil {
			return err
		}
		if body.FranchiseName != nil {
			name := strings.TrimSpace(*body.FranchiseName)
			body.FranchiseName = &name
		}

		created, view, err := authority.CreateFranchise(c.UserContext(), actor, email, body.FranchiseName)
		if err != nil {
			return err
		}

		res := newFranchiseResponse(view)
		if created.AccountCreated {
			res.TemporaryPassword = created.TemporaryPassword
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

func DeleteFranchiseHandler(authority *access.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}

		if err := authority.DeleteFranchise(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Franchise deleted successfully"})
	}
}
