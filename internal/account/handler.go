package account

import (
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type RegisterRequest struct {
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email"`
	Company      string          `json:"company"`
	Phone        string          `json:"phone"`
	Password     string          `json:"password"`
	Role         models.UserRole `json:"role"`
	ReferralCode string          `json:"referral_code"`
}

type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Company   *string `json:"company"`
	Phone     *string `json:"phone"`
}

type SessionResponse struct {
	Message       string          `json:"message"`
	UserID        uint            `json:"user_id"`
	Email         string          `json:"email"`
	Role          models.UserRole `json:"role"`
	FranchiseCode *string         `json:"franchise_code"`
	ReferralCode  *string         `json:"referral_code"`
	AccessToken   string          `json:"access_token"`
	TokenType     string          `json:"token_type"`
	ExpiresIn     int64           `json:"expires_in"`
}

type UserResponse struct {
	ID            uint            `json:"id"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email"`
	Company       string          `json:"company"`
	Phone         string          `json:"phone"`
	Role          models.UserRole `json:"role"`
	FranchiseCode *string         `json:"franchise_code"`
	ReferralCode  *string         `json:"referral_code"`
	CreatedAt     string          `json:"created_at"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Company:       u.Company,
		Phone:         u.Phone,
		Role:          u.Role,
		FranchiseCode: u.FranchiseCode,
		ReferralCode:  u.ReferralCode,
		CreatedAt:     u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (s *Service) sessionResponse(msg string, sess *Session) SessionResponse {
	return SessionResponse{
		Message:       msg,
		UserID:        sess.User.ID,
		Email:         sess.User.Email,
		Role:          sess.User.Role,
		FranchiseCode: sess.User.FranchiseCode,
		ReferralCode:  sess.User.ReferralCode,
		AccessToken:   sess.Token,
		TokenType:     "bearer",
		ExpiresIn:     int64(s.tokens.TTL().Seconds()),
	}
}

func RegisterHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}

		sess, err := svc.Register(c.UserContext(), RegisterInput{
			FirstName:    body.FirstName,
			LastName:     body.LastName,
			Email:        body.Email,
			Company:      body.Company,
			Phone:        body.Phone,
			Password:     body.Password,
			Role:         body.Role,
			ReferralCode: body.ReferralCode,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(svc.sessionResponse("Registration successful", sess))
	}
}

func LoginHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}
		if body.Email == "" || body.Password == "" {
			return apperr.Validation("email and password are required")
		}

		sess, err := svc.Login(c.UserContext(), LoginInput{
			Email:        body.Email,
			Password:     body.Password,
			ReferralCode: body.ReferralCode,
		})
		if err != nil {
			return err
		}

		return c.JSON(svc.sessionResponse("Login successful", sess))
	}
}

func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(NewUserResponse(user))
	}
}

func UpdateMeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		var body UpdateProfileRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}

		updated, err := svc.UpdateProfile(c.UserContext(), user, ProfileUpdate{
			FirstName: body.FirstName,
			LastName:  body.LastName,
			Email:     body.Email,
			Company:   body.Company,
			Phone:     body.Phone,
		})
		if err != nil {
			return err
		}
		return c.JSON(NewUserResponse(updated))
	}
}
