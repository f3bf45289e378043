package auth

import (
	"strings"

	"taxingsolutions-backend/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizeEmail trims and lower-cases email and rejects anything that is not a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}
