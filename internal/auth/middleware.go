package auth

import (
	"context"
	"errors"
	"strings"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const CtxUserKey = "current_user"

// Predicate decides whether a role may perform an operation.
type Predicate func(models.UserRole) bool

// AdminTier admits admin, franchise and super_admin.
func AdminTier(r models.UserRole) bool { return r.AdminTier() }

func SuperAdminOnly(r models.UserRole) bool { return r == models.RoleSuperAdmin }

// Require fails with Forbidden when pred rejects the user's role.
func Require(user *models.User, pred Predicate) error {
	if user == nil {
		return apperr.Unauthenticated("authentication required")
	}
	if !pred(user.Role) {
		return apperr.Forbidden("you are not allowed to perform this action")
	}
	return nil
}

// Resolver turns a bearer credential into the current user record.
type Resolver struct {
	db     *gorm.DB
	tokens *TokenIssuer
}

func NewResolver(db *gorm.DB, tokens *TokenIssuer) *Resolver {
	return &Resolver{db: db, tokens: tokens}
}

// Resolve accepts the raw Authorization header value.
func (r *Resolver) Resolve(ctx context.Context, authHeader string) (*models.User, error) {
	if authHeader == "" {
		return nil, apperr.Unauthenticated("authorization header missing")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return nil, apperr.Unauthenticated("authorization header must be 'Bearer <token>'")
	}

	claims, err := r.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token subject")
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthenticated("user no longer exists")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return &user, nil
}

func JWTMiddleware(resolver *Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := resolver.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}
		c.Locals(CtxUserKey, user)
		return c.Next()
	}
}

// CurrentUser returns the user placed by JWTMiddleware.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(CtxUserKey).(*models.User)
	if !ok || user == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return user, nil
}

func RequireRole(pred Predicate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}
		if err := Require(user, pred); err != nil {
			return err
		}
		return c.Next()
	}
}
