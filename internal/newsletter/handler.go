package newsletter

import (
	"errors"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe upserts the address to subscribed.
func Subscribe(db *gorm.DB, email string) (*models.NewsletterSubscription, error) {
	sub := models.NewsletterSubscription{Email: email, Status: models.StatusSubscribed}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		return nil, apperr.Internal("failed to subscribe", err)
	}

	// the upsert does not report the id of an existing row on every driver
	var stored models.NewsletterSubscription
	if err := db.Where("email = ?", email).First(&stored).Error; err != nil {
		return nil, apperr.Internal("failed to load subscription", err)
	}
	return &stored, nil
}

// Unsubscribe marks a known address as unsubscribed.
func Unsubscribe(db *gorm.DB, email string) error {
	var sub models.NewsletterSubscription
	if err := db.Where("email = ?", email).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("email not found")
		}
		return apperr.Internal("failed to load subscription", err)
	}
	if err := db.Model(&sub).Update("status", models.StatusUnsubscribed).Error; err != nil {
		return apperr.Internal("failed to unsubscribe", err)
	}
	return nil
}

func SubscribeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SubscribeRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}
		email, err := auth.NormalizeEmail(body.Email)
		if err != nil {
			return err
		}

		sub, err := Subscribe(db.WithContext(c.UserContext()), email)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	}
}

func UnsubscribeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SubscribeRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}
		email, err := auth.NormalizeEmail(body.Email)
		if err != nil {
			return err
		}

		if err := Unsubscribe(db.WithContext(c.UserContext()), email); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Unsubscribed"})
	}
}

func ListSubscriptionsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subs := []models.NewsletterSubscription{}
		if err := db.WithContext(c.UserContext()).Order("id DESC").Find(&subs).Error; err != nil {
			return apperr.Internal("failed to list subscriptions", err)
		}
		return c.JSON(subs)
	}
}
