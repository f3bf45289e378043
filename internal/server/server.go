// Package server builds the Fiber application and its routes.
package server

import (
	"errors"
	"time"

	"taxingsolutions-backend/internal/access"
	"taxingsolutions-backend/internal/account"
	"taxingsolutions-backend/internal/admin"
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/audit"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/config"
	"taxingsolutions-backend/internal/contact"
	"taxingsolutions-backend/internal/enquiry"
	"taxingsolutions-backend/internal/franchise"
	"taxingsolutions-backend/internal/metrics"
	"taxingsolutions-backend/internal/newsletter"
	"taxingsolutions-backend/internal/referral"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New wires the services on top of db and returns the ready application.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) *fiber.App {
	hasher := auth.NewHasher(cfg.BcryptCost)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	registry := franchise.NewRegistry(db, referral.NewGenerator(), hasher, log.Named("franchise"))
	authority := access.NewAuthority(db, registry, cfg.SuperAdminEmails, log.Named("access"))
	accounts := account.NewService(db, registry, authority, hasher, tokens, log.Named("account"))
	resolver := auth.NewResolver(db, tokens)

	app := fiber.New(fiber.Config{
		AppName:               "taxingsolutions-backend",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOriginList(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	app.Get("/metrics", metrics.Handler())

	authn := auth.JWTMiddleware(resolver)
	adminTier := auth.RequireRole(auth.AdminTier)
	superAdmin := auth.RequireRole(auth.SuperAdminOnly)

	// Public auth
	app.Post("/auth/register", account.RegisterHandler(accounts))
	app.Post("/auth/login", account.LoginHandler(accounts))

	// Own profile
	app.Get("/users/me", authn, account.MeHandler())
	app.Put("/users/me", authn, account.UpdateMeHandler(accounts))

	// Admin surface
	adminRoutes := app.Group("/admin", authn, adminTier)
	adminRoutes.Get("/users", admin.ListUsersHandler(authority))
	adminRoutes.Get("/users/:id", admin.GetUserHandler(authority))
	adminRoutes.Put("/users/:id/role", superAdmin, admin.UpdateUserRoleHandler(authority))
	adminRoutes.Delete("/users/:id", superAdmin, admin.DeleteUserHandler(authority))
	adminRoutes.Get("/export/users", admin.ExportUsersHandler(authority))

	adminRoutes.Get("/franchises", superAdmin, admin.ListFranchisesHandler(authority))
	adminRoutes.Post("/franchises", superAdmin, admin.CreateFranchiseHandler(authority))
	adminRoutes.Delete("/franchises/:id", superAdmin, admin.DeleteFranchiseHandler(authority))

	adminRoutes.Get("/audit-logs", superAdmin, audit.ListAuditLogsHandler(db))

	// Intake
	app.Post("/contact", contact.CreateContactHandler(db))
	app.Get("/contact", authn, adminTier, contact.ListContactsHandler(db))
	app.Get("/contact/:id", authn, adminTier, contact.GetContactHandler(db))
	app.Delete("/contact/:id", authn, adminTier, contact.DeleteContactHandler(db))

	app.Post("/enquiries", enquiry.CreateEnquiryHandler(db))
	app.Get("/enquiries", authn, adminTier, enquiry.ListEnquiriesHandler(db))
	app.Get("/enquiries/:id", authn, adminTier, enquiry.GetEnquiryHandler(db))
	app.Delete("/enquiries/:id", authn, adminTier, enquiry.DeleteEnquiryHandler(db))

	app.Post("/newsletter/subscribe", newsletter.SubscribeHandler(db))
	app.Post("/newsletter/unsubscribe", newsletter.UnsubscribeHandler(db))
	app.Get("/newsletter", authn, adminTier, newsletter.ListSubscriptionsHandler(db))

	return app
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		kind := apperr.KindOf(err)
		if kind == apperr.KindInternal {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)),
				zap.Error(err))
		}
		return c.Status(apperr.HTTPStatus(kind)).JSON(fiber.Map{"error": apperr.PublicMessage(err)})
	}
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()

		status := c.Response().StatusCode()
		if chainErr != nil {
			var fe *fiber.Error
			if errors.As(chainErr, &fe) {
				status = fe.Code
			} else {
				status = apperr.HTTPStatus(apperr.KindOf(chainErr))
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)))
		return chainErr
	}
}
