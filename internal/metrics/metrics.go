package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_registrations_total",
			Help: "Total number of registrations by resulting role",
		},
		[]string{"role"},
	)

	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_logins_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	FranchisesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "franchises_created_total",
			Help: "Total number of franchises created",
		},
	)

	FranchisesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "franchises_deleted_total",
			Help: "Total number of franchises deleted",
		},
	)

	ReferralCodeRedraws = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_code_redraws_total",
			Help: "Drawn referral codes that were already taken",
		},
	)

	ReferralCodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_code_collisions_total",
			Help: "Franchise inserts rejected by the referral code unique index and retried",
		},
	)

	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_changes_total",
			Help: "Total number of applied role changes by target role",
		},
		[]string{"role"},
	)
)

// Handler exposes the default registry for fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
