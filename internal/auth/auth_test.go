package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/config"
	"taxingsolutions-backend/internal/database"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.Config{DatabaseDriver: config.DriverSQLite, DatabaseDSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{FirstName: "Test", Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, h.Verify(hash, "secret123"))
	assert.False(t, h.Verify(hash, "wrong"))
}

func TestTemporaryPassword(t *testing.T) {
	a, b := TemporaryPassword(), TemporaryPassword()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	token, err := issuer.GenerateToken(&models.User{ID: 42, Role: models.RoleFranchise})
	require.NoError(t, err)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, models.RoleFranchise, claims.Role)
}

func TestTokenIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := issuer.GenerateToken(&models.User{ID: 1})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.ParseToken(expired)
	assert.Error(t, err)

	other := NewTokenIssuer("another-secret-that-is-32-bytes-long!", time.Minute)
	foreign, err := other.GenerateToken(&models.User{ID: 1})
	require.NoError(t, err)
	_, err = issuer.ParseToken(foreign)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.ParseToken(unsigned)
	assert.Error(t, err)
}

func TestResolver_Resolve(t *testing.T) {
	db := setupTestDB(t)
	issuer := NewTokenIssuer(testSecret, time.Minute)
	resolver := NewResolver(db, issuer)
	user := createUser(t, db, "a@example.com", models.RoleAdmin)

	token, err := issuer.GenerateToken(user)
	require.NoError(t, err)

	got, err := resolver.Resolve(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)

	ghost, err := issuer.GenerateToken(&models.User{ID: 9999})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + token},
		{"no token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"deleted subject", "Bearer " + ghost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.header)
			assert.True(t, apperr.Is(err, apperr.KindUnauthenticated), "got %v", err)
		})
	}
}

func TestRequire(t *testing.T) {
	tests := []struct {
		role       models.UserRole
		adminTier  bool
		superAdmin bool
	}{
		{models.RoleUser, false, false},
		{models.RoleFranchise, true, false},
		{models.RoleAdmin, true, false},
		{models.RoleSuperAdmin, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			u := &models.User{Role: tt.role}
			assert.Equal(t, tt.adminTier, Require(u, AdminTier) == nil)
			assert.Equal(t, tt.superAdmin, Require(u, SuperAdminOnly) == nil)
			if !tt.superAdmin {
				assert.True(t, apperr.Is(Require(u, SuperAdminOnly), apperr.KindForbidden))
			}
		})
	}
	assert.True(t, apperr.Is(Require(nil, AdminTier), apperr.KindUnauthenticated))
}

func TestMiddleware_GatesRoutes(t *testing.T) {
	db := setupTestDB(t)
	issuer := NewTokenIssuer(testSecret, time.Minute)
	plain := createUser(t, db, "plain@example.com", models.RoleUser)
	boss := createUser(t, db, "boss@example.com", models.RoleSuperAdmin)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperr.HTTPStatus(apperr.KindOf(err)))
		},
	})
	app.Get("/admin", JWTMiddleware(NewResolver(db, issuer)), RequireRole(SuperAdminOnly), func(c *fiber.Ctx) error {
		u, err := CurrentUser(c)
		if err != nil {
			return err
		}
		return c.SendString(u.Email)
	})

	call := func(user *models.User) int {
		req := httptest.NewRequest("GET", "/admin", nil)
		if user != nil {
			token, err := issuer.GenerateToken(user)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, call(nil))
	assert.Equal(t, fiber.StatusForbidden, call(plain))
	assert.Equal(t, fiber.StatusOK, call(boss))
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	for _, bad := range []string{"", "   ", "jane", "jane@", "Jane <jane@example.com>", "jane@@example.com"} {
		_, err := NormalizeEmail(bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "%q", bad)
	}
}
