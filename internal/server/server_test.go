package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taxingsolutions-backend/internal/audit"
	"taxingsolutions-backend/internal/config"
	"taxingsolutions-backend/internal/database"
	"taxingsolutions-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const rootEmail = "root@taxingsolutions.com"

type testServer struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		DatabaseDriver:   config.DriverSQLite,
		DatabaseDSN:      ":memory:",
		JWTSecret:        "test-secret-that-is-at-least-32-characters",
		TokenTTL:         30 * time.Minute,
		BcryptCost:       bcrypt.MinCost,
		SuperAdminEmails: []string{rootEmail},
	}
	log := zaptest.NewLogger(t)
	db, err := database.Open(cfg, log)
	require.NoError(t, err)
	return &testServer{t: t, app: New(cfg, db, log), db: db}
}

// do sends a JSON request and decodes a JSON response into out when out is not nil.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type session struct {
	UserID        uint            `json:"user_id"`
	Email         string          `json:"email"`
	Role          models.UserRole `json:"role"`
	FranchiseCode *string         `json:"franchise_code"`
	ReferralCode  *string         `json:"referral_code"`
	AccessToken   string          `json:"access_token"`
	TokenType     string          `json:"token_type"`
}

func (s *testServer) register(email string, role models.UserRole, code string) session {
	s.t.Helper()
	var out session
	status := s.do(http.MethodPost, "/auth/register", "", map[string]any{
		"first_name": "Test", "email": email, "password": "secret1", "role": role, "referral_code": code,
	}, &out)
	require.Equal(s.t, http.StatusCreated, status)
	return out
}

type userView struct {
	ID            uint            `json:"id"`
	Email         string          `json:"email"`
	Role          models.UserRole `json:"role"`
	FranchiseCode *string         `json:"franchise_code"`
}

type errorBody struct {
	Error string `json:"error"`
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)
	var out map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)
	s.register("a@x.com", "", "")

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "account_registrations_total")
}

func TestReferralScenario(t *testing.T) {
	s := setupTestServer(t)

	a := s.register("a@x.com", models.RoleFranchise, "")
	assert.Equal(t, models.RoleFranchise, a.Role)
	assert.Equal(t, "bearer", a.TokenType)
	require.NotNil(t, a.FranchiseCode)

	b := s.register("b@x.com", "", *a.FranchiseCode)
	require.NotNil(t, b.ReferralCode)
	s.register("c@x.com", "", "")

	var users []userView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/admin/users", a.AccessToken, nil, &users))
	require.Len(t, users, 1)
	assert.Equal(t, b.UserID, users[0].ID)

	var errOut errorBody
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/admin/users", b.AccessToken, nil, &errOut))
	assert.NotEmpty(t, errOut.Error)
}

func TestRegisterWithUnknownCode(t *testing.T) {
	s := setupTestServer(t)

	var errOut errorBody
	status := s.do(http.MethodPost, "/auth/register", "", map[string]any{
		"first_name": "B", "email": "b@x.com", "password": "secret1", "referral_code": "NOPE1234",
	}, &errOut)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid referral code", errOut.Error)

	var n int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFranchiseByEmailLifecycle(t *testing.T) {
	s := setupTestServer(t)
	root := s.register(rootEmail, models.RoleUser, "")
	require.Equal(t, models.RoleSuperAdmin, root.Role)

	var created struct {
		ID                uint   `json:"id"`
		UserID            uint   `json:"user_id"`
		ReferralCode      string `json:"referral_code"`
		Email             string `json:"email"`
		TemporaryPassword string `json:"temporary_password"`
	}
	status := s.do(http.MethodPost, "/admin/franchises", root.AccessToken, map[string]any{"email": "new@x.com"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "new@x.com", created.Email)
	assert.NotEmpty(t, created.TemporaryPassword)
	assert.NotEqual(t, "secret1", created.TemporaryPassword)

	var owner userView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/admin/users/%d", created.UserID), root.AccessToken, nil, &owner))
	assert.Equal(t, models.RoleFranchise, owner.Role)

	// the temporary password works
	var login session
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "new@x.com", "password": created.TemporaryPassword,
	}, &login))
	assert.Equal(t, created.UserID, login.UserID)

	path := fmt.Sprintf("/admin/franchises/%d", created.ID)
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, root.AccessToken, nil, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/admin/users/%d", created.UserID), root.AccessToken, nil, &owner))
	assert.Equal(t, models.RoleUser, owner.Role)
	assert.Nil(t, owner.FranchiseCode)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, root.AccessToken, nil, nil))

	var logs []audit.AuditLogResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/admin/audit-logs?entity_type=franchise", root.AccessToken, nil, &logs))
	assert.Len(t, logs, 2)
}

func TestSuperAdminAllowlist(t *testing.T) {
	s := setupTestServer(t)
	root := s.register("ROOT@taxingsolutions.com", models.RoleFranchise, "")
	assert.Equal(t, models.RoleSuperAdmin, root.Role)
	assert.Nil(t, root.FranchiseCode)

	other := s.register("other@x.com", "", "")
	var promoted struct {
		User userView `json:"user"`
	}
	status := s.do(http.MethodPut, fmt.Sprintf("/admin/users/%d/role", other.UserID), root.AccessToken,
		map[string]any{"role": "admin"}, &promoted)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.RoleAdmin, promoted.User.Role)

	var promotedRoot session
	require.NoError(t, s.db.Model(&models.User{}).Where("id = ?", other.UserID).Update("role", models.RoleSuperAdmin).Error)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "other@x.com", "password": "secret1",
	}, &promotedRoot))

	status = s.do(http.MethodPut, fmt.Sprintf("/admin/users/%d/role", root.UserID), promotedRoot.AccessToken,
		map[string]any{"role": "user"}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = s.do(http.MethodPut, fmt.Sprintf("/admin/users/%d/role", other.UserID), root.AccessToken,
		map[string]any{"role": "super_admin"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoleChangeRequiresSuperAdmin(t *testing.T) {
	s := setupTestServer(t)
	a := s.register("a@x.com", models.RoleFranchise, "")
	b := s.register("b@x.com", "", *a.FranchiseCode)

	status := s.do(http.MethodPut, fmt.Sprintf("/admin/users/%d/role", b.UserID), a.AccessToken,
		map[string]any{"role": "franchise"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAuthentication(t *testing.T) {
	s := setupTestServer(t)
	s.register("a@x.com", "", "")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/me", "garbage", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "a@x.com", "password": "wrong-password",
	}, nil))
}

func TestProfile(t *testing.T) {
	s := setupTestServer(t)
	a := s.register("a@x.com", "", "")
	s.register("b@x.com", "", "")

	var me userView
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/me", a.AccessToken, nil, &me))
	assert.Equal(t, "a@x.com", me.Email)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/users/me", a.AccessToken, map[string]any{"email": "a2@x.com"}, &me))
	assert.Equal(t, "a2@x.com", me.Email)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPut, "/users/me", a.AccessToken, map[string]any{"email": "b@x.com"}, nil))
}

func TestExportUsers(t *testing.T) {
	s := setupTestServer(t)
	a := s.register("a@x.com", models.RoleFranchise, "")
	s.register("b@x.com", "", *a.FranchiseCode)
	s.register("c@x.com", "", "")

	req := httptest.NewRequest(http.MethodGet, "/admin/export/users", nil)
	req.Header.Set("Authorization", "Bearer "+a.AccessToken)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "b@x.com", records[1][3])
}

func TestEnquiriesScopedByFranchise(t *testing.T) {
	s := setupTestServer(t)
	root := s.register(rootEmail, "", "")
	a := s.register("a@x.com", models.RoleFranchise, "")

	enquiry := func(code string) {
		body := map[string]any{"firstName": "Eve", "email": "eve@x.com", "message": "hello"}
		if code != "" {
			body["franchiseCode"] = code
		}
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/enquiries", "", body, nil))
	}
	enquiry(*a.FranchiseCode)
	enquiry("OTHER123")
	enquiry("")

	var mine []models.Enquiry
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/enquiries", a.AccessToken, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, *a.FranchiseCode, *mine[0].FranchiseCode)

	var all []models.Enquiry
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/enquiries", root.AccessToken, nil, &all))
	assert.Len(t, all, 3)

	var other models.Enquiry
	for _, e := range all {
		if e.FranchiseCode == nil {
			other = e
		}
	}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, fmt.Sprintf("/enquiries/%d", other.ID), a.AccessToken, nil, nil))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/enquiries", "", map[string]any{"firstName": "Eve", "email": "eve@x.com"}, nil))
}

func TestContacts(t *testing.T) {
	s := setupTestServer(t)
	root := s.register(rootEmail, "", "")
	user := s.register("u@x.com", "", "")

	var created struct {
		ID uint `json:"id"`
	}
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/contact", "", map[string]any{
		"name": "Eve", "email": "eve@x.com", "message": "hi",
	}, &created))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/contact", "", map[string]any{
		"name": "Eve", "email": "not-an-email", "message": "hi",
	}, nil))

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/contact", user.AccessToken, nil, nil))

	path := fmt.Sprintf("/contact/%d", created.ID)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, root.AccessToken, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, root.AccessToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, root.AccessToken, nil, nil))
}

func TestNewsletter(t *testing.T) {
	s := setupTestServer(t)
	root := s.register(rootEmail, "", "")

	var sub models.NewsletterSubscription
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/newsletter/subscribe", "", map[string]any{"email": "n@x.com"}, &sub))
	assert.Equal(t, models.StatusSubscribed, sub.Status)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/newsletter/unsubscribe", "", map[string]any{"email": "n@x.com"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/newsletter/unsubscribe", "", map[string]any{"email": "x@x.com"}, nil))

	var again models.NewsletterSubscription
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/newsletter/subscribe", "", map[string]any{"email": "N@x.com"}, &again))
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, models.StatusSubscribed, again.Status)

	var list []models.NewsletterSubscription
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/newsletter", root.AccessToken, nil, &list))
	assert.Len(t, list, 1)
}

func TestUnknownRoute(t *testing.T) {
	s := setupTestServer(t)
	var errOut errorBody
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/nope", "", nil, &errOut))
	assert.NotEmpty(t, errOut.Error)
}
