// Package account implements registration, login and self-service profile updates.
package account

import (
	"context"
	"errors"
	"strings"

	"taxingsolutions-backend/internal/access"
	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/auth"
	"taxingsolutions-backend/internal/database"
	"taxingsolutions-backend/internal/franchise"
	"taxingsolutions-backend/internal/metrics"
	"taxingsolutions-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	registry  *franchise.Registry
	authority *access.Authority
	hasher    *auth.Hasher
	tokens    *auth.TokenIssuer
	log       *zap.Logger
}

func NewService(db *gorm.DB, registry *franchise.Registry, authority *access.Authority, hasher *auth.Hasher, tokens *auth.TokenIssuer, log *zap.Logger) *Service {
	return &Service{db: db, registry: registry, authority: authority, hasher: hasher, tokens: tokens, log: log}
}

type RegisterInput struct {
	FirstName    string
	LastName     string
	Email        string
	Company      string
	Phone        string
	Password     string
	Role         models.UserRole
	ReferralCode string
}

type LoginInput struct {
	Email        string
	Password     string
	ReferralCode string
}

// Session is a user together with a freshly issued bearer token.
type Session struct {
	User  *models.User
	Token string
}

// Register creates the account and, for role franchise, its franchise. A referral code that does not
// resolve fails before any row is written.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	if in.FirstName == "" {
		return nil, apperr.Validation("first name is required")
	}
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("password must be at least 6 characters")
	}
	role, err := s.authority.RegistrationRole(email, in.Role)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.ReferralCode)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperr.Internal("failed to check email", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("email already registered")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	var user *models.User
	err = s.registry.Update(ctx, func(tx *franchise.Tx) error {
		var referral *string
		if code != "" {
			f, err := tx.LookupByCode(code)
			if err != nil {
				return err
			}
			if f == nil {
				return apperr.Validation("invalid referral code")
			}
			referral = &f.ReferralCode
		}

		user = &models.User{
			FirstName:    in.FirstName,
			LastName:     strings.TrimSpace(in.LastName),
			Email:        email,
			Company:      strings.TrimSpace(in.Company),
			Phone:        strings.TrimSpace(in.Phone),
			PasswordHash: hash,
			ReferralCode: referral,
		}
		_, err := tx.CreateUser(user, role, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.Registrations.WithLabelValues(string(user.Role)).Inc()
	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.session(user)
}

// Login verifies the credentials. A supplied referral code must resolve and is then stored on the user.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.Logins.WithLabelValues("unknown_email").Inc()
			return nil, apperr.Unauthenticated("invalid credentials")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		metrics.Logins.WithLabelValues("bad_password").Inc()
		return nil, apperr.Unauthenticated("invalid credentials")
	}

	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		err := s.registry.Update(ctx, func(tx *franchise.Tx) error {
			f, err := tx.LookupByCode(code)
			if err != nil {
				return err
			}
			if f == nil {
				return apperr.Validation("invalid referral code")
			}
			if err := tx.DB().Model(&models.User{}).Where("id = ?", user.ID).
				Update("referral_code", f.ReferralCode).Error; err != nil {
				return apperr.Internal("failed to store referral code", err)
			}
			user.ReferralCode = &f.ReferralCode
			return nil
		})
		if err != nil {
			metrics.Logins.WithLabelValues("bad_referral").Inc()
			return nil, err
		}
	}

	metrics.Logins.WithLabelValues("success").Inc()
	return s.session(&user)
}

// ProfileUpdate holds the fields a user may change on their own account. Nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Company   *string
	Phone     *string
}

func (s *Service) UpdateProfile(ctx context.Context, user *models.User, upd ProfileUpdate) (*models.User, error) {
	if user == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}

	updates := map[string]any{}
	if upd.FirstName != nil {
		name := strings.TrimSpace(*upd.FirstName)
		if name == "" {
			return nil, apperr.Validation("first name cannot be empty")
		}
		updates["first_name"] = name
	}
	if upd.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*upd.LastName)
	}
	if upd.Company != nil {
		updates["company"] = strings.TrimSpace(*upd.Company)
	}
	if upd.Phone != nil {
		updates["phone"] = strings.TrimSpace(*upd.Phone)
	}
	if upd.Email != nil {
		email, err := auth.NormalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email && (s.authority.IsSuperAdminEmail(user.Email) || s.authority.IsSuperAdminEmail(email)) {
			return nil, apperr.Forbidden("super admin email cannot be changed")
		}
		updates["email"] = email
	}

	db := s.db.WithContext(ctx)
	if len(updates) > 0 {
		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			if database.DuplicateOn(err, "email") {
				return nil, apperr.Conflict("email already registered")
			}
			return nil, apperr.Internal("failed to update profile", err)
		}
	}

	var fresh models.User
	if err := db.First(&fresh, user.ID).Error; err != nil {
		return nil, apperr.Internal("failed to reload profile", err)
	}
	return &fresh, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	return &Session{User: user, Token: token}, nil
}
