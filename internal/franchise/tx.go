package franchise

import (
	"context"
	"errors"
	"strings"

	"taxingsolutions-backend/internal/apperr"
	"taxingsolutions-backend/internal/database"
	"taxingsolutions-backend/internal/models"
	"taxingsolutions-backend/internal/referral"

	"gorm.io/gorm"
)

// Tx is a unit of work inside Registry.Update.
type Tx struct {
	ctx   context.Context
	db    *gorm.DB
	codes *referral.Generator

	created int
	deleted int
}

// DB is the transaction handle for writes that do not touch roles or franchises.
func (t *Tx) DB() *gorm.DB { return t.db }

func (t *Tx) LookupByCode(code string) (*models.Franchise, error) {
	return lookup(t.db, "referral_code = ?", code)
}

func (t *Tx) LookupByUser(userID uint) (*models.Franchise, error) {
	return lookup(t.db, "user_id = ?", userID)
}

// CreateUser inserts user with role. For role franchise the franchise row is created too, named franchiseName
// or the user's display name.
func (t *Tx) CreateUser(user *models.User, role models.UserRole, franchiseName string) (*models.Franchise, error) {
	if !role.Valid() {
		return nil, apperr.Validation("invalid role")
	}

	user.ID = 0
	user.FranchiseCode = nil
	user.Role = role
	if role == models.RoleFranchise {
		user.Role = models.RoleUser
	}

	if err := t.db.Create(user).Error; err != nil {
		if database.DuplicateOn(err, "email") {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal("failed to create user", err)
	}

	if role != models.RoleFranchise {
		return nil, nil
	}
	return t.Promote(user, franchiseName)
}

// CreateForEmail is the transactional half of Registry.CreateForEmail. passwordHash is used only when
// the account has to be created.
func (t *Tx) CreateForEmail(email string, name *string, passwordHash string) (*Created, error) {
	var user models.User
	err := t.db.Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		if user.Role == models.RoleFranchise {
			return nil, apperr.Conflict("user is already a franchise")
		}
		franchiseName := ""
		if name != nil {
			franchiseName = *name
		}
		f, err := t.Promote(&user, franchiseName)
		if err != nil {
			return nil, err
		}
		return &Created{Franchise: f, Owner: &user}, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		first, last := splitName(email, name)
		user = models.User{
			FirstName:    first,
			LastName:     last,
			Email:        email,
			PasswordHash: passwordHash,
		}
		franchiseName := ""
		if name != nil {
			franchiseName = *name
		}
		f, err := t.CreateUser(&user, models.RoleFranchise, franchiseName)
		if err != nil {
			return nil, err
		}
		return &Created{Franchise: f, Owner: &user, AccountCreated: true}, nil

	default:
		return nil, apperr.Internal("failed to look up user", err)
	}
}

// Promote gives user a franchise with a freshly drawn code.
func (t *Tx) Promote(user *models.User, name string) (*models.Franchise, error) {
	if err := t.ensureNoFranchise(user); err != nil {
		return nil, err
	}
	code, err := t.codes.Unique(t.ctx, t.codeTaken)
	if err != nil {
		return nil, apperr.Internal("failed to generate referral code", err)
	}
	if strings.TrimSpace(name) == "" {
		name = user.DisplayName()
	}
	return t.attach(user, strings.TrimSpace(name), code)
}

// SetRole moves user to role, creating or removing its franchise as the transition requires.
// It returns the franchise created by a promotion, if any.
func (t *Tx) SetRole(user *models.User, role models.UserRole) (*models.Franchise, error) {
	if !role.Valid() {
		return nil, apperr.Validation("invalid role")
	}
	if user.Role == role {
		return nil, nil
	}
	if role == models.RoleFranchise {
		return t.Promote(user, user.DisplayName())
	}

	if user.Role == models.RoleFranchise {
		if err := t.detach(user); err != nil {
			return nil, err
		}
	}
	if err := t.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"role": role, "franchise_code": nil}).Error; err != nil {
		return nil, apperr.Internal("failed to update role", err)
	}
	user.Role = role
	user.FranchiseCode = nil
	return nil, nil
}

// DeleteFranchise removes a franchise and resets its owner to role user. It returns nil when the franchise
// does not exist, leaving everything untouched.
func (t *Tx) DeleteFranchise(id uint) (*models.Franchise, error) {
	f, err := lookup(t.db, "id = ?", id)
	if err != nil || f == nil {
		return nil, err
	}

	res := t.db.Delete(&models.Franchise{}, f.ID)
	if res.Error != nil {
		return nil, apperr.Internal("failed to delete franchise", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	if err := t.db.Model(&models.User{}).Where("id = ?", f.UserID).
		Updates(map[string]any{"role": models.RoleUser, "franchise_code": nil}).Error; err != nil {
		return nil, apperr.Internal("failed to reset franchise owner", err)
	}
	t.deleted++
	return f, nil
}

// DeleteUser removes user together with any franchise it owns.
func (t *Tx) DeleteUser(user *models.User) error {
	if user.Role == models.RoleFranchise {
		if err := t.detach(user); err != nil {
			return err
		}
	}
	res := t.db.Delete(&models.User{}, user.ID)
	if res.Error != nil {
		return apperr.Internal("failed to delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (t *Tx) user(id uint) (*models.User, error) {
	var user models.User
	if err := t.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return &user, nil
}

func (t *Tx) ensureNoFranchise(user *models.User) error {
	if user.Role == models.RoleFranchise {
		return apperr.Conflict("user is already a franchise")
	}
	existing, err := t.LookupByUser(user.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("user already owns a franchise")
	}
	return nil
}

func (t *Tx) codeTaken(_ context.Context, code string) (bool, error) {
	var n int64
	if err := t.db.Model(&models.Franchise{}).Where("referral_code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// attach inserts the franchise row and mirrors it on the owner.
func (t *Tx) attach(user *models.User, name, code string) (*models.Franchise, error) {
	f := &models.Franchise{UserID: user.ID, Name: name, ReferralCode: code}
	if err := t.db.Create(f).Error; err != nil {
		switch {
		case database.DuplicateOn(err, "referral_code"):
			return nil, errCodeCollision
		case database.DuplicateOn(err, "user_id"):
			return nil, apperr.Conflict("user already owns a franchise")
		default:
			return nil, apperr.Internal("failed to create franchise", err)
		}
	}

	if err := t.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"role": models.RoleFranchise, "franchise_code": code}).Error; err != nil {
		return nil, apperr.Internal("failed to mark user as franchise", err)
	}
	user.Role = models.RoleFranchise
	user.FranchiseCode = &f.ReferralCode
	t.created++
	return f, nil
}

// detach removes the franchise row owned by user.
func (t *Tx) detach(user *models.User) error {
	res := t.db.Where("user_id = ?", user.ID).Delete(&models.Franchise{})
	if res.Error != nil {
		return apperr.Internal("failed to remove franchise", res.Error)
	}
	t.deleted += int(res.RowsAffected)
	return nil
}

// splitName derives owner names: "First Rest" from an explicit name, otherwise the email local part.
func splitName(email string, name *string) (string, string) {
	if name != nil && strings.TrimSpace(*name) != "" {
		parts := strings.SplitN(strings.TrimSpace(*name), " ", 2)
		if len(parts) == 2 {
			return parts[0], strings.TrimSpace(parts[1])
		}
		return parts[0], ""
	}
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i], ""
	}
	return email, ""
}
