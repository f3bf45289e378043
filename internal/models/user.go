package models

import "time"

type UserRole string

const (
	RoleUser       UserRole = "user"
	RoleFranchise  UserRole = "franchise"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleFranchise, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AdminTier reports whether the role may use the admin surface.
func (r UserRole) AdminTier() bool {
	return r == RoleAdmin || r == RoleFranchise || r == RoleSuperAdmin
}

type User struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	FirstName    string   `gorm:"size:100;not null" json:"first_name"`
	LastName     string   `gorm:"size:100" json:"last_name"`
	Email        string   `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Company      string   `gorm:"size:255" json:"company"`
	Phone        string   `gorm:"size:50" json:"phone"`
	PasswordHash string   `gorm:"size:255;not null" json:"-"`
	Role         UserRole `gorm:"size:20;not null;default:user;index" json:"role"`

	// FranchiseCode is the code of the franchise this user owns. Set iff Role is franchise.
	FranchiseCode *string `gorm:"size:8" json:"franchise_code"`
	// ReferralCode is the franchise code this user signed up or logged in with.
	ReferralCode *string `gorm:"size:8;index" json:"referral_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is "First Last", falling back to the email local part.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name != "" {
		return name
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
