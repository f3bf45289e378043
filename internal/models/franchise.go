package models

import "time"

const ReferralCodeLength = 8

type Franchise struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User         *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Name         string    `gorm:"size:255;not null" json:"franchise_name"`
	ReferralCode string    `gorm:"size:8;uniqueIndex;not null" json:"referral_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// FranchiseWithOwner is a franchise plus the minimal identity of its owner.
type FranchiseWithOwner struct {
	Franchise
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}
