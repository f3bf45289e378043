package models

import "time"

type SubscriptionStatus string

const (
	StatusSubscribed   SubscriptionStatus = "subscribed"
	StatusUnsubscribed SubscriptionStatus = "unsubscribed"
)

type NewsletterSubscription struct {
	ID        uint               `gorm:"primaryKey" json:"id"`
	Email     string             `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Status    SubscriptionStatus `gorm:"size:20;not null;default:subscribed" json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
