package models

import "time"

// Enquiry is a service request from the public site. FranchiseCode records provenance only and is not
// checked against existing franchises.
type Enquiry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	FirstName     string    `gorm:"size:100;not null" json:"firstName"`
	LastName      string    `gorm:"size:100" json:"lastName"`
	Email         string    `gorm:"size:255;not null" json:"email"`
	Phone         string    `gorm:"size:50" json:"phone"`
	Company       string    `gorm:"size:255" json:"company"`
	JobTitle      string    `gorm:"size:100" json:"jobTitle"`
	ServiceType   string    `gorm:"size:100" json:"serviceType"`
	Budget        string    `gorm:"size:100" json:"budget"`
	Timeline      string    `gorm:"size:100" json:"timeline"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	HowDidYouHear string    `gorm:"size:255" json:"howDidYouHear"`
	FranchiseCode *string   `gorm:"size:8;index" json:"franchiseCode"`
	CreatedAt     time.Time `json:"created_at"`
}
