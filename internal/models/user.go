package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a school-scoped account. The platform operator is configured, not
// stored, so every row here carries a school id and a tenant role.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	SchoolID string `gorm:"size:16;not null;index;uniqueIndex:idx_school_email" json:"school_id"`
	Email    string `gorm:"not null;uniqueIndex:idx_school_email" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Role     Role `gorm:"size:32;not null" json:"role"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	School *School `gorm:"foreignKey:SchoolID" json:"school,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// DisplayName returns the user's full name, falling back to the email address.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Locked reports whether the account is under a temporary lockout.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
