package models

import "time"

// Invitation represents an invitation sent to a prospective school user.
// Only the SHA-256 hash of the invite token is stored.
type Invitation struct {
	BaseModel

	SchoolID   string     `gorm:"size:16;not null;index" json:"school_id"`
	Email      string     `gorm:"not null;index" json:"email"`
	Role       Role       `gorm:"size:32;not null" json:"role"`
	TokenHash  string     `gorm:"not null" json:"-"`
	InvitedBy  string     `gorm:"size:36" json:"invited_by"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`

	School *School `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
}

// Expired reports whether the invitation can no longer be accepted.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
