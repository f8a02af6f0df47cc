package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records an authenticated action. SchoolID is the tenant whose data
// was touched, which for operator traffic may differ from the actor's own
// scope; CrossTenant marks exactly those rows.
type AuditLog struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
	// SubjectID is free-form rather than a uuid column because the platform
	// operator's configured subject id is not a uuid.
	SubjectID   *string        `gorm:"size:64;index" json:"subject_id"`
	Email       string         `json:"email"`
	Role        Role           `gorm:"size:32" json:"role"`
	SchoolID    string         `gorm:"size:16;index" json:"school_id"`
	CrossTenant bool           `gorm:"default:false;index" json:"cross_tenant"`
	Action      string         `gorm:"not null;index" json:"action"`
	Resource    string         `gorm:"index" json:"resource"`
	Result      string         `gorm:"not null" json:"result"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
