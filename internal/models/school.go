package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// School is the tenant entity. Its identifier doubles as the tenant id
// carried in token claims and session records, using the human-readable
// "SCH0001" form rather than a UUID.
type School struct {
	ID        string         `gorm:"primaryKey;size:16" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Address   string         `json:"address"`
	Phone     string         `json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	Settings  datatypes.JSON `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Users    []User    `gorm:"foreignKey:SchoolID" json:"users,omitempty"`
	Students []Student `gorm:"foreignKey:SchoolID" json:"students,omitempty"`
}

// BeforeCreate assigns the next sequential school id when none is provided.
func (s *School) BeforeCreate(tx *gorm.DB) error {
	if s.ID != "" {
		return nil
	}

	var count int64
	if err := tx.Model(&School{}).Count(&count).Error; err != nil {
		return err
	}

	s.ID = fmt.Sprintf("SCH%04d", count+1)
	return nil
}
