package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Student is a pupil record owned by a school. Students do not log in;
// parents and teachers reach them through the ownership guard.
type Student struct {
	BaseModel

	SchoolID    string `gorm:"size:16;not null;index" json:"school_id"`
	AdmissionNo string `gorm:"size:16;uniqueIndex" json:"admission_no"`
	FirstName   string `gorm:"not null" json:"first_name"`
	LastName    string `gorm:"not null" json:"last_name"`
	ClassName   string `json:"class_name"`

	// ParentID links the guardian account permitted to view this record.
	ParentID *string `gorm:"size:36;index" json:"parent_id,omitempty"`
	// TeacherID links the homeroom teacher responsible for this record.
	TeacherID *string `gorm:"size:36;index" json:"teacher_id,omitempty"`

	School  *School `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	Parent  *User   `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Teacher *User   `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
}

// GuardedBy reports whether the subject is this student's linked parent or
// homeroom teacher.
func (s *Student) GuardedBy(subjectID string) bool {
	if subjectID == "" {
		return false
	}
	if s.ParentID != nil && *s.ParentID == subjectID {
		return true
	}
	return s.TeacherID != nil && *s.TeacherID == subjectID
}

// BeforeCreate assigns an admission number when none was provided.
func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.AdmissionNo != "" {
		return nil
	}

	var count int64
	if err := tx.Model(&Student{}).Count(&count).Error; err != nil {
		return err
	}
	s.AdmissionNo = fmt.Sprintf("STU%05d", count+1)
	return nil
}
