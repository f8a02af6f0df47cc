package database

import (
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
)

// AutoMigrate brings the schema up to date for every registered model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.School{},
		&models.User{},
		&models.Student{},
		&models.Invitation{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.CacheSetMember{},
	)
}

// DemoSchoolID is the fixed tenant id seeded for development and test
// databases. Production deployments create schools through the platform API
// and never call SeedData.
const DemoSchoolID = "SCH0001"

// SeedData inserts the demo school used by local development and the test
// suite. The insert is idempotent; an existing row is left untouched.
func SeedData(db *gorm.DB) error {
	demo := models.School{
		ID:       DemoSchoolID,
		Name:     "Evergreen Elementary",
		Address:  "12 Orchard Lane",
		Phone:    "+1-555-0100",
		IsActive: true,
	}

	return db.Where(models.School{ID: demo.ID}).
		Attrs(demo).
		FirstOrCreate(&models.School{}).Error
}
