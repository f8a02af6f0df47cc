package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
	apperrors "github.com/classpad/classpad/pkg/errors"
)

// ErrSchoolNotFound indicates the requested school does not exist.
var ErrSchoolNotFound = apperrors.New("SCHOOL_NOT_FOUND", "School not found", http.StatusNotFound)

// CreateSchoolInput captures the attributes required to register a school.
type CreateSchoolInput struct {
	Name     string
	Address  string
	Phone    string
	Settings map[string]any
}

// UpdateSchoolInput represents mutable school fields.
type UpdateSchoolInput struct {
	Name     *string
	Address  *string
	Phone    *string
	Settings map[string]any
}

// SchoolFilters captures listing filters.
type SchoolFilters struct {
	IsActive *bool
	Query    string
}

// ListSchoolsOptions controls pagination for school listing.
type ListSchoolsOptions struct {
	Page     int
	PageSize int
	Filters  SchoolFilters
}

// SchoolService manages the tenant lifecycle. School ids are generated
// sequentially on create and double as the tenant id in token claims.
type SchoolService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewSchoolService constructs a SchoolService instance.
func NewSchoolService(db *gorm.DB, audit *AuditService) (*SchoolService, error) {
	if db == nil {
		return nil, errors.New("school service: db is required")
	}
	return &SchoolService{db: db, audit: audit}, nil
}

// Create registers a new school.
func (s *SchoolService) Create(ctx context.Context, input CreateSchoolInput) (*models.School, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("school name is required")
	}

	school := &models.School{
		Name:     name,
		Address:  strings.TrimSpace(input.Address),
		Phone:    strings.TrimSpace(input.Phone),
		IsActive: true,
	}

	if input.Settings != nil {
		data, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, fmt.Errorf("school service: marshal settings: %w", err)
		}
		school.Settings = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(school).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("school already exists")
		}
		return nil, fmt.Errorf("school service: create school: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: school.ID,
		Action:   "school.create",
		Resource: school.ID,
		Result:   "success",
		Metadata: map[string]any{"name": name},
	})

	return school, nil
}

// GetByID loads a school by its tenant id.
func (s *SchoolService) GetByID(ctx context.Context, id string) (*models.School, error) {
	ctx = ensureContext(ctx)

	var school models.School
	err := s.db.WithContext(ctx).First(&school, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("school service: get school: %w", err)
	}
	return &school, nil
}

// List retrieves schools matching the supplied filters with pagination.
func (s *SchoolService) List(ctx context.Context, opts ListSchoolsOptions) ([]models.School, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.School{})
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("school service: count schools: %w", err)
	}

	var schools []models.School
	if err := query.
		Order("id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&schools).Error; err != nil {
		return nil, 0, fmt.Errorf("school service: list schools: %w", err)
	}

	return schools, total, nil
}

// Update modifies metadata for a school.
func (s *SchoolService) Update(ctx context.Context, id string, input UpdateSchoolInput) (*models.School, error) {
	ctx = ensureContext(ctx)

	var school models.School
	err := s.db.WithContext(ctx).First(&school, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("school service: load school: %w", err)
	}

	updates := map[string]any{}

	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" && name != school.Name {
			updates["name"] = name
		}
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Settings != nil {
		data, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, fmt.Errorf("school service: marshal settings: %w", err)
		}
		updates["settings"] = datatypes.JSON(data)
	}

	if len(updates) == 0 {
		return &school, nil
	}

	if err := s.db.WithContext(ctx).Model(&school).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("school service: update school: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&school, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("school service: reload school: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: school.ID,
		Action:   "school.update",
		Resource: school.ID,
		Result:   "success",
		Metadata: updates,
	})

	return &school, nil
}

// SetActive toggles a school's active state. Deactivating a school blocks
// fresh logins for its users but revokes no existing sessions; deactivating
// individual users does that.
func (s *SchoolService) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ensureContext(ctx)

	var school models.School
	err := s.db.WithContext(ctx).First(&school, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSchoolNotFound
	}
	if err != nil {
		return fmt.Errorf("school service: load school: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&school).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("school service: update active state: %w", err)
	}

	action := "school.activate"
	if !active {
		action = "school.deactivate"
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: school.ID,
		Action:   action,
		Resource: school.ID,
		Result:   "success",
	})

	return nil
}
