package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
	apperrors "github.com/classpad/classpad/pkg/errors"
)

// ErrStudentNotFound indicates the requested student does not exist in the school.
var ErrStudentNotFound = apperrors.New("STUDENT_NOT_FOUND", "Student not found", http.StatusNotFound)

// CreateStudentInput captures the attributes required to enrol a student.
type CreateStudentInput struct {
	SchoolID  string
	FirstName string
	LastName  string
	ClassName string
	ParentID  *string
	TeacherID *string
}

// StudentFilters captures listing filters.
type StudentFilters struct {
	ClassName string
	Query     string
}

// ListStudentsOptions controls pagination for student listing.
type ListStudentsOptions struct {
	Page     int
	PageSize int
	Filters  StudentFilters
}

// StudentService manages pupil records. Students never authenticate; parents
// and teachers reach them through the ownership guard, whose delegated
// decisions resolve here against the stored guardian links.
type StudentService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(db *gorm.DB, audit *AuditService) (*StudentService, error) {
	if db == nil {
		return nil, errors.New("student service: db is required")
	}
	return &StudentService{db: db, audit: audit}, nil
}

// Create enrols a student. Guardian links must point at accounts of the same
// school carrying the matching role.
func (s *StudentService) Create(ctx context.Context, input CreateStudentInput) (*models.Student, error) {
	ctx = ensureContext(ctx)

	schoolID := strings.TrimSpace(input.SchoolID)
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if schoolID == "" {
		return nil, apperrors.NewBadRequest("school id is required")
	}
	if firstName == "" || lastName == "" {
		return nil, apperrors.NewBadRequest("first and last name are required")
	}

	student := &models.Student{
		SchoolID:  schoolID,
		FirstName: firstName,
		LastName:  lastName,
		ClassName: strings.TrimSpace(input.ClassName),
	}

	if id := trimPtr(input.ParentID); id != nil {
		if err := s.checkGuardian(ctx, schoolID, *id, models.RoleParent); err != nil {
			return nil, err
		}
		student.ParentID = id
	}
	if id := trimPtr(input.TeacherID); id != nil {
		if err := s.checkGuardian(ctx, schoolID, *id, models.RoleTeacher); err != nil {
			return nil, err
		}
		student.TeacherID = id
	}

	if err := s.db.WithContext(ctx).Create(student).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("a student with this admission number already exists")
		}
		return nil, fmt.Errorf("student service: create student: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   "student.create",
		Resource: student.ID,
		Result:   "success",
		Metadata: map[string]any{
			"admission_no": student.AdmissionNo,
			"class_name":   student.ClassName,
		},
	})

	return student, nil
}

// GetByID loads a student within the given school.
func (s *StudentService) GetByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	ctx = ensureContext(ctx)

	var student models.Student
	err := s.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		First(&student, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("student service: get student: %w", err)
	}
	return &student, nil
}

// GetForGuardian loads a student only when the subject is its linked parent
// or teacher. The ownership guard defers teacher and parent reads to this
// record-level check instead of denying them outright.
func (s *StudentService) GetForGuardian(ctx context.Context, schoolID, id, subjectID string) (*models.Student, error) {
	student, err := s.GetByID(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	if !student.GuardedBy(subjectID) {
		return nil, apperrors.ErrForbidden.WithMessage("You are not linked to this student")
	}
	return student, nil
}

// List retrieves students of one school matching the supplied filters.
func (s *StudentService) List(ctx context.Context, schoolID string, opts ListStudentsOptions) ([]models.Student, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Student{}).Where("school_id = ?", schoolID)
	if class := strings.TrimSpace(opts.Filters.ClassName); class != "" {
		query = query.Where("class_name = ?", class)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR admission_no LIKE ?",
			pattern, pattern, "%"+strings.ToUpper(q)+"%",
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("student service: count students: %w", err)
	}

	var students []models.Student
	if err := query.
		Order("admission_no ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&students).Error; err != nil {
		return nil, 0, fmt.Errorf("student service: list students: %w", err)
	}

	return students, total, nil
}

// ListForGuardian retrieves only the students linked to the subject.
func (s *StudentService) ListForGuardian(ctx context.Context, schoolID, subjectID string) ([]models.Student, error) {
	ctx = ensureContext(ctx)

	var students []models.Student
	if err := s.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Where("parent_id = ? OR teacher_id = ?", subjectID, subjectID).
		Order("admission_no ASC").
		Find(&students).Error; err != nil {
		return nil, fmt.Errorf("student service: list guardian students: %w", err)
	}
	return students, nil
}

func (s *StudentService) checkGuardian(ctx context.Context, schoolID, userID string, role models.Role) error {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewBadRequest(fmt.Sprintf("%s account not found in this school", role))
	}
	if err != nil {
		return fmt.Errorf("student service: query guardian: %w", err)
	}
	if user.Role != role {
		return apperrors.NewBadRequest(fmt.Sprintf("linked account must hold the %s role", role))
	}
	return nil
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
