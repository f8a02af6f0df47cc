package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
	apperrors "github.com/classpad/classpad/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist in the school.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// CreateUserInput describes the fields accepted when creating a school user.
type CreateUserInput struct {
	SchoolID  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
	IsActive  *bool
}

// UpdateUserInput lists the attributes Update may change.
type UpdateUserInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *models.Role
}

// UserFilters narrows List results.
type UserFilters struct {
	Role     models.Role
	IsActive *bool
	Query    string
}

// ListUsersOptions carries filters and pagination for List.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages CRUD lifecycle for school accounts. Every operation is
// scoped to a single school; the platform operator is configured, not stored,
// and never passes through here.
type UserService struct {
	db       *gorm.DB
	registry *auth.SessionRegistry
	audit    *AuditService
}

// NewUserService constructs a UserService instance. The session registry may
// be nil when the deployment runs token-only.
func NewUserService(db *gorm.DB, registry *auth.SessionRegistry, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:       db,
		registry: registry,
		audit:    audit,
	}, nil
}

// Create stores a new user, hashing the supplied password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	schoolID := strings.TrimSpace(input.SchoolID)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if schoolID == "" {
		return nil, apperrors.NewBadRequest("school id is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}
	if !input.Role.TenantScoped() {
		return nil, apperrors.NewBadRequest("role must be one of the school roles")
	}

	var school models.School
	err := s.db.WithContext(ctx).Take(&school, "id = ?", schoolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: query school: %w", err)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		SchoolID:  schoolID,
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      input.Role,
		IsActive:  true,
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("a user with this email already exists in this school")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   "user.create",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{
			"email": user.Email,
			"role":  user.Role.String(),
		},
	})

	return user, nil
}

// GetByID loads a user within the given school.
func (s *UserService) GetByID(ctx context.Context, schoolID, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users of one school matching the supplied filters.
func (s *UserService) List(ctx context.Context, schoolID string, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("school_id = ?", schoolID)
	if opts.Filters.Role != "" {
		query = query.Where("role = ?", opts.Filters.Role)
	}
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update applies the populated fields of input to an existing user.
func (s *UserService) Update(ctx context.Context, schoolID, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if input.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*input.Email)); email != "" && email != user.Email {
			updates["email"] = email
		}
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Role != nil {
		if !input.Role.TenantScoped() {
			return nil, apperrors.NewBadRequest("role must be one of the school roles")
		}
		if *input.Role != user.Role {
			updates["role"] = input.Role.String()
		}
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("a user with this email already exists in this school")
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	if err := s.db.WithContext(ctx).First(user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("user service: reload user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   "user.update",
		Resource: user.ID,
		Result:   "success",
		Metadata: updates,
	})

	return user, nil
}

// SetActive toggles the active state of an account. Deactivation revokes
// every live session for the subject so the change takes effect immediately
// rather than at access-token expiry.
func (s *UserService) SetActive(ctx context.Context, schoolID, id string, active bool) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, schoolID, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("user service: update active state: %w", err)
	}

	action := "user.activate"
	revoked := 0
	if !active {
		action = "user.deactivate"
		if s.registry != nil {
			revoked = s.registry.RevokeAll(ctx, user.ID)
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   action,
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"sessions_revoked": revoked},
	})

	return nil
}

// ResetPassword hashes and replaces the user's password without requiring the
// current one. Self-service changes go through the credential verifier, which
// does.
func (s *UserService) ResetPassword(ctx context.Context, schoolID, id, newPassword string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash new password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("school_id = ? AND id = ?", schoolID, id).
		Update("password", hashed)

	if result.Error != nil {
		return fmt.Errorf("user service: reset password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   "user.password_reset",
		Resource: id,
		Result:   "success",
	})

	return nil
}
