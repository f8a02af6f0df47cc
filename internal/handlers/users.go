package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// UserHandler manages school accounts. Every operation runs against one
// school: the caller's own, or the one the operator named in the request.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(db *gorm.DB, registry *auth.SessionRegistry) (*UserHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewUserService(db, registry, audit)
	if err != nil {
		return nil, err
	}
	return &UserHandler{users: svc}, nil
}

type createUserRequest struct {
	SchoolID  string `json:"school_id" validate:"omitempty,max=16"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=128"`
	LastName  string `json:"last_name" validate:"omitempty,max=128"`
	Role      string `json:"role" validate:"required"`
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=128"`
	LastName  *string `json:"last_name" validate:"omitempty,max=128"`
	Role      *string `json:"role" validate:"omitempty"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	schoolID := effectiveSchoolID(c, identity, body.SchoolID)
	if schoolID == "" {
		response.Error(c, appErrors.NewBadRequest("school_id is required"))
		return
	}

	role, err := models.ParseRole(body.Role)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("role must be one of tenant-admin, teacher, parent"))
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		SchoolID:  schoolID,
		Email:     body.Email,
		Password:  body.Password,
		FirstName: strings.TrimSpace(body.FirstName),
		LastName:  strings.TrimSpace(body.LastName),
		Role:      role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	if schoolID == "" {
		response.Error(c, appErrors.NewBadRequest("school_id is required"))
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	filters := services.UserFilters{Query: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("unknown role filter"))
			return
		}
		filters.Role = role
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}

	users, total, err := h.users.List(requestContext(c), schoolID, services.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, response.NewMeta(page, perPage, total))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	// Teachers and parents only ever read their own account; there is no
	// delegation rule for user records.
	if decision, ok := middleware.Ownership(c); ok && decision.Delegated {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	user, err := h.users.GetByID(requestContext(c), schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// PATCH /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if body.Email == nil && body.FirstName == nil && body.LastName == nil && body.Role == nil {
		response.Error(c, appErrors.NewBadRequest("no fields provided for update"))
		return
	}

	input := services.UpdateUserInput{
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	}
	if body.Role != nil {
		role, err := models.ParseRole(*body.Role)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("role must be one of tenant-admin, teacher, parent"))
			return
		}
		input.Role = &role
	}

	schoolID := effectiveSchoolID(c, identity, "")
	user, err := h.users.Update(requestContext(c), schoolID, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// POST /api/users/:id/deactivate
//
// Deactivation takes effect immediately: every live session for the subject
// is revoked, not just future logins.
func (h *UserHandler) Deactivate(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	if err := h.users.SetActive(requestContext(c), schoolID, c.Param("id"), false); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

// POST /api/users/:id/password
//
// Administrative reset; self-service changes go through the auth handler,
// which verifies the current password first.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body resetPasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	if err := h.users.ResetPassword(requestContext(c), schoolID, c.Param("id"), body.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}
