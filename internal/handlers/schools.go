package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/services"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// SchoolHandler manages the tenant lifecycle. Creation, listing, and
// deactivation are operator-only at the route layer; get and update are
// shared with the school's own admin.
type SchoolHandler struct {
	schools *services.SchoolService
}

func NewSchoolHandler(db *gorm.DB) (*SchoolHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewSchoolService(db, audit)
	if err != nil {
		return nil, err
	}
	return &SchoolHandler{schools: svc}, nil
}

type createSchoolRequest struct {
	Name     string         `json:"name" validate:"required,min=3,max=128"`
	Address  string         `json:"address" validate:"omitempty,max=256"`
	Phone    string         `json:"phone" validate:"omitempty,max=32"`
	Settings map[string]any `json:"settings"`
}

type updateSchoolRequest struct {
	Name     *string         `json:"name" validate:"omitempty,min=3,max=128"`
	Address  *string         `json:"address" validate:"omitempty,max=256"`
	Phone    *string         `json:"phone" validate:"omitempty,max=32"`
	Settings *map[string]any `json:"settings"`
}

// POST /api/schools
func (h *SchoolHandler) Create(c *gin.Context) {
	var body createSchoolRequest
	if !bindAndValidate(c, &body) {
		return
	}

	school, err := h.schools.Create(requestContext(c), services.CreateSchoolInput{
		Name:     strings.TrimSpace(body.Name),
		Address:  strings.TrimSpace(body.Address),
		Phone:    strings.TrimSpace(body.Phone),
		Settings: body.Settings,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, school)
}

// GET /api/schools
func (h *SchoolHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	filters := services.SchoolFilters{Query: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}

	schools, total, err := h.schools.List(requestContext(c), services.ListSchoolsOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, schools, response.NewMeta(page, perPage, total))
}

// GET /api/schools/:schoolID
func (h *SchoolHandler) Get(c *gin.Context) {
	school, err := h.schools.GetByID(requestContext(c), c.Param("schoolID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, school)
}

// PATCH /api/schools/:schoolID
func (h *SchoolHandler) Update(c *gin.Context) {
	var body updateSchoolRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if body.Name == nil && body.Address == nil && body.Phone == nil && body.Settings == nil {
		response.Error(c, appErrors.NewBadRequest("no fields provided for update"))
		return
	}

	input := services.UpdateSchoolInput{}
	if body.Name != nil {
		trimmed := strings.TrimSpace(*body.Name)
		if trimmed == "" {
			response.Error(c, appErrors.NewBadRequest("name must not be empty"))
			return
		}
		input.Name = &trimmed
	}
	if body.Address != nil {
		trimmed := strings.TrimSpace(*body.Address)
		input.Address = &trimmed
	}
	if body.Phone != nil {
		trimmed := strings.TrimSpace(*body.Phone)
		input.Phone = &trimmed
	}
	if body.Settings != nil {
		input.Settings = *body.Settings
	}

	school, err := h.schools.Update(requestContext(c), c.Param("schoolID"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, school)
}

// DELETE /api/schools/:schoolID
//
// Schools are deactivated, never hard-deleted: the rows anchor audit history
// and every user row in the tenant.
func (h *SchoolHandler) Deactivate(c *gin.Context) {
	if err := h.schools.SetActive(requestContext(c), c.Param("schoolID"), false); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
