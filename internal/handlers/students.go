package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/services"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// StudentHandler manages pupil records. Reads by teachers and parents go
// through the delegated-ownership path: the guard marks the request and the
// handler resolves it against the stored guardian links.
type StudentHandler struct {
	students *services.StudentService
}

func NewStudentHandler(db *gorm.DB) (*StudentHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewStudentService(db, audit)
	if err != nil {
		return nil, err
	}
	return &StudentHandler{students: svc}, nil
}

type createStudentRequest struct {
	SchoolID  string  `json:"school_id" validate:"omitempty,max=16"`
	FirstName string  `json:"first_name" validate:"required,max=128"`
	LastName  string  `json:"last_name" validate:"required,max=128"`
	ClassName string  `json:"class_name" validate:"omitempty,max=64"`
	ParentID  *string `json:"parent_id" validate:"omitempty,uuid4"`
	TeacherID *string `json:"teacher_id" validate:"omitempty,uuid4"`
}

// POST /api/students
func (h *StudentHandler) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body createStudentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	schoolID := effectiveSchoolID(c, identity, body.SchoolID)
	if schoolID == "" {
		response.Error(c, appErrors.NewBadRequest("school_id is required"))
		return
	}

	student, err := h.students.Create(requestContext(c), services.CreateStudentInput{
		SchoolID:  schoolID,
		FirstName: strings.TrimSpace(body.FirstName),
		LastName:  strings.TrimSpace(body.LastName),
		ClassName: strings.TrimSpace(body.ClassName),
		ParentID:  body.ParentID,
		TeacherID: body.TeacherID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, student)
}

// GET /api/students
func (h *StudentHandler) List(c *gin.Context) {
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

	students, total, err := h.students.List(requestContext(c), schoolID, services.ListStudentsOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.StudentFilters{
			ClassName: strings.TrimSpace(c.Query("class_name")),
			Query:     strings.TrimSpace(c.Query("q")),
		},
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, students, response.NewMeta(page, perPage, total))
}

// GET /api/students/mine
//
// The records the caller is linked to as parent or homeroom teacher. Roles
// without guardian links simply see an empty list.
func (h *StudentHandler) ListMine(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	students, err := h.students.ListForGuardian(requestContext(c), schoolID, identity.SubjectID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"students": students})
}

// GET /api/students/:id
func (h *StudentHandler) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schoolID := effectiveSchoolID(c, identity, "")
	ctx := requestContext(c)

	// Delegated decision: admit only the linked parent or homeroom teacher.
	if decision, ok := middleware.Ownership(c); ok && decision.Delegated {
		student, err := h.students.GetForGuardian(ctx, schoolID, c.Param("id"), identity.SubjectID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, student)
		return
	}

	student, err := h.students.GetByID(ctx, schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, student)
}
