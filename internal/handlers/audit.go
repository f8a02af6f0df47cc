package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// AuditHandler exposes the audit trail. A school admin reads their own
// school's records; the operator reads across schools and can isolate
// cross-tenant accesses.
type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(db *gorm.DB) (*AuditHandler, error) {
	svc, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	filters := services.AuditFilters{
		SubjectID: strings.TrimSpace(c.Query("subject_id")),
		Action:    strings.TrimSpace(c.Query("action")),
		Result:    strings.TrimSpace(c.Query("result")),
	}

	if identity.Role == models.RolePlatformOperator {
		filters.SchoolID = strings.TrimSpace(c.Query("school_id"))
		if raw := strings.TrimSpace(c.Query("cross_tenant")); raw != "" {
			if crossTenant, err := strconv.ParseBool(raw); err == nil {
				filters.CrossTenant = &crossTenant
			}
		}
	} else {
		// School staff never see past their own fence, whatever they ask for.
		filters.SchoolID = identity.SchoolID
	}

	if s := strings.TrimSpace(c.Query("since")); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := strings.TrimSpace(c.Query("until")); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: perPage, Filters: filters})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, perPage, total))
}
