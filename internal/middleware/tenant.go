package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/metrics"
)

// SchoolIDHeader is the lowest-priority tenant hint, for clients that cannot
// shape the path or body.
const SchoolIDHeader = "X-School-ID"

// TenantScope is the single tenant-isolation enforcement point. It compares
// the school id the request is trying to reach against the caller's own.
// The platform operator is always admitted and the request is marked
// cross-tenant for audit; everyone else must stay inside their school.
func TenantScope() Guard {
	return func(c *gin.Context) *errors.AppError {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return decide("tenant", errors.ErrUnauthorized)
		}

		if identity.Role == models.RolePlatformOperator {
			c.Set(CtxCrossTenantKey, true)
			metrics.CrossTenantReads.Inc()
			return decide("tenant", nil)
		}

		requested := requestedSchoolID(c)
		if requested == "" || requested == identity.SchoolID {
			return decide("tenant", nil)
		}

		return decide("tenant", errors.ErrCrossTenantDenied.WithMessagef(
			"Access to school %s is not permitted from school %s",
			requested, identity.SchoolID))
	}
}

// requestedSchoolID extracts the school id the request targets. Sources are
// consulted in a fixed priority order and the first hit wins: path parameter,
// JSON body, query string, header.
func requestedSchoolID(c *gin.Context) string {
	if v := strings.TrimSpace(c.Param("schoolID")); v != "" {
		return v
	}
	if v := schoolIDFromBody(c); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Query("school_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(SchoolIDHeader))
}

// schoolIDFromBody peeks at a JSON body for a school_id field, restoring the
// body so handlers can still bind it. Non-JSON and unreadable bodies are
// treated as carrying no tenant hint.
func schoolIDFromBody(c *gin.Context) string {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return ""
	}
	if ct := c.ContentType(); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var probe struct {
		SchoolID string `json:"school_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.SchoolID)
}
