package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/middleware"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/response"
)

// SessionHandler lets a subject review and revoke their own live sessions.
// Token payloads held inside the records never leave the server.
type SessionHandler struct {
	registry *auth.SessionRegistry
	cookies  *auth.CookieManager
}

func NewSessionHandler(registry *auth.SessionRegistry, cookies *auth.CookieManager) *SessionHandler {
	return &SessionHandler{registry: registry, cookies: cookies}
}

type sessionDTO struct {
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Current      bool      `json:"current"`
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items := make([]sessionDTO, 0)
	if h.registry != nil {
		current := middleware.CurrentSessionID(c)
		for _, record := range h.registry.List(requestContext(c), identity.SubjectID) {
			items = append(items, sessionDTO{
				SessionID:    record.SessionID,
				IPAddress:    record.IPAddress,
				UserAgent:    record.UserAgent,
				CreatedAt:    record.CreatedAt,
				LastActivity: record.LastActivity,
				Current:      record.SessionID == current,
			})
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].LastActivity.After(items[j].LastActivity)
		})
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": items})
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Revoke(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessionID := c.Param("id")
	ctx := requestContext(c)

	// A session belonging to someone else looks identical to a missing one.
	var record *auth.SessionRecord
	if h.registry != nil {
		record = h.registry.Validate(ctx, sessionID)
	}
	if record == nil || record.SubjectID != identity.SubjectID {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	h.registry.Revoke(ctx, sessionID, identity.SubjectID)
	if sessionID == middleware.CurrentSessionID(c) {
		h.cookies.ClearSession(c)
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/sessions/revoke_all
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	revoked := 0
	if h.registry != nil {
		revoked = h.registry.RevokeAll(requestContext(c), identity.SubjectID)
	}
	h.cookies.ClearSession(c)

	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}
