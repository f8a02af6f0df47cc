package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/pkg/response"
)

// Health reports readiness of the stores the API depends on. A degraded
// session store keeps the endpoint at 200 because the API still serves
// token-only authentication in that state.
func Health(db *gorm.DB, registry *auth.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		database := "ok"
		if sqlDB, err := db.DB(); err != nil {
			database = "error"
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			database = "error"
		}

		sessions := "disabled"
		if registry != nil {
			if registry.Available(c.Request.Context()) {
				sessions = "ok"
			} else {
				sessions = "degraded"
			}
		}

		payload := gin.H{
			"status":   "ok",
			"database": database,
			"sessions": sessions,
		}
		if database != "ok" {
			payload["status"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, payload)
			return
		}

		response.Success(c, http.StatusOK, payload)
	}
}
