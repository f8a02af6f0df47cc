package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/errors"
)

// RequireRole admits callers whose role is in the allowed set or strictly
// outranks every member of it. With hierarchy admission, granting "teacher"
// automatically covers school admins and the platform operator.
func RequireRole(allowed ...models.Role) Guard {
	return func(c *gin.Context) *errors.AppError {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return decide("role", errors.ErrUnauthorized)
		}

		for _, role := range allowed {
			if identity.Role == role {
				return decide("role", nil)
			}
		}

		outranksAll := len(allowed) > 0
		for _, role := range allowed {
			if !identity.Role.Outranks(role) {
				outranksAll = false
				break
			}
		}
		if outranksAll {
			return decide("role", nil)
		}

		return decide("role", errors.ErrInsufficientRole.WithMessagef(
			"Role %s may not perform this action (requires %s)",
			identity.Role, roleList(allowed)))
	}
}

func roleList(roles []models.Role) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}
	return strings.Join(names, " or ")
}
