package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/errors"
)

// OwnershipDecision records that the ownership guard could not decide a
// request from identity alone and delegated the record-level check to the
// handler. The value is immutable once placed in the context.
type OwnershipDecision struct {
	Delegated  bool
	Kind       string
	ResourceID string
}

// Ownership returns the decision left by the ownership guard, if any.
func Ownership(c *gin.Context) (OwnershipDecision, bool) {
	v, ok := c.Get(CtxOwnershipKey)
	if !ok {
		return OwnershipDecision{}, false
	}
	decision, ok := v.(OwnershipDecision)
	return decision, ok
}

// RequireOwnership guards access to a single resource identified by the :id
// path parameter. Self-access is always admitted, school admins (and above)
// are admitted tenant-wide, and teachers and parents are neither admitted nor
// denied here: the record-level rule belongs to the handler, which receives a
// delegation marker instead. The guard itself never touches the database.
func RequireOwnership(resourceKind string) Guard {
	return RequireOwnershipParam(resourceKind, "id")
}

// RequireOwnershipParam is RequireOwnership with an explicit path parameter
// name, for routes that use something other than :id.
func RequireOwnershipParam(resourceKind, param string) Guard {
	return func(c *gin.Context) *errors.AppError {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return decide("ownership", errors.ErrUnauthorized)
		}

		resourceID := c.Param(param)
		switch {
		case resourceID != "" && resourceID == identity.SubjectID:
			// Self-access.
		case identity.Role == models.RoleTenantAdmin || identity.Role == models.RolePlatformOperator:
			// Tenant-wide (the tenant guard has already fenced the school).
		default:
			c.Set(CtxOwnershipKey, OwnershipDecision{
				Delegated:  true,
				Kind:       resourceKind,
				ResourceID: resourceID,
			})
		}
		return decide("ownership", nil)
	}
}
