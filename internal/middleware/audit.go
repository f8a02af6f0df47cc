package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/auditctx"
	"github.com/classpad/classpad/pkg/errors"
)

// AuditSink receives one access record per admitted request. Implementations
// must be non-blocking or tolerably fast; the guard never waits on delivery
// guarantees and never denies.
type AuditSink interface {
	RecordAccess(ctx context.Context, actor auditctx.Actor, operation string, at time.Time)
}

// AuditContext snapshots the authenticated actor into the request context and
// emits an access record for the named operation. It runs last in every guard
// chain, so reaching it means the request was admitted.
func AuditContext(operation string, sink AuditSink) Guard {
	return func(c *gin.Context) *errors.AppError {
		identity, ok := CurrentIdentity(c)
		if !ok {
			// Unauthenticated requests carry no actor; nothing to record.
			return nil
		}

		actor := auditctx.Actor{
			SubjectID:   identity.SubjectID,
			Email:       identity.Email,
			Role:        identity.Role,
			SchoolID:    identity.SchoolID,
			CrossTenant: identity.CrossTenant || IsCrossTenant(c),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
		}

		ctx := auditctx.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)

		if sink != nil {
			sink.RecordAccess(ctx, actor, operation, time.Now())
		}
		return nil
	}
}
