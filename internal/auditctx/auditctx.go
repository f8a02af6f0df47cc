// Package auditctx carries the request actor through context so services can
// stamp audit rows without depending on handler types.
package auditctx

import (
	"context"

	"github.com/classpad/classpad/internal/models"
)

// Actor is the audit identity snapshot for one request. It is taken once
// after the guards ran and is immutable from then on.
type Actor struct {
	SubjectID   string
	Email       string
	Role        models.Role
	SchoolID    string
	CrossTenant bool
	IPAddress   string
	UserAgent   string
}

type ctxKey struct{}

// WithActor returns a context carrying actor for downstream service calls.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, actor)
}

// FromContext reports the actor stored by WithActor, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
