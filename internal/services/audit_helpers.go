package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/classpad/classpad/pkg/logger"
)

// recordAudit writes the entry through the audit service. Audit failures are
// logged but never propagate into the operation that produced them.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit record dropped",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err))
	}
}
