package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auditctx"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/logger"
)

// AuditEntry describes one action to record in the audit trail.
type AuditEntry struct {
	SubjectID   *string
	Email       string
	Role        models.Role
	SchoolID    string
	CrossTenant bool
	Action      string
	Resource    string
	Result      string
	IPAddress   string
	UserAgent   string
	Metadata    map[string]any

	// At overrides the row timestamp when non-zero. Guard-emitted entries
	// carry the admission time rather than the insert time.
	At time.Time
}

// AuditFilters narrows audit queries to an actor, action, or entity.
type AuditFilters struct {
	SubjectID   string
	SchoolID    string
	Action      string
	Result      string
	CrossTenant *bool
	Since       *time.Time
	Until       *time.Time
}

// AuditListOptions pairs filters with pagination for audit listings.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService writes and reads the tenant audit trail.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService returns an AuditService bound to db.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// Log persists an entry, serialising its metadata to JSON.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	row := models.AuditLog{
		Email:       strings.TrimSpace(entry.Email),
		Role:        entry.Role,
		SchoolID:    strings.TrimSpace(entry.SchoolID),
		CrossTenant: entry.CrossTenant,
		Action:      strings.TrimSpace(entry.Action),
		Resource:    strings.TrimSpace(entry.Resource),
		Result:      strings.TrimSpace(entry.Result),
		IPAddress:   strings.TrimSpace(entry.IPAddress),
		UserAgent:   strings.TrimSpace(entry.UserAgent),
	}

	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(encoded)
	}

	if entry.SubjectID != nil && strings.TrimSpace(*entry.SubjectID) != "" {
		id := strings.TrimSpace(*entry.SubjectID)
		row.SubjectID = &id
	}

	if !entry.At.IsZero() {
		row.CreatedAt = entry.At
	}

	return s.db.WithContext(ctx).Create(&row).Error
}

// RecordAccess persists the trail row for a request that cleared the guard
// chain. It runs on the request path and must never fail the request, so
// write errors are logged and swallowed.
func (s *AuditService) RecordAccess(ctx context.Context, actor auditctx.Actor, operation string, at time.Time) {
	entry := AuditEntry{
		Email:       actor.Email,
		Role:        actor.Role,
		SchoolID:    actor.SchoolID,
		CrossTenant: actor.CrossTenant,
		Action:      operation,
		Result:      "allowed",
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		At:          at,
	}
	if actor.SubjectID != "" {
		subjectID := actor.SubjectID
		entry.SubjectID = &subjectID
	}

	if err := s.Log(ctx, entry); err != nil {
		s.log.Warn("audit trail write failed",
			zap.String("operation", operation),
			zap.Error(err))
	}
}

// List pages through audit rows, newest first.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan deletes audit rows past the retention window, given in days.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.SubjectID != "" {
		query = query.Where("subject_id = ?", filters.SubjectID)
	}
	if filters.SchoolID != "" {
		query = query.Where("school_id = ?", filters.SchoolID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.CrossTenant != nil {
		query = query.Where("cross_tenant = ?", *filters.CrossTenant)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
