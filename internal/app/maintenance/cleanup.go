package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
	"github.com/classpad/classpad/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultCacheSpec          = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultInviteSpec         = "@daily"
)

// Cleaner coordinates background maintenance: sweeping expired session and
// rate limit rows, enforcing audit retention, and purging dead invitations.
// Jobs whose dependency is nil are skipped.
type Cleaner struct {
	db        *gorm.DB
	invites   *services.InviteService
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	cacheSchedule  string
	auditSchedule  string
	inviteSchedule string
}

// Option tweaks Cleaner construction.
type Option func(*Cleaner)

// WithCron substitutes the cron scheduler, used by tests.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow replaces the time source for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays sets the audit retention window.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCacheSchedule overrides the cron specification for the cache row sweep.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithAuditSchedule changes when audit retention runs.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithInviteSchedule overrides the cron specification for invitation purging.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, invites *services.InviteService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:             db,
		invites:        invites,
		audit:          audit,
		now:            time.Now,
		retention:      defaultAuditRetentionDays,
		cacheSchedule:  defaultCacheSpec,
		auditSchedule:  defaultAuditSpec,
		inviteSchedule: defaultInviteSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// cleanupJob pairs a schedule with the sweep it drives.
type cleanupJob struct {
	name string
	spec string
	run  func(context.Context) error
}

func (c *Cleaner) jobs() []cleanupJob {
	var jobs []cleanupJob
	if c.db != nil {
		jobs = append(jobs, cleanupJob{name: "cache rows", spec: c.cacheSchedule, run: func(ctx context.Context) error {
			_, err := CleanupCacheRows(ctx, c.db, c.now())
			return err
		}})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, cleanupJob{name: "audit retention", spec: c.auditSchedule, run: func(ctx context.Context) error {
			_, err := c.audit.CleanupOlderThan(ctx, c.retention)
			return err
		}})
	}
	if c.invites != nil {
		jobs = append(jobs, cleanupJob{name: "expired invites", spec: c.inviteSchedule, run: func(ctx context.Context) error {
			_, err := c.invites.PurgeExpired(ctx)
			return err
		}})
	}
	return jobs
}

// Start registers the enabled jobs with the scheduler and launches it. With
// no jobs to run the scheduler stays idle.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			if err := j.run(context.Background()); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop shuts the scheduler down and waits for in-flight jobs.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled sweep sequentially. Used in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		if err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}

// CacheCleanupStats captures the number of cache rows removed by a sweep.
type CacheCleanupStats struct {
	Entries    int64
	SetMembers int64
}

// CleanupCacheRows removes expired entries and set members from the database
// cache tables. Session records, rate limit counters and per-subject session
// indexes all live here when Redis is not in play. Rows with a zero expiry
// never expire and are left alone.
func CleanupCacheRows(ctx context.Context, db *gorm.DB, now time.Time) (CacheCleanupStats, error) {
	if db == nil {
		return CacheCleanupStats{}, errors.New("cleanup cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var stats CacheCleanupStats

	res := db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	if res.Error != nil {
		return stats, fmt.Errorf("cleanup cache: entries: %w", res.Error)
	}
	stats.Entries = res.RowsAffected

	res = db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheSetMember{})
	if res.Error != nil {
		return stats, fmt.Errorf("cleanup cache: set members: %w", res.Error)
	}
	stats.SetMembers = res.RowsAffected

	return stats, nil
}
