package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classpad/classpad/internal/models"
)

var errStoreNotReady = errors.New("cache: database store not initialised")

// DatabaseStore implements Store on the primary SQL database. It backs
// deployments that run without Redis; the session registry and the shared
// rate limiter ride on it unchanged.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore returns a Store persisted in the cache_entries table.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

// ready normalises the context and rejects use of a nil store.
func (s *DatabaseStore) ready(ctx context.Context) (context.Context, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, nil
}

// expiryFrom maps a ttl onto an absolute expiry. Zero means no expiry;
// negative values land in the past and read as already expired.
func expiryFrom(ttl time.Duration) time.Time {
	if ttl == 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// expired reports whether a non-zero expiry lies before now.
func expired(at, now time.Time) bool {
	return !at.IsZero() && now.After(at)
}

// Ping verifies the underlying database connection.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	sqlDB, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IncrementWithTTL bumps the counter at key inside its current window, or
// starts a fresh window when the previous one lapsed. The row is locked for
// the duration of the transaction so concurrent hits serialise.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		window = time.Minute
	}

	now := time.Now()
	expiry := now.Add(window)

	var count int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		lookErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "key = ?", key).Error
		if errors.Is(lookErr, gorm.ErrRecordNotFound) {
			count = 1
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     counterValue(count),
				ExpiresAt: expiry,
			}).Error
		}
		if lookErr != nil {
			return lookErr
		}

		count = 1
		if entry.ExpiresAt.After(now) {
			prev, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count = prev + 1
		}
		entry.Value = counterValue(count)
		entry.ExpiresAt = expiry
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return count, expiry.Sub(now), nil
}

func counterValue(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// Set upserts the value stored at key.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiryFrom(ttl),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get returns the live value at key. Expired entries are deleted on read and
// reported as missing.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, false, err
	}

	var entry models.CacheEntry
	lookErr := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(lookErr, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if lookErr != nil {
		return nil, false, lookErr
	}

	if expired(entry.ExpiresAt, time.Now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Delete removes keys and any set rows stored under them.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&models.CacheEntry{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&models.CacheSetMember{}).Error
}

// SetAdd inserts a member row for the set at key, refreshing its expiry when
// the member already exists.
func (s *DatabaseStore) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	row := models.CacheSetMember{
		Key:       key,
		Member:    member,
		ExpiresAt: expiryFrom(ttl),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "member"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
		}).Create(&row).Error
}

// SetMembers lists the live members of the set at key. Stale rows found
// along the way are pruned.
func (s *DatabaseStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	var rows []models.CacheSetMember
	if err := s.db.WithContext(ctx).Where("key = ?", key).Find(&rows).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	members := make([]string, 0, len(rows))
	var stale []string
	for _, row := range rows {
		if expired(row.ExpiresAt, now) {
			stale = append(stale, row.Member)
			continue
		}
		members = append(members, row.Member)
	}

	if len(stale) > 0 {
		_ = s.SetRemove(ctx, key, stale...)
	}
	return members, nil
}

// Expire slides the expiry of a key's entry and set rows.
func (s *DatabaseStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	expiry := time.Now().Add(ttl)
	if err := s.db.WithContext(ctx).Model(&models.CacheEntry{}).
		Where("key = ?", key).
		Update("expires_at", expiry).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.CacheSetMember{}).
		Where("key = ?", key).
		Update("expires_at", expiry).Error
}

// SetRemove deletes member rows from the set at key.
func (s *DatabaseStore) SetRemove(ctx context.Context, key string, members ...string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).
		Where("key = ? AND member IN ?", key, members).
		Delete(&models.CacheSetMember{}).Error
}
