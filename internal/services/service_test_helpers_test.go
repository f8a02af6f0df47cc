package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.School{},
		&models.User{},
		&models.Student{},
		&models.Invitation{},
		&models.AuditLog{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func seedSchool(t *testing.T, db *gorm.DB, name string) *models.School {
	t.Helper()

	school := &models.School{Name: name, IsActive: true}
	require.NoError(t, db.Create(school).Error)
	return school
}

func seedUser(t *testing.T, db *gorm.DB, schoolID string, role models.Role, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("Sup3r-secret!")
	require.NoError(t, err)

	user := &models.User{
		SchoolID: schoolID,
		Email:    email,
		Password: hashed,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// fakeSessionStore is an in-memory cache.Store used to observe session
// revocation side effects.
type fakeSessionStore struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   map[string]map[string]struct{}
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		values: make(map[string][]byte),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (f *fakeSessionStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	return 0, 0, nil
}

func (f *fakeSessionStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeSessionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeSessionStore) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	f.sets[key][member] = struct{}{}
	return nil
}

func (f *fakeSessionStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]string, 0, len(f.sets[key]))
	for member := range f.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (f *fakeSessionStore) SetRemove(ctx context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] != nil {
		for _, member := range members {
			delete(f.sets[key], member)
		}
	}
	return nil
}

func (f *fakeSessionStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeSessionStore) Ping(ctx context.Context) error { return nil }
