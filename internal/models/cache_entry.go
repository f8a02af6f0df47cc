package models

import "time"

// CacheEntry is one key-value row of the database cache fallback. The value
// column carries whatever bytes the caller stored; expiry is enforced by the
// store on read, not by the database.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
