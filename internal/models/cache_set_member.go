package models

import "time"

// CacheSetMember represents one element of a set stored in the database
// cache fallback, mirroring the set commands of the key-value store.
type CacheSetMember struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Member    string    `gorm:"primaryKey;size:256"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
