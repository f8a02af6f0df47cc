package app

import (
	"strings"

	"github.com/classpad/classpad/internal/cache"
)

// RedisStoreConfig maps the cache section onto the cache package's client
// settings. Address and username are trimmed of stray whitespace.
func (c CacheConfig) RedisStoreConfig() cache.RedisConfig {
	r := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
	}
}
