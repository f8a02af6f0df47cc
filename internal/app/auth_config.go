package app

import (
	"time"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/auth/providers"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// TokenServiceConfig converts AuthConfig into the parameters expected by the
// token service. Lifetimes left unset fall back to the per-class defaults so
// the returned config is fully resolved.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	return auth.TokenConfig{
		TenantAccessSecret:    c.JWT.TenantAccessSecret,
		TenantRefreshSecret:   c.JWT.TenantRefreshSecret,
		PlatformAccessSecret:  c.JWT.PlatformAccessSecret,
		PlatformRefreshSecret: c.JWT.PlatformRefreshSecret,
		Issuer:                c.JWT.Issuer,
		TenantAccessTTL:       durationOr(c.JWT.TenantAccessTTL, auth.DefaultTenantAccessTokenTTL),
		TenantRefreshTTL:      durationOr(c.JWT.TenantRefreshTTL, auth.DefaultTenantRefreshTokenTTL),
		PlatformAccessTTL:     durationOr(c.JWT.PlatformAccessTTL, auth.DefaultPlatformAccessTokenTTL),
		PlatformRefreshTTL:    durationOr(c.JWT.PlatformRefreshTTL, auth.DefaultPlatformRefreshTokenTTL),
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// SessionRegistryConfig converts AuthConfig into session registry parameters.
// Session records default to the tenant refresh token lifetime so a record
// outlives every token minted against it.
func (c AuthConfig) SessionRegistryConfig() auth.RegistryConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = c.JWT.TenantRefreshTTL
	}
	if ttl <= 0 {
		ttl = auth.DefaultTenantRefreshTokenTTL
	}

	return auth.RegistryConfig{TTL: ttl}
}

// LocalVerifierConfig converts AuthConfig into password verifier parameters.
func (c AuthConfig) LocalVerifierConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// OperatorVerifierConfig converts AuthConfig into operator verifier parameters.
func (c AuthConfig) OperatorVerifierConfig() providers.OperatorConfig {
	return providers.OperatorConfig{
		Email:        c.Operator.Email,
		Name:         c.Operator.Name,
		Password:     c.Operator.Password,
		PasswordHash: c.Operator.PasswordHash,
	}
}
