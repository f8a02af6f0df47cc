package app

import (
	"fmt"
	"strings"

	"github.com/classpad/classpad/pkg/crypto"
)

const signingSecretBytes = 48

// ApplyRuntimeDefaults ensures the signing secrets are populated even when no
// configuration file is supplied. Generated secrets live only in process
// memory, so every restart invalidates tokens minted under them. It returns a
// map describing which keys were generated so callers can log the event
// without exposing values. Operator credentials are never generated: platform
// login stays disabled until they are configured.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	secrets := []struct {
		key    string
		target *string
	}{
		{"auth.jwt.tenant_access_secret", &cfg.Auth.JWT.TenantAccessSecret},
		{"auth.jwt.tenant_refresh_secret", &cfg.Auth.JWT.TenantRefreshSecret},
		{"auth.jwt.platform_access_secret", &cfg.Auth.JWT.PlatformAccessSecret},
		{"auth.jwt.platform_refresh_secret", &cfg.Auth.JWT.PlatformRefreshSecret},
	}

	for _, s := range secrets {
		if strings.TrimSpace(*s.target) != "" {
			continue
		}
		secret, err := crypto.GenerateToken(signingSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", s.key, err)
		}
		*s.target = secret
		generated[s.key] = true
	}

	return generated, nil
}
