package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classpad/classpad/internal/models"
)

// Default token lifetimes applied when configuration leaves them unset.
// Platform tokens stay shorter than tenant tokens: the operator credential
// reaches every school, so its exposure window is kept narrow.
const (
	DefaultTenantAccessTokenTTL    = 2 * time.Hour
	DefaultTenantRefreshTokenTTL   = 7 * 24 * time.Hour
	DefaultPlatformAccessTokenTTL  = time.Hour
	DefaultPlatformRefreshTokenTTL = 3 * 24 * time.Hour
)

// TokenClass selects the signing domain for a token. Tenant and platform
// tokens use unrelated secrets, so possession of one never implies validity
// as the other.
type TokenClass string

const (
	ClassTenant   TokenClass = "tenant"
	ClassPlatform TokenClass = "platform"
)

// Token use values carried in the "use" claim. Access and refresh tokens for
// the same login share identity claims but are signed and verified
// independently.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

var (
	// ErrTokenExpired marks an authentic token past its validity window.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenMalformed marks a token that is unparseable, wrongly signed, or
	// carries an invalid claim shape for the requested class.
	ErrTokenMalformed = errors.New("auth: token malformed")
)

// Identity is the authenticated principal constructed per request. Every
// tenant identity carries a school id; the platform operator carries none and
// is flagged for cross-tenant audit instead.
type Identity struct {
	SubjectID   string      `json:"subject_id"`
	Role        models.Role `json:"role"`
	SchoolID    string      `json:"school_id,omitempty"`
	Email       string      `json:"email,omitempty"`
	Name        string      `json:"name,omitempty"`
	CrossTenant bool        `json:"cross_tenant,omitempty"`
}

// Class returns the signing domain implied by the identity's role.
func (i Identity) Class() TokenClass {
	if i.Role == models.RolePlatformOperator {
		return ClassPlatform
	}
	return ClassTenant
}

// Validate enforces the claim-shape invariants for the identity's class.
func (i Identity) Validate() error {
	if i.SubjectID == "" {
		return errors.New("auth: subject id is required")
	}
	if !i.Role.Valid() {
		return fmt.Errorf("auth: unknown role %q", i.Role)
	}
	if i.Role == models.RolePlatformOperator {
		if i.SchoolID != "" {
			return errors.New("auth: platform identity must not carry a school id")
		}
		return nil
	}
	if i.SchoolID == "" {
		return errors.New("auth: tenant identity requires a school id")
	}
	return nil
}

// Claims is the wire shape embedded in issued tokens.
type Claims struct {
	SubjectID string `json:"uid"`
	Role      string `json:"role"`
	SchoolID  string `json:"tid,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenUse  string `json:"use"`
	jwt.RegisteredClaims
}

// Identity reconstructs the request identity from verified claims.
func (c *Claims) Identity() Identity {
	role := models.Role(c.Role)
	return Identity{
		SubjectID:   c.SubjectID,
		Role:        role,
		SchoolID:    c.SchoolID,
		Email:       c.Email,
		Name:        c.Name,
		CrossTenant: role == models.RolePlatformOperator,
	}
}

// TokenPair represents an access token and refresh token issued together.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenConfig bundles the configuration required to build a TokenService.
// The four secrets are independent; tenant and platform classes never share
// signing material, and neither do access and refresh tokens within a class.
// Lifetimes are per class as well, so operator tokens can be kept on a
// shorter leash than everyday tenant traffic.
type TokenConfig struct {
	TenantAccessSecret    string
	TenantRefreshSecret   string
	PlatformAccessSecret  string
	PlatformRefreshSecret string
	Issuer                string
	TenantAccessTTL       time.Duration
	TenantRefreshTTL      time.Duration
	PlatformAccessTTL     time.Duration
	PlatformRefreshTTL    time.Duration
	Clock                 func() time.Time
}

// classMaterial holds everything class-specific: the two signing secrets and
// the two lifetimes.
type classMaterial struct {
	access     []byte
	refresh    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// TokenService issues and verifies the two classes of JSON Web Tokens. It is
// purely a cryptographic transform plus claim-shape validation; it holds no
// per-request state and is safe for concurrent use.
type TokenService struct {
	material map[TokenClass]classMaterial
	issuer   string
	now      func() time.Time
}

// NewTokenService constructs a TokenService from the provided configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	for name, secret := range map[string]string{
		"tenant access":    cfg.TenantAccessSecret,
		"tenant refresh":   cfg.TenantRefreshSecret,
		"platform access":  cfg.PlatformAccessSecret,
		"platform refresh": cfg.PlatformRefreshSecret,
	} {
		if secret == "" {
			return nil, fmt.Errorf("auth: %s secret must be provided", name)
		}
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		material: map[TokenClass]classMaterial{
			ClassTenant: {
				access:     []byte(cfg.TenantAccessSecret),
				refresh:    []byte(cfg.TenantRefreshSecret),
				accessTTL:  ttlOr(cfg.TenantAccessTTL, DefaultTenantAccessTokenTTL),
				refreshTTL: ttlOr(cfg.TenantRefreshTTL, DefaultTenantRefreshTokenTTL),
			},
			ClassPlatform: {
				access:     []byte(cfg.PlatformAccessSecret),
				refresh:    []byte(cfg.PlatformRefreshSecret),
				accessTTL:  ttlOr(cfg.PlatformAccessTTL, DefaultPlatformAccessTokenTTL),
				refreshTTL: ttlOr(cfg.PlatformRefreshTTL, DefaultPlatformRefreshTokenTTL),
			},
		},
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

func ttlOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Issue signs an access and refresh token pair for the identity. The token
// class follows from the identity's role; sessionID, when present, is
// embedded so session-bound requests can be touched from bearer traffic.
func (s *TokenService) Issue(identity Identity, sessionID string) (TokenPair, error) {
	if err := identity.Validate(); err != nil {
		return TokenPair{}, err
	}

	m := s.material[identity.Class()]

	access, err := s.sign(identity, sessionID, UseAccess, m.accessTTL, m.access)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.sign(identity, sessionID, UseRefresh, m.refreshTTL, m.refresh)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token against a single class.
func (s *TokenService) VerifyAccess(class TokenClass, token string) (*Claims, error) {
	return s.verify(class, token, UseAccess)
}

// VerifyRefresh validates a refresh token against a single class.
func (s *TokenService) VerifyRefresh(class TokenClass, token string) (*Claims, error) {
	return s.verify(class, token, UseRefresh)
}

// ResolveAccess verifies an access token of unknown class, attempting the
// platform class first. Only the unified "who am I" endpoint should need
// this; every other route binds to exactly one class at registration time.
func (s *TokenService) ResolveAccess(token string) (*Claims, TokenClass, error) {
	if claims, err := s.VerifyAccess(ClassPlatform, token); err == nil {
		return claims, ClassPlatform, nil
	} else if errors.Is(err, ErrTokenExpired) {
		return nil, ClassPlatform, err
	}

	claims, err := s.VerifyAccess(ClassTenant, token)
	if err != nil {
		return nil, ClassTenant, err
	}
	return claims, ClassTenant, nil
}

func (s *TokenService) sign(identity Identity, sessionID, use string, ttl time.Duration, secret []byte) (string, error) {
	now := s.now()

	claims := &Claims{
		SubjectID: identity.SubjectID,
		Role:      identity.Role.String(),
		SchoolID:  identity.SchoolID,
		Email:     identity.Email,
		Name:      identity.Name,
		SessionID: sessionID,
		TokenUse:  use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	if sessionID != "" {
		claims.ID = sessionID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, nil
}

// verify parses and validates a token. Expiry is reported ahead of every
// shape problem: an authentic-but-stale token always yields ErrTokenExpired,
// never ErrTokenMalformed.
func (s *TokenService) verify(class TokenClass, token, use string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	m, ok := s.material[class]
	if !ok {
		return nil, fmt.Errorf("auth: unknown token class %q", class)
	}

	secret := m.access
	if use == UseRefresh {
		secret = m.refresh
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenMalformed)
	}
	if claims.TokenUse != use {
		return nil, fmt.Errorf("%w: unexpected token use %q", ErrTokenMalformed, claims.TokenUse)
	}
	if claims.SubjectID == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrTokenMalformed)
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role claim", ErrTokenMalformed)
	}

	switch class {
	case ClassPlatform:
		if role != models.RolePlatformOperator || claims.SchoolID != "" {
			return nil, fmt.Errorf("%w: claims do not fit the platform class", ErrTokenMalformed)
		}
	case ClassTenant:
		if !role.TenantScoped() || claims.SchoolID == "" {
			return nil, fmt.Errorf("%w: claims do not fit the tenant class", ErrTokenMalformed)
		}
	}

	return &claims, nil
}
