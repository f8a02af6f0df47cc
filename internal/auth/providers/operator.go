package providers

import (
	"errors"
	"strings"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
)

// OperatorSubjectID is the stable subject identifier for the platform
// operator. There is exactly one such identity per deployment.
const OperatorSubjectID = "platform-operator"

// ErrOperatorNotConfigured is returned when no operator credential material
// was provided; platform login is then disabled entirely.
var ErrOperatorNotConfigured = errors.New("verifier: operator not configured")

// OperatorConfig carries the pre-provisioned credential material for the
// platform operator. The identity is configured, not created: it has no
// registration endpoint and no database row. PasswordHash is the bcrypt hash
// used in real deployments; Password is a plaintext convenience for local
// development and is ignored whenever a hash is present.
type OperatorConfig struct {
	Email        string
	PasswordHash string
	Password     string
	Name         string
}

// OperatorVerifier checks submitted credentials against the configured
// platform operator identity. All comparisons are constant-time.
type OperatorVerifier struct {
	email        string
	passwordHash string
	password     string
	name         string
}

// NewOperatorVerifier builds a verifier from configuration. The email plus
// either a bcrypt hash or a dev-mode plaintext password must be present for
// platform login to work.
func NewOperatorVerifier(cfg OperatorConfig) *OperatorVerifier {
	return &OperatorVerifier{
		email:        strings.ToLower(strings.TrimSpace(cfg.Email)),
		passwordHash: strings.TrimSpace(cfg.PasswordHash),
		password:     cfg.Password,
		name:         strings.TrimSpace(cfg.Name),
	}
}

// Configured reports whether operator credentials were provisioned.
func (v *OperatorVerifier) Configured() bool {
	return v.email != "" && (v.passwordHash != "" || v.password != "")
}

// Authenticate verifies the submitted pair against the configured identity
// and returns the platform identity on success.
func (v *OperatorVerifier) Authenticate(email, password string) (auth.Identity, error) {
	if !v.Configured() {
		return auth.Identity{}, ErrOperatorNotConfigured
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return auth.Identity{}, ErrInvalidCredentials
	}

	emailMatch := crypto.SecureCompare(email, v.email)
	passwordMatch := v.verifyPassword(password)
	if !emailMatch || !passwordMatch {
		return auth.Identity{}, ErrInvalidCredentials
	}

	return auth.Identity{
		SubjectID:   OperatorSubjectID,
		Role:        models.RolePlatformOperator,
		Email:       v.email,
		Name:        v.name,
		CrossTenant: true,
	}, nil
}

func (v *OperatorVerifier) verifyPassword(password string) bool {
	if v.passwordHash != "" {
		return crypto.VerifyPassword(v.passwordHash, password)
	}
	return crypto.SecureCompare(password, v.password)
}
