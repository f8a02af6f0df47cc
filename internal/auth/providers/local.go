package providers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the email/password pair does not match.
	ErrInvalidCredentials = errors.New("verifier: invalid credentials")
	// ErrAccountLocked signals too many consecutive failed sign-ins.
	ErrAccountLocked = errors.New("verifier: account locked")
	// ErrAccountDisabled signals a deactivated account.
	ErrAccountDisabled = errors.New("verifier: account disabled")
	// ErrSchoolSuspended signals that the user's school has been deactivated.
	ErrSchoolSuspended = errors.New("verifier: school suspended")
)

// LocalConfig defines tunable behaviour for the local verifier.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains everything required to authenticate a school user.
type AuthenticateInput struct {
	SchoolID  string
	Email     string
	Password  string
	IPAddress string
}

// LocalVerifier checks school-user credentials against the persistence layer,
// with account lockout controls. It is stateless between calls.
type LocalVerifier struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalVerifier builds a verifier with sane defaults.
func NewLocalVerifier(db *gorm.DB, cfg LocalConfig) (*LocalVerifier, error) {
	if db == nil {
		return nil, errors.New("local verifier: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalVerifier{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the matching user.
// The school must exist and be active before any credential is examined.
func (v *LocalVerifier) Authenticate(input AuthenticateInput) (*models.User, error) {
	schoolID := strings.TrimSpace(input.SchoolID)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if schoolID == "" || email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var school models.School
	err := v.db.Take(&school, "id = ?", schoolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local verifier: query school: %w", err)
	}
	if !school.IsActive {
		return nil, ErrSchoolSuspended
	}

	var user models.User
	err = v.db.Where("school_id = ? AND LOWER(email) = ?", schoolID, email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local verifier: query user: %w", err)
	}

	now := v.clock()

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// Clear an expired lockout before checking the password.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := v.db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local verifier: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, v.handleFailedAttempt(&user, now)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := v.db.Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local verifier: update user: %w", err)
	}

	return &user, nil
}

// Identity maps a verified user row onto the request identity shape.
func Identity(user *models.User) auth.Identity {
	return auth.Identity{
		SubjectID: user.ID,
		Role:      user.Role,
		SchoolID:  user.SchoolID,
		Email:     user.Email,
		Name:      user.DisplayName(),
	}
}

func (v *LocalVerifier) handleFailedAttempt(user *models.User, now time.Time) error {
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
	}

	if user.FailedAttempts >= v.threshold {
		lockUntil := now.Add(v.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := v.db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("local verifier: update failed attempts: %w", err)
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}

// ChangePassword swaps a user's password once the current one checks out.
func (v *LocalVerifier) ChangePassword(userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return errors.New("local verifier: user id and new password are required")
	}

	var user models.User
	if err := v.db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("local verifier: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("local verifier: hash password: %w", err)
	}

	if err := v.db.Model(&user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("local verifier: update password: %w", err)
	}

	return nil
}
