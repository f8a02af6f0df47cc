package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
	apperrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/mail"
)

const (
	defaultInviteExpiry     = 72 * time.Hour
	defaultInviteTokenBytes = 48
)

var (
	// ErrInviteNotFound means no invite matches the token.
	ErrInviteNotFound = errors.New("invite: not found")
	// ErrInviteExpired means the invite lapsed before acceptance.
	ErrInviteExpired = errors.New("invite: expired")
	// ErrInviteAlreadyUsed means the invite was accepted earlier.
	ErrInviteAlreadyUsed = errors.New("invite: already accepted")
)

// InviteOption adjusts InviteService defaults.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to build invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteExpiry changes how long invite tokens stay valid.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteTokenSize sets the random token length in bytes.
func WithInviteTokenSize(size int) InviteOption {
	return func(s *InviteService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInviteClock substitutes the time source, used by tests.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// CreateInviteInput describes an invitation into a school.
type CreateInviteInput struct {
	SchoolID  string
	Email     string
	Role      models.Role
	InvitedBy string
}

// RedeemInviteInput carries the token plus the profile of the account to create.
type RedeemInviteInput struct {
	Token     string
	Password  string
	FirstName string
	LastName  string
}

// InviteService manages generation and consumption of school invitations.
// Only the SHA-256 hash of an invite token is ever stored; redeeming one
// provisions the invited account.
type InviteService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	audit       *AuditService
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
	log         *zap.Logger
}

// NewInviteService wires an InviteService to its collaborators.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, audit *AuditService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}

	service := &InviteService{
		db:          db,
		mailer:      mailer,
		audit:       audit,
		expiry:      defaultInviteExpiry,
		tokenLength: defaultInviteTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("invites"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create issues a new invitation and dispatches the invite email. Delivery is
// best effort; the invitation stands even when the email cannot be sent.
func (s *InviteService) Create(ctx context.Context, input CreateInviteInput) (string, *models.Invitation, error) {
	ctx = ensureContext(ctx)

	schoolID := strings.TrimSpace(input.SchoolID)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if schoolID == "" {
		return "", nil, apperrors.NewBadRequest("school id is required")
	}
	if email == "" {
		return "", nil, apperrors.NewBadRequest("email is required")
	}
	if !input.Role.TenantScoped() {
		return "", nil, apperrors.NewBadRequest("role must be one of the school roles")
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("school_id = ? AND LOWER(email) = ?", schoolID, email).
		Count(&existing).Error; err != nil {
		return "", nil, fmt.Errorf("invite service: check existing user: %w", err)
	}
	if existing > 0 {
		return "", nil, apperrors.NewBadRequest("a user with this email already exists in this school")
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	now := s.now()
	invite := models.Invitation{
		SchoolID:  schoolID,
		Email:     email,
		Role:      input.Role,
		TokenHash: tokenHash(rawToken),
		InvitedBy: strings.TrimSpace(input.InvitedBy),
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return "", nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "You're invited to join your school on Classpad",
			Body:    s.inviteBody(s.inviteLink(rawToken)),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			s.log.Warn("invite email delivery failed",
				zap.String("school_id", schoolID),
				zap.Error(mailErr))
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: schoolID,
		Action:   "invite.create",
		Resource: invite.ID,
		Result:   "success",
		Metadata: map[string]any{
			"email": email,
			"role":  input.Role.String(),
		},
	})

	return rawToken, &invite, nil
}

// Redeem validates the token, marks the invitation accepted, and provisions
// the invited account in a single transaction.
func (s *InviteService) Redeem(ctx context.Context, input RedeemInviteInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, apperrors.NewBadRequest("token is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	var invite models.Invitation
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash(token)).
		First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	now := s.now()
	if invite.Expired(now) {
		return nil, ErrInviteExpired
	}
	if invite.AcceptedAt != nil {
		return nil, ErrInviteAlreadyUsed
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("invite service: hash password: %w", err)
	}

	user := &models.User{
		SchoolID:  invite.SchoolID,
		Email:     invite.Email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      invite.Role,
		IsActive:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&invite).Update("accepted_at", now).Error; err != nil {
			return fmt.Errorf("invite service: mark accepted: %w", err)
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("a user with this email already exists in this school")
		}
		return nil, err
	}

	invite.AcceptedAt = &now

	recordAudit(s.audit, ctx, AuditEntry{
		SchoolID: invite.SchoolID,
		Action:   "invite.redeem",
		Resource: invite.ID,
		Result:   "success",
		Metadata: map[string]any{"user_id": user.ID},
	})

	return user, nil
}

// ListPending returns the school's open invitations, newest first.
func (s *InviteService) ListPending(ctx context.Context, schoolID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invites []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("school_id = ? AND accepted_at IS NULL AND expires_at > ?", schoolID, s.now()).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// PurgeExpired removes invitations that expired or were already accepted.
func (s *InviteService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR accepted_at IS NOT NULL", s.now()).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: purge invites: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InviteService) inviteLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *InviteService) inviteBody(link string) string {
	return fmt.Sprintf("Hello,\n\nYou have been invited to join your school on Classpad. Use the following link to accept your invite:\n%s\n\nIf you did not expect this email, you can ignore it.\n", link)
}

func tokenHash(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}
