package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/pkg/crypto"
	"github.com/classpad/classpad/pkg/mail"
)

func TestInviteServiceCreateAndRedeem(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")
	admin := seedUser(t, db, school.ID, models.RoleTenantAdmin, "admin@hillside.example")

	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, err := NewInviteService(db, nil, nil,
		WithInviteClock(func() time.Time { return current }),
		WithInviteExpiry(24*time.Hour),
	)
	require.NoError(t, err)

	ctx := context.Background()
	token, invite, err := svc.Create(ctx, CreateInviteInput{
		SchoolID:  school.ID,
		Email:     "New.Teacher@Hillside.Example",
		Role:      models.RoleTeacher,
		InvitedBy: admin.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "new.teacher@hillside.example", invite.Email)
	require.Equal(t, models.RoleTeacher, invite.Role)
	require.Nil(t, invite.AcceptedAt)

	// The raw token never touches the database.
	require.NotEqual(t, token, invite.TokenHash)
	var stored models.Invitation
	require.NoError(t, db.First(&stored, "id = ?", invite.ID).Error)
	require.NotContains(t, stored.TokenHash, token)

	user, err := svc.Redeem(ctx, RedeemInviteInput{
		Token:     token,
		Password:  "Fresh-start1!",
		FirstName: "Grace",
		LastName:  "Achieng",
	})
	require.NoError(t, err)
	require.Equal(t, school.ID, user.SchoolID)
	require.Equal(t, models.RoleTeacher, user.Role)
	require.Equal(t, "new.teacher@hillside.example", user.Email)
	require.True(t, user.IsActive)
	require.True(t, crypto.VerifyPassword(user.Password, "Fresh-start1!"))

	// Redeeming again fails with already used.
	_, err = svc.Redeem(ctx, RedeemInviteInput{Token: token, Password: "x"})
	require.ErrorIs(t, err, ErrInviteAlreadyUsed)
}

func TestInviteServiceRejectsOperatorRole(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")

	svc, err := NewInviteService(db, nil, nil)
	require.NoError(t, err)

	_, _, err = svc.Create(context.Background(), CreateInviteInput{
		SchoolID: school.ID,
		Email:    "ops@classpad.io",
		Role:     models.RolePlatformOperator,
	})
	require.Error(t, err)
}

func TestInviteServiceRejectsExistingUserEmail(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")
	seedUser(t, db, school.ID, models.RoleTeacher, "existing@hillside.example")

	svc, err := NewInviteService(db, nil, nil)
	require.NoError(t, err)

	_, _, err = svc.Create(context.Background(), CreateInviteInput{
		SchoolID: school.ID,
		Email:    "Existing@Hillside.Example",
		Role:     models.RoleParent,
	})
	require.Error(t, err)
}

func TestInviteServiceExpiry(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")

	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, err := NewInviteService(db, nil, nil,
		WithInviteClock(func() time.Time { return current }),
		WithInviteExpiry(time.Hour),
	)
	require.NoError(t, err)

	ctx := context.Background()
	token, _, err := svc.Create(ctx, CreateInviteInput{
		SchoolID: school.ID,
		Email:    "late@hillside.example",
		Role:     models.RoleParent,
	})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, err = svc.Redeem(ctx, RedeemInviteInput{Token: token, Password: "pw"})
	require.ErrorIs(t, err, ErrInviteExpired)
}

func TestInviteServiceUnknownToken(t *testing.T) {
	db := openServiceTestDB(t)

	svc, err := NewInviteService(db, nil, nil)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), RedeemInviteInput{Token: "never-issued", Password: "pw"})
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestInviteServiceSMTPDisabled(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")

	svc, err := NewInviteService(db, disabledMailer{}, nil)
	require.NoError(t, err)

	token, _, err := svc.Create(context.Background(), CreateInviteInput{
		SchoolID: school.ID,
		Email:    "quiet@hillside.example",
		Role:     models.RoleParent,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestInviteServiceListPendingAndPurge(t *testing.T) {
	db := openServiceTestDB(t)
	school := seedSchool(t, db, "Hillside Primary")

	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, err := NewInviteService(db, nil, nil,
		WithInviteClock(func() time.Time { return current }),
		WithInviteExpiry(24*time.Hour),
	)
	require.NoError(t, err)

	ctx := context.Background()

	redeemedToken, _, err := svc.Create(ctx, CreateInviteInput{
		SchoolID: school.ID,
		Email:    "accepted@hillside.example",
		Role:     models.RoleParent,
	})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, RedeemInviteInput{Token: redeemedToken, Password: "pw"})
	require.NoError(t, err)

	_, pending, err := svc.Create(ctx, CreateInviteInput{
		SchoolID: school.ID,
		Email:    "pending@hillside.example",
		Role:     models.RoleTeacher,
	})
	require.NoError(t, err)

	list, err := svc.ListPending(ctx, school.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, pending.ID, list[0].ID)

	// Advancing past expiry leaves nothing pending and everything purgeable.
	current = current.Add(48 * time.Hour)

	list, err = svc.ListPending(ctx, school.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	purged, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), purged)
}

type disabledMailer struct{}

func (disabledMailer) Send(ctx context.Context, msg mail.Message) error {
	return mail.ErrSMTPDisabled
}
