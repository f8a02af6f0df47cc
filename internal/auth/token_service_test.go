package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classpad/classpad/internal/models"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func newTestTokenService(t *testing.T, clock *testClock) *TokenService {
	t.Helper()

	svc, err := NewTokenService(TokenConfig{
		TenantAccessSecret:    "tenant-access-secret",
		TenantRefreshSecret:   "tenant-refresh-secret",
		PlatformAccessSecret:  "platform-access-secret",
		PlatformRefreshSecret: "platform-refresh-secret",
		Issuer:                "classpad",
		TenantAccessTTL:       time.Hour,
		TenantRefreshTTL:      24 * time.Hour,
		PlatformAccessTTL:     30 * time.Minute,
		PlatformRefreshTTL:    12 * time.Hour,
		Clock:                 clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func tenantIdentity() Identity {
	return Identity{
		SubjectID: "user-1",
		Role:      models.RoleTenantAdmin,
		SchoolID:  "SCH0001",
		Email:     "admin@sch0001.example",
		Name:      "Ada Admin",
	}
}

func platformIdentity() Identity {
	return Identity{
		SubjectID:   "platform-operator",
		Role:        models.RolePlatformOperator,
		Email:       "ops@classpad.io",
		CrossTenant: true,
	}
}

func TestNewTokenServiceRequiresAllSecrets(t *testing.T) {
	_, err := NewTokenService(TokenConfig{
		TenantAccessSecret:   "a",
		TenantRefreshSecret:  "b",
		PlatformAccessSecret: "c",
	})
	require.Error(t, err)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)
	identity := tenantIdentity()

	pair, err := svc.Issue(identity, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.EqualValues(t, 3600, pair.ExpiresIn)

	claims, err := svc.VerifyAccess(ClassTenant, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, identity, claims.Identity())
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, UseAccess, claims.TokenUse)

	refreshClaims, err := svc.VerifyRefresh(ClassTenant, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, identity, refreshClaims.Identity())
	require.Equal(t, UseRefresh, refreshClaims.TokenUse)
}

func TestIssueAppliesClassLifetimes(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)

	tenantPair, err := svc.Issue(tenantIdentity(), "")
	require.NoError(t, err)
	require.EqualValues(t, 3600, tenantPair.ExpiresIn)

	platformPair, err := svc.Issue(platformIdentity(), "")
	require.NoError(t, err)
	require.EqualValues(t, 1800, platformPair.ExpiresIn)

	// 13h later the platform refresh token is gone while the tenant one,
	// minted at the same instant, still verifies.
	clock.Advance(13 * time.Hour)
	_, err = svc.VerifyRefresh(ClassPlatform, platformPair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = svc.VerifyRefresh(ClassTenant, tenantPair.RefreshToken)
	require.NoError(t, err)
}

func TestIssueRejectsInvalidIdentities(t *testing.T) {
	svc := newTestTokenService(t, newTestClock())

	missingSchool := tenantIdentity()
	missingSchool.SchoolID = ""
	_, err := svc.Issue(missingSchool, "")
	require.Error(t, err)

	scopedOperator := platformIdentity()
	scopedOperator.SchoolID = "SCH0001"
	_, err = svc.Issue(scopedOperator, "")
	require.Error(t, err)

	unknownRole := tenantIdentity()
	unknownRole.Role = "headmaster"
	_, err = svc.Issue(unknownRole, "")
	require.Error(t, err)
}

func TestCrossClassRejection(t *testing.T) {
	svc := newTestTokenService(t, newTestClock())

	tenantPair, err := svc.Issue(tenantIdentity(), "")
	require.NoError(t, err)
	platformPair, err := svc.Issue(platformIdentity(), "")
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ClassPlatform, tenantPair.AccessToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyAccess(ClassTenant, platformPair.AccessToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyRefresh(ClassTenant, platformPair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyRefresh(ClassPlatform, tenantPair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestAccessAndRefreshAreNotInterchangeable(t *testing.T) {
	svc := newTestTokenService(t, newTestClock())

	pair, err := svc.Issue(tenantIdentity(), "session-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ClassTenant, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyRefresh(ClassTenant, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExpiredTokensReportExpiredNotMalformed(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)

	pair, err := svc.Issue(tenantIdentity(), "session-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = svc.VerifyAccess(ClassTenant, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.NotErrorIs(t, err, ErrTokenMalformed)

	clock.Advance(48 * time.Hour)
	_, err = svc.VerifyRefresh(ClassTenant, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	svc := newTestTokenService(t, newTestClock())

	pair, err := svc.Issue(tenantIdentity(), "")
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.VerifyAccess(ClassTenant, tampered)
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyAccess(ClassTenant, "not-a-token")
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyAccess(ClassTenant, "")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)

	other, err := NewTokenService(TokenConfig{
		TenantAccessSecret:    "tenant-access-secret",
		TenantRefreshSecret:   "tenant-refresh-secret",
		PlatformAccessSecret:  "platform-access-secret",
		PlatformRefreshSecret: "platform-refresh-secret",
		Issuer:                "someone-else",
		Clock:                 clock.Now,
	})
	require.NoError(t, err)

	pair, err := other.Issue(tenantIdentity(), "")
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ClassTenant, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestResolveAccessPrefersPlatform(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)

	platformPair, err := svc.Issue(platformIdentity(), "")
	require.NoError(t, err)
	tenantPair, err := svc.Issue(tenantIdentity(), "")
	require.NoError(t, err)

	claims, class, err := svc.ResolveAccess(platformPair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, ClassPlatform, class)
	require.Equal(t, models.RolePlatformOperator.String(), claims.Role)

	claims, class, err = svc.ResolveAccess(tenantPair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, ClassTenant, class)
	require.Equal(t, "SCH0001", claims.SchoolID)

	_, _, err = svc.ResolveAccess("garbage")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestResolveAccessReportsExpiredPlatformTokens(t *testing.T) {
	clock := newTestClock()
	svc := newTestTokenService(t, clock)

	pair, err := svc.Issue(platformIdentity(), "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, _, err = svc.ResolveAccess(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}
