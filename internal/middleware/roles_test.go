package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/models"
)

func roleRouter(identity auth.Identity, allowed ...models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", Chain(seedIdentity(identity), RequireRole(allowed...)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func identityWithRole(role models.Role) auth.Identity {
	identity := auth.Identity{SubjectID: "subject-1", Role: role, SchoolID: "SCH0001"}
	if role == models.RolePlatformOperator {
		identity.SchoolID = ""
		identity.CrossTenant = true
	}
	return identity
}

func TestRequireRoleAdmitsMember(t *testing.T) {
	r := roleRouter(identityWithRole(models.RoleTeacher), models.RoleTeacher)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoleAdmitsOutrankingRole(t *testing.T) {
	tests := []struct {
		caller  models.Role
		allowed []models.Role
	}{
		{models.RoleTenantAdmin, []models.Role{models.RoleTeacher}},
		{models.RolePlatformOperator, []models.Role{models.RoleTeacher}},
		{models.RolePlatformOperator, []models.Role{models.RoleTenantAdmin}},
		{models.RoleTenantAdmin, []models.Role{models.RoleTeacher, models.RoleParent}},
	}

	for _, tt := range tests {
		r := roleRouter(identityWithRole(tt.caller), tt.allowed...)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusOK, w.Code, "caller %s allowed %v", tt.caller, tt.allowed)
	}
}

func TestRequireRoleDeniesLowerRole(t *testing.T) {
	r := roleRouter(identityWithRole(models.RoleParent), models.RoleTeacher)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	message, code := denialBody(t, w)
	require.Equal(t, "INSUFFICIENT_ROLE", code)
	require.Contains(t, message, "parent")
	require.Contains(t, message, "teacher")
}

func TestRequireRoleDenialNamesFullSet(t *testing.T) {
	r := roleRouter(identityWithRole(models.RoleParent), models.RoleTenantAdmin, models.RoleTeacher)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	message, _ := denialBody(t, w)
	require.Contains(t, message, "tenant-admin or teacher")
}

func TestRequireRolePeerIsNotEnough(t *testing.T) {
	// tenant-admin does not outrank the operator.
	r := roleRouter(identityWithRole(models.RoleTenantAdmin), models.RolePlatformOperator)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoleUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", Chain(RequireRole(models.RoleTeacher)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
