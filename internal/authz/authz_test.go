package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)
	tok, exp, err := j.Sign(Principal{UserID: "u1", Email: "a@b.fr", Role: models.RoleAdmin, FullName: "Ada Lovelace"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	p, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.True(t, p.Staff())

	_, err = NewJWT("other", time.Hour).Parse(tok)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	j := NewJWT("s3cret", time.Minute)
	j.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err := j.Sign(Principal{UserID: "u1", Role: models.RoleUser})
	require.NoError(t, err)

	_, err = NewJWT("s3cret", time.Minute).Parse(tok)
	assert.Error(t, err)
}

func TestJWTEmptySecretRefused(t *testing.T) {
	j := NewJWT("", time.Hour)
	_, _, err := j.Sign(Principal{UserID: "u1", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrNoSecret)

	// A token signed with the empty key must not authenticate anyone.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "attacker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte{})
	require.NoError(t, err)

	_, err = j.Parse(forged)
	assert.ErrorIs(t, err, ErrNoSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+forged)
	_, err = FromRequest(r, j, false)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFromRequest(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)
	tok, _, err := j.Sign(Principal{UserID: "u2", Role: models.RoleSupervisor})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := FromRequest(r, j, false)
	require.NoError(t, err)
	assert.Equal(t, "u2", p.UserID)

	r = httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	p, err = FromRequest(r, j, false)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, p.Role)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-user-sub", "dev")
	r.Header.Set("x-user-role", "supervisor")
	_, err = FromRequest(r, j, false)
	assert.ErrorIs(t, err, ErrUnauthorized)
	p, err = FromRequest(r, j, true)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "dev", Role: models.RoleSupervisor}, p)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(NewJWT("s3cret", time.Hour), true))
	router.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(sub, role string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if sub != "" {
			req.Header.Set("x-user-sub", sub)
			req.Header.Set("x-user-role", role)
		}
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do("", ""))
	assert.Equal(t, http.StatusForbidden, do("u1", "user"))
	assert.Equal(t, http.StatusOK, do("a1", "admin"))
}

func TestSelfOrStaff(t *testing.T) {
	assert.NoError(t, SelfOrStaff(Principal{UserID: "u1", Role: models.RoleUser}, "u1"))
	assert.Error(t, SelfOrStaff(Principal{UserID: "u1", Role: models.RoleUser}, "u2"))
	assert.NoError(t, SelfOrStaff(Principal{UserID: "s1", Role: models.RoleSupervisor}, "u2"))
}
