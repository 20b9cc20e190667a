// Package authz provides authorization utilities.
package authz

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// ErrUnauthorized is returned when a request carries no usable identity.
var ErrUnauthorized = apperr.Unauthorized("unauthorized")

// ErrNoSecret is returned by Sign and Parse when the issuer has an empty key.
var ErrNoSecret = errors.New("jwt secret is empty")

const (
	devBypassHeader = "x-user-sub"
	devRoleHeader   = "x-user-role"
	principalKey    = "authz.principal"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Email    string
	Role     models.Role
	FullName string
}

// Staff reports whether the caller is an admin or a supervisor.
func (p Principal) Staff() bool { return p.Role.Staff() }

// Claims is the JWT payload.
type Claims struct {
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	FullName string      `json:"fullname"`
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT returns a token issuer with the given secret and lifetime.
func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for p.
func (j *JWT) Sign(p Principal) (string, time.Time, error) {
	if len(j.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	now := j.now()
	exp := now.Add(j.ttl)
	claims := Claims{
		Email:    p.Email,
		Role:     p.Role,
		FullName: p.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	return tok, exp, err
}

// Parse verifies token and returns its principal.
func (j *JWT) Parse(token string) (Principal, error) {
	if len(j.secret) == 0 {
		return Principal{}, ErrNoSecret
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now))
	if err != nil {
		return Principal{}, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Principal{}, errors.New("invalid token")
	}
	return Principal{UserID: c.Subject, Email: c.Email, Role: c.Role, FullName: c.FullName}, nil
}

// bearer extracts the token from an Authorization header value.
func bearer(auth string) string {
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// FromRequest resolves the caller from the dev bypass headers, the
// Authorization header or, for websocket upgrades, the token query parameter.
func FromRequest(r *http.Request, j *JWT, devBypass bool) (Principal, error) {
	// 0) Dev bypass header
	if devBypass {
		if sub := strings.TrimSpace(r.Header.Get(devBypassHeader)); sub != "" {
			role, ok := models.ParseRole(r.Header.Get(devRoleHeader))
			if !ok {
				role = models.RoleUser
			}
			return Principal{UserID: sub, Role: role}, nil
		}
	}

	// 1) Bearer token
	tok := bearer(r.Header.Get("Authorization"))
	if tok == "" {
		tok = r.URL.Query().Get("token")
	}
	if tok == "" {
		return Principal{}, ErrUnauthorized
	}
	p, err := j.Parse(tok)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	return p, nil
}

// Middleware rejects requests without a valid identity.
func Middleware(j *JWT, devBypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := FromRequest(c.Request, j, devBypass)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Optional attaches the identity when one is present.
func Optional(j *JWT, devBypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, err := FromRequest(c.Request, j, devBypass); err == nil {
			c.Set(principalKey, p)
		}
		c.Next()
	}
}

// RequireRole allows only callers holding one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Current(c)
		if !ok {
			httpx.Fail(c, ErrUnauthorized)
			return
		}
		if !slices.Contains(roles, p.Role) {
			httpx.Fail(c, apperr.Forbidden("access denied"))
			return
		}
		c.Next()
	}
}

// Current returns the caller attached by Middleware or Optional.
func Current(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// SelfOrStaff allows the caller to act on userID when it is their own
// account or when they are staff.
func SelfOrStaff(p Principal, userID string) error {
	if p.UserID == userID || p.Staff() {
		return nil
	}
	return apperr.Forbidden("access denied")
}
