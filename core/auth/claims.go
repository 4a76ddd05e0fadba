// Package auth guards protected calls: bearer token verification, token revocation (blacklist)
// and fixed-window rate limiting per (client ip, endpoint).
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/user"
)

var (
	// errors
	ErrInvalidToken   = errors.New("invalid token")
	ErrRefreshExpired = errors.New("refresh has expired")

	nowFunc = time.Now // mockable
)

// Claims represents the authorization claims transmitted via a JWT. RegisteredClaims.ID is the jti.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"`
	IsTeacher    bool     `json:"is_teacher,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// HasAnyRole reports whether the claims carry one of roles (prefix match, eg. "teacher:").
// Admins pass every role check, and so does an empty roles list.
func (c Claims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 || c.IsAdmin {
		return true
	}
	for _, role := range roles {
		if user.HasRolePrefix(c.Roles, role) {
			return true
		}
	}
	return false
}

// Expiry returns the expiry of the token, the zero time if it has none.
func (c Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Person identifies the token bearer in log entries.
func (c Claims) Person() core.Person {
	return core.Person{ID: c.Subject, Username: c.Username, Email: c.Email}
}

// Verifier checks a raw token string and returns its claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// TokenIssuer signs & verifies HS256 JWTs.
type TokenIssuer struct {
	key            []byte
	issuer         string
	lifetime       time.Duration
	refreshTimeout time.Duration
}

var _ Verifier = (*TokenIssuer)(nil)

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		key:            []byte(conf.SecretKey),
		issuer:         conf.AppName,
		lifetime:       conf.Server.JWTExpirationDelta,
		refreshTimeout: conf.Server.JWTRefreshExpirationDelta,
	}
}

// ClaimsFor builds fresh claims for usr, with a new jti. origIat is kept on refresh.
func (ti *TokenIssuer) ClaimsFor(usr user.User, origIat ...int64) *Claims {
	now := nowFunc()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   usr.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// Issue signs claims into a token string.
func (ti *TokenIssuer) Issue(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify parses token, checking its signature, algorithm & expiry.
// Every failure is reported as ErrInvalidToken wrapping the cause.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.key, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh issues new claims for usr keeping the original issued-at,
// as long as the refresh window opened at login has not elapsed.
func (ti *TokenIssuer) Refresh(claims Claims, usr user.User) (*Claims, error) {
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(ti.refreshTimeout)
	if nowFunc().After(expTime) {
		return nil, ErrRefreshExpired
	}
	return ti.ClaimsFor(usr, claims.OrigIssuedAt), nil
}
