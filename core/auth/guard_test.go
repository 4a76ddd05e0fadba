package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/portal/core/auth"
	testutil "github.com/trezcool/portal/tests"
)

// stubVerifier accepts any token except "bad", using the token itself as jti ("-" for none).
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (*auth.Claims, error) {
	switch token {
	case "bad":
		return nil, auth.ErrInvalidToken
	case "panic":
		panic("verifier exploded")
	case "-":
		return &auth.Claims{Username: "anon"}, nil
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{ID: token}}, nil
}

type failingBlacklistRepo struct {
	auth.BlacklistRepository
}

func (failingBlacklistRepo) IsTokenBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header, want string
		ok           bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "BEARER   abc ", want: "abc", ok: true},
		{header: ""},
		{header: "Bearer"},
		{header: "Basic dXNlcjpwd2Q="},
		{header: "Bearer abc def"},
	}
	for _, tt := range tests {
		got, ok := auth.ExtractBearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractBearerToken(%q) = %q, %v, want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGuard_VerifyAuth(t *testing.T) {
	ctx := context.Background()
	bl := newBlacklist()
	require.NoError(t, bl.Add(ctx, "abc", time.Now().Add(time.Hour)))
	guard := auth.NewGuard(stubVerifier{}, bl, testutil.NewLogger())

	tests := []struct {
		name       string
		header     string
		wantOK     bool
		wantReason auth.RejectionReason
	}{
		{name: "no header", wantReason: auth.ReasonMissingToken},
		{name: "wrong scheme", header: "Token xyz", wantReason: auth.ReasonMissingToken},
		{name: "invalid token", header: "Bearer bad", wantReason: auth.ReasonInvalidToken},
		{name: "blacklisted jti", header: "Bearer abc", wantReason: auth.ReasonBlacklisted},
		{name: "other jti", header: "Bearer xyz", wantOK: true},
		{name: "no jti", header: "Bearer -", wantOK: true},
		{name: "verifier panic", header: "Bearer panic", wantReason: auth.ReasonStoreFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := guard.VerifyAuth(ctx, tt.header)
			assert.Equal(t, tt.wantOK, res.Accepted())
			assert.Equal(t, tt.wantReason, res.Reason())
			if tt.wantOK {
				assert.NotNil(t, res.Claims())
			} else {
				assert.Nil(t, res.Claims())
			}
		})
	}
}

func TestGuard_VerifyAuth_failsClosed(t *testing.T) {
	bl := auth.NewBlacklist(failingBlacklistRepo{}, testutil.NewLogger())
	guard := auth.NewGuard(stubVerifier{}, bl, testutil.NewLogger())

	res := guard.VerifyAuth(context.Background(), "Bearer xyz")
	assert.False(t, res.Accepted())
	assert.Equal(t, auth.ReasonStoreFailure, res.Reason())

	// tokens without jti never reach the store
	res = guard.VerifyAuth(context.Background(), "Bearer -")
	assert.True(t, res.Accepted())
}
