package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/portal/apps/api/echo"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/user"
	"github.com/trezcool/portal/tests"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t)
	pwd := "mypassword"
	testutil.CreateUser(t, app.usrRepo, "Mwalimu", "mwalimu", "mwalimu@test.cd", pwd, []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, app.usrRepo, "Gone", "gone", "gone@test.cd", pwd, nil, false)

	authFailed := marshalObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/v1/auth/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/auth/login",
			body:     marshalObj(t, echoapi.LoginRequest{Username: "nobody", Password: pwd}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login",
			body:     marshalObj(t, echoapi.LoginRequest{Username: "mwalimu", Password: "wrong"}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "inactive user", method: http.MethodPost, path: "/v1/auth/login",
			body:     marshalObj(t, echoapi.LoginRequest{Username: "gone", Password: pwd}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success (email, any case)", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/auth/login", "",
			marshalObj(t, echoapi.LoginRequest{Username: " MWALIMU@test.cd", Password: pwd}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		claims, err := app.issuer.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "mwalimu", claims.Username)
		assert.True(t, claims.IsTeacher)
		assert.NotEmpty(t, claims.ID)

		usr, err := user.NewService(app.usrRepo, testutil.NewLogger()).GetByUsernameOrEmail(context.Background(), "mwalimu")
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero())
	})
}

func Test_authApi_me(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "Mwanafunzi", "mwanafunzi", "", "", []string{user.RoleStudent}, true)
	token := app.getToken(t, usr)

	unauthenticated := marshalObj(t, errUnauthenticated)
	tests := []httpTest{
		{name: "no token", path: "/v1/auth/me", wantCode: http.StatusUnauthorized, wantData: unauthenticated},
		{name: "garbage token", path: "/v1/auth/me", token: "not.a.jwt", wantCode: http.StatusUnauthorized, wantData: unauthenticated},
		{name: "tampered token", path: "/v1/auth/me", token: token + "x", wantCode: http.StatusUnauthorized, wantData: unauthenticated},
	}
	runHTTPTests(t, app, tests)

	t.Run("wrong scheme", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", "")
		req.Header.Set("Authorization", "Token "+token)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: unauthenticated}, rec)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", "")
		req.Header.Set("Authorization", "bearer "+token)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/auth/me", token)
		require.Equal(t, http.StatusOK, rec.Code)

		var claims auth.Claims
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
		assert.Equal(t, usr.ID, claims.Subject)
		assert.Equal(t, "mwanafunzi", claims.Username)
		assert.True(t, claims.IsStudent)
	})
}

func Test_authApi_logout(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "Mwanafunzi", "mwanafunzi", "", "", []string{user.RoleStudent}, true)
	token := app.getToken(t, usr)
	other := app.getToken(t, usr)

	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/v1/auth/me", token).Code)
	assert.Equal(t, http.StatusNoContent, app.do(http.MethodPost, "/v1/auth/logout", token).Code)

	// a valid signature is not enough once the jti is revoked
	rec := app.do(http.MethodGet, "/v1/auth/me", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errUnauthenticated)}, rec)
	assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodPost, "/v1/auth/logout", token).Code)

	// other sessions are untouched
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/v1/auth/me", other).Code)
}

func Test_authApi_refreshToken(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "Mwalimu", "mwalimu", "", "", []string{user.RoleTeacher}, true)
	token := app.getToken(t, usr)

	rec := app.do(http.MethodPost, "/v1/auth/token-refresh", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, token, resp.Token)

	oldClaims, err := app.issuer.Verify(token)
	require.NoError(t, err)
	newClaims, err := app.issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, oldClaims.OrigIssuedAt, newClaims.OrigIssuedAt)
	assert.NotEqual(t, oldClaims.ID, newClaims.ID)

	assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/v1/auth/me", token).Code)
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/v1/auth/me", resp.Token).Code)

	t.Run("refresh expired", func(t *testing.T) {
		claims := app.issuer.ClaimsFor(usr, time.Now().Add(-5*time.Hour).Unix())
		stale, err := app.issuer.Issue(claims)
		require.NoError(t, err)

		rec := app.do(http.MethodPost, "/v1/auth/token-refresh", stale)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})}, rec)
	})
}

func Test_authApi_revoke(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "", "", []string{user.RoleAdminPrincipal}, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Mwalimu", "mwalimu", "", "", []string{user.RoleTeacher}, true)
	adminToken := app.getToken(t, admin)
	teacherToken := app.getToken(t, teacher)

	teacherClaims, err := app.issuer.Verify(teacherToken)
	require.NoError(t, err)
	revoke := marshalObj(t, echoapi.RevokeRequest{JTI: teacherClaims.ID, ExpiresAt: teacherClaims.Expiry()})

	tests := []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/auth/revoke", body: revoke,
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errUnauthenticated),
		},
		{
			name: "admin required", method: http.MethodPost, path: "/v1/auth/revoke", body: revoke, token: teacherToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "jti required", method: http.MethodPost, path: "/v1/auth/revoke", token: adminToken,
			body:     marshalObj(t, echoapi.RevokeRequest{JTI: "  ", ExpiresAt: teacherClaims.Expiry()}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"jti": "this field is required"}),
		},
		{
			name: "revoked", method: http.MethodPost, path: "/v1/auth/revoke", body: revoke, token: adminToken,
			wantCode: http.StatusOK, wantData: marshalObj(t, echoapi.SuccessResponse{Success: "Token has been revoked."}),
		},
		{
			name: "revoked twice", method: http.MethodPost, path: "/v1/auth/revoke", body: revoke, token: adminToken,
			wantCode: http.StatusOK,
		},
		{
			name: "revoked token rejected", path: "/v1/auth/me", token: teacherToken,
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errUnauthenticated),
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_rateLimit(t *testing.T) {
	t.Run("N allowed, N+1 throttled", func(t *testing.T) {
		app := setup(t, withRateLimit(2))

		assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/", "").Code)
		assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/", "").Code)
		rec := app.do(http.MethodGet, "/", "")
		checkCodeAndData(t, httpTest{wantCode: http.StatusTooManyRequests, wantData: marshalObj(t, httpErr{Error: "too many requests"})}, rec)

		// other endpoints (query string included) have their own windows
		assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/v1/auth/me", "").Code)
		assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/v1/auth/me?x=1", "").Code)
	})

	t.Run("throttled before auth", func(t *testing.T) {
		app := setup(t, withRateLimit(1))

		assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/v1/auth/me", "").Code)
		assert.Equal(t, http.StatusTooManyRequests, app.do(http.MethodGet, "/v1/auth/me", "").Code)
		assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/v1/auth/me?x=1", "").Code)
		assert.Equal(t, http.StatusTooManyRequests, app.do(http.MethodGet, "/v1/auth/me?x=1", "").Code)
	})

	t.Run("store down", func(t *testing.T) {
		app := setup(t, withWindows(failingWindows{}))

		rec := app.do(http.MethodGet, "/", "")
		checkCodeAndData(t, httpTest{wantCode: http.StatusServiceUnavailable, wantData: marshalObj(t, httpErr{Error: "service unavailable"})}, rec)

		select {
		case <-app.server.ShutdownSignal():
			t.Error("unexpected shutdown signal")
		default:
		}
	})

	t.Run("store closed", func(t *testing.T) {
		app := setup(t, withWindows(closedWindows{}))

		rec := app.do(http.MethodGet, "/", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis client closed")

		select {
		case <-app.server.ShutdownSignal():
		case <-time.After(time.Second):
			t.Error("no shutdown signal")
		}
	})
}
