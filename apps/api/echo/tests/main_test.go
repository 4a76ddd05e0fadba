package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/portal/apps/api/echo"
	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/grade"
	"github.com/trezcool/portal/core/user"
	inmemdb "github.com/trezcool/portal/storage/database/inmem"
	"github.com/trezcool/portal/tests"
)

var errUnauthenticated = httpErr{Error: "user not authenticated"}

type testApp struct {
	server  *echoapi.Server
	usrRepo user.Repository
	issuer  *auth.TokenIssuer
}

type setupOption func(conf *core.Config, windows *auth.WindowRepository)

func withRateLimit(limit int) setupOption {
	return func(conf *core.Config, _ *auth.WindowRepository) {
		conf.RateLimit.Limit = limit
	}
}

func withWindows(repo auth.WindowRepository) setupOption {
	return func(_ *core.Config, windows *auth.WindowRepository) {
		*windows = repo
	}
}

func setup(t *testing.T, opts ...setupOption) testApp {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Server.DisableReqLogs = true
	logger := testutil.NewLogger()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	windows := inmemdb.NewWindowRepository(db)
	for _, opt := range opts {
		opt(conf, &windows)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	grade.InitValidators(validate, translator)

	// set up services
	issuer := auth.NewTokenIssuer(conf)
	blacklist := auth.NewBlacklist(inmemdb.NewBlacklistRepository(db), logger)

	// set up server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     user.NewService(usrRepo, logger),
		GradeSvc:    grade.NewService(inmemdb.NewMarkRepository(db), conf),
		Issuer:      issuer,
		Guard:       auth.NewGuard(issuer, blacklist, logger),
		Blacklist:   blacklist,
		RateLimiter: auth.NewRateLimiter(windows),
		Validate:    validate,
		Translator:  translator,
	})
	return testApp{server: server, usrRepo: usrRepo, issuer: issuer}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (app testApp) getToken(t *testing.T, usr user.User) string {
	token, err := app.issuer.Issue(app.issuer.ClaimsFor(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// failingWindows is a rate limit store that is always down.
type failingWindows struct{}

var errStoreDown = errors.New("store down")

func (failingWindows) GetWindow(context.Context, auth.WindowKey) (auth.Window, error) {
	return auth.Window{}, errStoreDown
}

func (failingWindows) CreateWindow(context.Context, auth.WindowKey, time.Time, time.Duration) error {
	return errStoreDown
}

func (failingWindows) IncrementWindow(context.Context, auth.WindowKey) error {
	return errStoreDown
}

func (failingWindows) DeleteWindowsBefore(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}

// closedWindows is a rate limit store whose client was closed.
type closedWindows struct {
	failingWindows
}

func (closedWindows) DeleteWindowsBefore(context.Context, time.Time) (int64, error) {
	return 0, core.NewShutdownError("redis client closed", errors.New("redis: client is closed"))
}
