package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/normbook/normbook/apps/api/echo"
	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
	emailsvc "github.com/normbook/normbook/services/email"
	testutil "github.com/normbook/normbook/tests"
)

type fixture struct {
	conf   *core.Config
	server *echoapi.Server
	logger *testutil.LoggerMock
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := testutil.Config()
	logger := &testutil.LoggerMock{}
	_, repo := testutil.NewSeededRepository()
	svc := norm.NewService(nil, repo, conf, logger, emailsvc.NewConsoleServiceMock(conf), nil, nil)

	return fixture{
		conf:   conf,
		logger: logger,
		server: echoapi.NewServer(echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			NormSvc:        svc,
			DisableReqLogs: true,
		}),
	}
}

func (f fixture) token(t *testing.T, actor norm.Actor) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.NewClaims(actor, f.conf, time.Hour), f.conf)
	require.NoError(t, err)
	return token
}

// do serves one request and decodes the JSON response into a generic value.
func (f fixture) do(t *testing.T, method, path, token string, body interface{}) (int, interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, rec := newAuthRequest(method, path, token, buf.Bytes())
	f.server.ServeHTTP(rec, req)

	var data interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &data)
	}
	return rec.Code, data
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	extra    func(t *testing.T, data interface{})
}

func newAuthRequest(method, path, token string, data []byte) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func field(data interface{}, key string) interface{} {
	if m, ok := data.(map[string]interface{}); ok {
		return m[key]
	}
	return nil
}

func runHTTPTests(t *testing.T, f fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, data := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, code, "response: %v", data)
			if tt.extra != nil {
				tt.extra(t, data)
			}
		})
	}
}

func TestServer_home(t *testing.T) {
	f := setup(t)
	req, rec := newAuthRequest(http.MethodGet, "/", "", nil)
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Normbook API!", rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodGet, "/", "", nil)

	req, rec := newAuthRequest(http.MethodGet, "/metrics", "", nil)
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "normbook_http_requests_total")
}

func TestServer_auth(t *testing.T) {
	f := setup(t)

	otherSecret := *f.conf
	otherSecret.Server.JWTSecret = "not-the-secret"
	forged, err := echoapi.GenerateToken(echoapi.NewClaims(testutil.Trainer, &otherSecret, time.Hour), &otherSecret)
	require.NoError(t, err)

	expired, err := echoapi.GenerateToken(echoapi.NewClaims(testutil.Trainer, f.conf, -time.Minute), f.conf)
	require.NoError(t, err)

	wrongIssuer := *f.conf
	wrongIssuer.Server.JWTIssuer = "someone-else"
	foreign, err := echoapi.GenerateToken(echoapi.NewClaims(testutil.Trainer, &wrongIssuer, time.Hour), f.conf)
	require.NoError(t, err)

	runHTTPTests(t, f, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/norms",
			wantCode: http.StatusUnauthorized,
			extra: func(t *testing.T, data interface{}) {
				assert.Equal(t, "missing or malformed jwt", field(data, "error"))
			},
		},
		{name: "forged token", method: http.MethodGet, path: "/v1/norms", token: forged, wantCode: http.StatusUnauthorized},
		{name: "expired token", method: http.MethodGet, path: "/v1/norms", token: expired, wantCode: http.StatusUnauthorized},
		{name: "foreign issuer", method: http.MethodGet, path: "/v1/norms", token: foreign, wantCode: http.StatusUnauthorized},
		{
			name:     "unknown role",
			method:   http.MethodGet,
			path:     "/v1/norms",
			token:    f.token(t, norm.Actor{ID: "parent-1", Role: "PARENT"}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "trainer is not admin",
			method:   http.MethodPost,
			path:     "/v1/group-norms/" + testutil.GroupNormID + "/regrade",
			token:    f.token(t, testutil.Trainer),
			wantCode: http.StatusForbidden,
		},
	})
}

func TestNormAPI_preview(t *testing.T) {
	f := setup(t)
	trainer := f.token(t, testutil.Trainer)
	other := f.token(t, testutil.OtherTrainer)
	path := "/v1/grades/preview"

	runHTTPTests(t, f, []httpTest{
		{
			name:     "student against template",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     map[string]interface{}{"student_id": testutil.BoyID, "template_id": testutil.RunTemplateID, "value": 11},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.EqualValues(t, 4, field(data, "grade"))
				assert.Equal(t, "GRADED", field(data, "status"))
				assert.Equal(t, "TEMPLATE", field(data, "source"))
			},
		},
		{
			name:     "custom group norm boundaries",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     map[string]interface{}{"student_id": testutil.BoyID, "group_norm_id": testutil.CustomGroupNormID, "value": 11},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.EqualValues(t, 5, field(data, "grade"))
				assert.Equal(t, "GROUP_NORM", field(data, "source"))
			},
		},
		{
			name:     "ad-hoc profile without data",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     map[string]interface{}{"gender": "Ж", "class": 9, "template_id": testutil.RunTemplateID, "value": 11},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.Contains(t, data, "grade")
				assert.Nil(t, field(data, "grade"))
				assert.Equal(t, "NO_DATA", field(data, "status"))
				assert.Equal(t, "—", field(data, "display"))
			},
		},
		{
			name:     "invalid request",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     map[string]interface{}{"template_id": testutil.RunTemplateID},
			wantCode: http.StatusBadRequest,
			extra: func(t *testing.T, data interface{}) {
				assert.NotNil(t, field(data, "value"))
			},
		},
		{
			name:     "unknown template",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     map[string]interface{}{"student_id": testutil.BoyID, "template_id": "nope", "value": 11},
			wantCode: http.StatusBadRequest,
			extra: func(t *testing.T, data interface{}) {
				assert.Equal(t, "template not found", field(data, "template_id"))
			},
		},
		{
			name:     "private template",
			method:   http.MethodPost,
			path:     path,
			token:    other,
			body:     map[string]interface{}{"student_id": testutil.Girl7ID, "template_id": testutil.JumpTemplateID, "value": 170},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     path,
			token:    trainer,
			body:     "value=11",
			wantCode: http.StatusBadRequest,
		},
	})
}

func TestNormAPI_lifecycle(t *testing.T) {
	f := setup(t)
	trainer := f.token(t, testutil.Trainer)
	other := f.token(t, testutil.OtherTrainer)
	admin := f.token(t, testutil.Admin)

	code, data := f.do(t, http.MethodPost, "/v1/norms", trainer, map[string]interface{}{
		"student_id": testutil.BoyID, "group_norm_id": testutil.GroupNormID, "value": 13,
	})
	require.Equal(t, http.StatusCreated, code, "response: %v", data)
	assert.EqualValues(t, 3, field(data, "grade"))
	assert.Equal(t, testutil.GroupNormID, field(data, "group_norm_id"))
	assert.Equal(t, testutil.Trainer.ID, field(data, "trainer_id"))
	id, _ := field(data, "id").(string)
	require.NotEmpty(t, id)

	runHTTPTests(t, f, []httpTest{
		{name: "owner reads", method: http.MethodGet, path: "/v1/norms/" + id, token: trainer, wantCode: http.StatusOK},
		{name: "admin reads", method: http.MethodGet, path: "/v1/norms/" + id, token: admin, wantCode: http.StatusOK},
		{name: "other trainer cannot read", method: http.MethodGet, path: "/v1/norms/" + id, token: other, wantCode: http.StatusForbidden},
		{name: "unknown norm", method: http.MethodGet, path: "/v1/norms/nope", token: trainer, wantCode: http.StatusNotFound},
		{
			name:     "update regrades",
			method:   http.MethodPut,
			path:     "/v1/norms/" + id,
			token:    trainer,
			body:     map[string]interface{}{"value": 9.5},
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.EqualValues(t, 5, field(data, "grade"))
				assert.EqualValues(t, 9.5, field(data, "value"))
			},
		},
		{
			name:     "owner lists",
			method:   http.MethodGet,
			path:     "/v1/norms?group_norm_id=" + testutil.GroupNormID + "&status=graded",
			token:    trainer,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.Len(t, data, 1)
			},
		},
		{
			name:     "other trainer lists nothing",
			method:   http.MethodGet,
			path:     "/v1/norms",
			token:    other,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.Equal(t, []interface{}{}, data)
			},
		},
		{
			name:     "invalid status filter",
			method:   http.MethodGet,
			path:     "/v1/norms?status=lost",
			token:    trainer,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "admin regrades",
			method:   http.MethodPost,
			path:     "/v1/group-norms/" + testutil.GroupNormID + "/regrade",
			token:    admin,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.EqualValues(t, 0, field(data, "changed"))
			},
		},
		{
			name:     "regrade unknown group norm",
			method:   http.MethodPost,
			path:     "/v1/group-norms/nope/regrade",
			token:    admin,
			wantCode: http.StatusNotFound,
		},
	})
}

func TestNormAPI_audit(t *testing.T) {
	f := setup(t)
	trainer := f.token(t, testutil.Trainer)
	other := f.token(t, testutil.OtherTrainer)

	runHTTPTests(t, f, []httpTest{
		{
			name:     "clean template",
			method:   http.MethodGet,
			path:     "/v1/templates/" + testutil.RunTemplateID + "/audit",
			token:    trainer,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.Equal(t, true, field(data, "valid"))
				assert.Equal(t, []interface{}{}, field(data, "issues"))
			},
		},
		{
			name:     "open-ended bounds",
			method:   http.MethodGet,
			path:     "/v1/templates/" + testutil.PullUpsTemplateID + "/audit",
			token:    trainer,
			wantCode: http.StatusOK,
			extra: func(t *testing.T, data interface{}) {
				assert.Equal(t, true, field(data, "valid"))
			},
		},
		{
			name:     "custom group norm",
			method:   http.MethodGet,
			path:     "/v1/group-norms/" + testutil.CustomGroupNormID + "/audit",
			token:    trainer,
			wantCode: http.StatusOK,
		},
		{
			name:     "private template",
			method:   http.MethodGet,
			path:     "/v1/templates/" + testutil.JumpTemplateID + "/audit",
			token:    other,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "group norm of another trainer",
			method:   http.MethodGet,
			path:     "/v1/group-norms/" + testutil.GroupNormID + "/audit",
			token:    other,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown template",
			method:   http.MethodGet,
			path:     "/v1/templates/nope/audit",
			token:    trainer,
			wantCode: http.StatusNotFound,
		},
	})
}
