package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	echoapi "github.com/cwarwicker/elbp/apps/api/echo"
	"github.com/cwarwicker/elbp/apps/container"
	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	srv     *echoapi.Server
	c       *container.Container
	usrRepo user.Repository

	admin   user.User
	teacher user.User
	tutor   user.User
	student user.User
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig(t.TempDir())
	db := testutil.PrepareDB(t)
	c := container.New(conf, db, &testutil.Logger{}, &testutil.Mailer{})

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         c.Logger,
		Validate:       c.Validate,
		Translator:     c.Translator,
		DisableReqLogs: true,
		UserSvc:        c.Users,
		CourseSvc:      c.Courses,
		PluginMgr:      c.Plugins,
		CustomSvc:      c.Custom,
		LayoutSvc:      c.Layouts,
		SettingSvc:     c.Settings,
		DashboardSvc:   c.Dashboard,
		TutorSvc:       c.Tutors,
		FileSvc:        c.Files,
		AlertSvc:       c.Alerts,
		MISSvc:         c.MIS,
		Resolver:       c.Resolver,
	})

	usrRepo := sqlxrepos.NewUserRepository(db)
	return fixture{
		srv:     srv,
		c:       c,
		usrRepo: usrRepo,
		admin:   testutil.CreateUser(t, usrRepo, "Ada Admin", "ada", "ada@example.com", "Sup3r-s3cret!", []string{user.RoleAdmin}, true),
		teacher: testutil.CreateUser(t, usrRepo, "Tom Teacher", "tom", "tom@example.com", "", []string{user.RoleTeacher}, true),
		tutor:   testutil.CreateUser(t, usrRepo, "Tia Tutor", "tia", "tia@example.com", "", []string{user.RoleTutor}, true),
		student: testutil.CreateUser(t, usrRepo, "Sam Student", "sam", "sam@example.com", "", []string{user.RoleStudent}, true),
	}
}

type httpErr struct {
	Error string `json:"error"`
}

func (f fixture) token(t *testing.T, usr user.User) string {
	token, err := f.srv.GenerateToken(usr)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

// do sends the request as usr (anonymous when nil), marshalling body unless it is already []byte.
func (f fixture) do(t *testing.T, method, path string, usr *user.User, body ...interface{}) *httptest.ResponseRecorder {
	var token string
	if usr != nil {
		token = f.token(t, *usr)
	}
	var data [][]byte
	if len(body) > 0 {
		data = append(data, marshallObj(t, body[0]))
	}
	req, rec := newAuthRequest(method, path, token, data...)
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f fixture) upload(t *testing.T, path string, usr user.User, filename string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token(t, usr))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	if b, ok := obj.([]byte); ok {
		return b
	}
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

type httpTest struct {
	name     string
	method   string
	path     string
	usr      *user.User
	body     interface{}
	wantCode int
	wantData interface{}
}

// run checks the status code of every test, and the JSON body when wantData is set.
func (f fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			var rec *httptest.ResponseRecorder
			if tt.body != nil {
				rec = f.do(t, method, tt.path, tt.usr, tt.body)
			} else {
				rec = f.do(t, method, tt.path, tt.usr)
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantData != nil {
				require.JSONEq(t, string(marshallObj(t, tt.wantData)), rec.Body.String())
			}
		})
	}
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}
