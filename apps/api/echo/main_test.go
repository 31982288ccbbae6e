package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
	emailsvc "github.com/odinschool/odin/services/email"
	logsvc "github.com/odinschool/odin/services/logger"
	"github.com/odinschool/odin/storage/database/sqlxrepos"
	"github.com/odinschool/odin/storage/uploads"
	testutil "github.com/odinschool/odin/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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
	extra    interface{}
}

// auditRecorder keeps the access attempts it is told about.
type auditRecorder struct {
	mu       sync.Mutex
	attempts []core.AccessAttempt
}

func (r *auditRecorder) AccessDenied(attempt core.AccessAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func (r *auditRecorder) Attempts() []core.AccessAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.AccessAttempt(nil), r.attempts...)
}

func (r *auditRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = nil
}

type testEnv struct {
	conf    *core.Config
	db      *sqlx.DB
	app     *Server
	usrRepo user.Repository
	crsRepo course.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	audit   *auditRecorder
}

func setup(t *testing.T) *testEnv {
	conf := testutil.Config(t)
	db := testutil.PrepareDB(t, conf)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "API : ", log.LstdFlags), conf)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	crsRepo := sqlxrepos.NewCourseRepository(db)
	asgRepo := sqlxrepos.NewAssignmentRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	audit := new(auditRecorder)

	app := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Audit:      audit,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(usrRepo, mailSvc, conf),
		CourseSvc:  course.NewService(db, crsRepo),
		AssignmentSvc: assignment.NewService(
			db, asgRepo, crsRepo, uploads.NewLocalStore(conf.Uploads.Dir), mailSvc, logger, conf,
		),
	})

	return &testEnv{
		conf:    conf,
		db:      db,
		app:     app,
		usrRepo: usrRepo,
		crsRepo: crsRepo,
		mailSvc: mailSvc,
		audit:   audit,
	}
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, env.conf), env.conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) countRows(t *testing.T, table, where string, args ...interface{}) int {
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var cnt int
	if err := env.db.Get(&cnt, env.db.Rebind(q), args...); err != nil {
		t.Fatalf("countRows(%s) failed: %v", table, err)
	}
	return cnt
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
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newFormRequest(path, token string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

// newMultipartRequest builds a multipart POST; the file part is only added if filename is not blank.
func newMultipartRequest(t *testing.T, path, token string, fields map[string]string, filename string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

// createUser creates an active user named after the local part of email, which is also its school ID.
func (env *testEnv) createUser(t *testing.T, email string, role user.Role, pwd ...string) user.User {
	local := strings.SplitN(email, "@", 2)[0]
	var password string
	if len(pwd) > 0 {
		password = pwd[0]
	}
	return testutil.CreateUser(t, env.usrRepo, email, local, "Test", local, role, password)
}

func testutilUser(t *testing.T, env *testEnv, email, firstName, surname, schoolID string, role user.Role) user.User {
	return testutil.CreateUser(t, env.usrRepo, email, firstName, surname, schoolID, role, "")
}

func assignmentFields(cid, title, date, clock string) map[string]string {
	return map[string]string{
		"title":         title,
		"description":   "Read the attached document.",
		"cid":           cid,
		"deadline_date": date,
		"deadline_time": clock,
	}
}

// createAssignment creates an assignment through the API and returns it as listed to its author.
func (env *testEnv) createAssignment(t *testing.T, token, cid, title, date, clock string) assignment.Assignment {
	req := newMultipartRequest(t, "/assignments/create-assignment", token, assignmentFields(cid, title, date, clock), "notes.pdf", []byte("%PDF-1.4"))
	rec := env.serve(req)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, "/assignments", token)
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var assignments []assignment.Assignment
	decode(t, rec, &assignments)
	for _, a := range assignments {
		if a.Title == title && a.CourseID == cid {
			return a
		}
	}
	t.Fatalf("createAssignment(): %q not listed", title)
	return assignment.Assignment{}
}
