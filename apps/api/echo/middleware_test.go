package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

func TestRequireRoles(t *testing.T) {
	env := setup(t)
	e := echo.New()
	allowedSets := map[string][]user.Role{
		"teacher":         {user.RoleTeacher},
		"student":         {user.RoleStudent},
		"teacher,student": {user.RoleTeacher, user.RoleStudent},
		"admin":           {user.RoleAdmin},
	}
	users := make(map[user.Role]user.User, len(user.Roles))
	for _, role := range user.Roles {
		users[role] = env.createUser(t, role.String()+"@odin.test", role)
	}

	for setName, allowed := range allowedSets {
		for _, role := range user.Roles {
			role, allowed, usr := role, allowed, users[role]
			t.Run(setName+"/"+role.String(), func(t *testing.T) {
				audit := new(auditRecorder)
				req := httptest.NewRequest(http.MethodGet, "/assignments/detail", nil)
				req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
				ctx := e.NewContext(req, httptest.NewRecorder())
				ctx.Set(contextTokenKey, &jwt.Token{Claims: &Claims{
					StandardClaims: jwt.StandardClaims{Subject: usr.ID},
					Email:          usr.Email,
					Role:           role,
				}})

				var calls int
				handlerErr := echo.NewHTTPError(http.StatusTeapot)
				handler := func(echo.Context) error {
					calls++
					return handlerErr
				}

				err := requireRoles(audit, env.app.deps.UserSvc, allowed...)(handler)(ctx)

				if role.In(allowed...) {
					assert.Equal(t, 1, calls)
					assert.Equal(t, handlerErr, err, "handler result must be returned unchanged")
					assert.Empty(t, audit.Attempts())
					return
				}
				assert.Zero(t, calls)
				assert.Equal(t, errHttpForbidden, err)
				require.Len(t, audit.Attempts(), 1)
				assert.Equal(t, core.AccessAttempt{
					UserID:     usr.ID,
					Email:      usr.Email,
					Role:       role.String(),
					RemoteAddr: "10.0.0.7",
					Method:     http.MethodGet,
					Path:       "/assignments/detail",
				}, audit.Attempts()[0])
			})
		}
	}
}

func TestRequireRoles_storedRole(t *testing.T) {
	env := setup(t)
	teacher := env.createUser(t, "prof@odin.test", user.RoleTeacher)
	student := env.createUser(t, "hero@odin.test", user.RoleStudent)
	dropout := env.createUser(t, "gone@odin.test", user.RoleTeacher)
	teacherToken := env.getToken(t, teacher)
	studentToken := env.getToken(t, student)
	dropoutToken := env.getToken(t, dropout)

	ctx := context.Background()
	teacher.Role = user.RoleStudent
	_, err := env.usrRepo.UpdateUser(ctx, teacher)
	require.NoError(t, err)
	student.Role = user.RoleTeacher
	_, err = env.usrRepo.UpdateUser(ctx, student)
	require.NoError(t, err)
	dropout.IsActive = false
	_, err = env.usrRepo.UpdateUser(ctx, dropout)
	require.NoError(t, err)

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	deactivated := marchallObj(t, httpErr{Error: "account deactivated"})

	tests := []struct {
		httpTest
		wantRole string
	}{
		{
			httpTest: httpTest{
				name: "demoted teacher on detail", method: http.MethodGet, path: "/assignments/detail?assignmentID=any",
				token: teacherToken, wantCode: http.StatusForbidden, wantData: forbidden,
			},
			wantRole: user.RoleStudent.String(),
		},
		{
			httpTest: httpTest{
				name: "demoted teacher on create", method: http.MethodGet, path: "/assignments/create-assignment",
				token: teacherToken, wantCode: http.StatusForbidden, wantData: forbidden,
			},
			wantRole: user.RoleStudent.String(),
		},
		{
			httpTest: httpTest{
				name: "promoted student on create", method: http.MethodGet, path: "/assignments/create-assignment",
				token: studentToken, wantCode: http.StatusOK,
			},
		},
		{
			httpTest: httpTest{
				name: "deactivated teacher", method: http.MethodGet, path: "/assignments/create-assignment",
				token: dropoutToken, wantCode: http.StatusForbidden, wantData: deactivated,
			},
			wantRole: user.RoleTeacher.String(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.audit.Reset()
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)

			attempts := env.audit.Attempts()
			if tt.wantCode == http.StatusOK {
				assert.Empty(t, attempts)
				return
			}
			require.Len(t, attempts, 1)
			assert.Equal(t, tt.wantRole, attempts[0].Role)
			assert.NotEmpty(t, attempts[0].UserID)
		})
	}
}

func TestRequireRoles_unauthenticated(t *testing.T) {
	audit := new(auditRecorder)
	ctx := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/assignments/grade", nil), httptest.NewRecorder())

	var called bool
	err := requireRoles(audit, nil, user.RoleTeacher)(func(echo.Context) error {
		called = true
		return nil
	})(ctx)

	assert.False(t, called)
	assert.Equal(t, errUnauthorized, err)
	require.Len(t, audit.Attempts(), 1)
	assert.Empty(t, audit.Attempts()[0].UserID)
	assert.Equal(t, "/assignments/grade", audit.Attempts()[0].Path)
}

func TestAuthMiddleware(t *testing.T) {
	env := setup(t)
	student := env.createUser(t, "hero@odin.test", user.RoleStudent)

	tests := []httpTest{
		{name: "missing token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", token: "not.a.jwt", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "valid token", token: env.getToken(t, student), wantCode: http.StatusOK, wantData: []byte("[]")},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/assignments"

		t.Run(tt.name, func(t *testing.T) {
			env.audit.Reset()
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				assert.Empty(t, env.audit.Attempts())
				return
			}
			attempts := env.audit.Attempts()
			require.Len(t, attempts, 1)
			assert.Empty(t, attempts[0].UserID)
			assert.Empty(t, attempts[0].Email)
			assert.Equal(t, http.MethodGet, attempts[0].Method)
			assert.Equal(t, "/assignments", attempts[0].Path)
		})
	}
}

func TestRequireRoles_routes(t *testing.T) {
	env := setup(t)
	student := env.createUser(t, "hero@odin.test", user.RoleStudent)
	teacher := env.createUser(t, "prof@odin.test", user.RoleTeacher)
	admin := env.createUser(t, "admin@odin.test", user.RoleAdmin)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "student on detail", method: http.MethodGet, path: "/assignments/detail", token: env.getToken(t, student)},
		{name: "student on create", method: http.MethodPost, path: "/assignments/create-assignment", token: env.getToken(t, student)},
		{name: "student on grade", method: http.MethodPost, path: "/assignments/grade", token: env.getToken(t, student)},
		{name: "teacher on submit", method: http.MethodPost, path: "/assignments/submit", token: env.getToken(t, teacher)},
		{name: "admin on listing", method: http.MethodGet, path: "/assignments", token: env.getToken(t, admin)},
		{name: "teacher on users", method: http.MethodGet, path: "/users", token: env.getToken(t, teacher)},
	}
	for _, tt := range tests {
		tt.wantCode = http.StatusForbidden
		tt.wantData = forbidden

		t.Run(tt.name, func(t *testing.T) {
			env.audit.Reset()
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			attempts := env.audit.Attempts()
			require.Len(t, attempts, 1)
			assert.Equal(t, tt.method, attempts[0].Method)
			assert.Equal(t, tt.path, attempts[0].Path)
			assert.NotEmpty(t, attempts[0].UserID)
		})
	}
}
