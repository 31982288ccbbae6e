// Package testutil holds helpers shared by the tests of the other packages.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
	"github.com/odinschool/odin/storage/database"
)

// Config returns the configuration of a test: in-memory SQLite DB and uploads in a temporary dir.
func Config(t *testing.T) *core.Config {
	t.Helper()
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Odin",
		Env:                       "TEST",
		SecretKey:                 "test-secret",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 30 * time.Minute
	conf.Server.DisableReqLogs = true
	conf.Database.Engine = database.EngineSQLite
	conf.Database.DSN = "file::memory:?_foreign_keys=on"
	conf.Uploads.Engine = "local"
	conf.Uploads.Dir = t.TempDir()
	conf.Uploads.URLPrefix = "/static/uploads"
	conf.Uploads.AllowedExtensions = []string{"pdf", "docx", "txt"}
	conf.Email.DefaultFrom = "noreply@odin.test"
	conf.Email.FrontendBaseURL = "http://odin.test"
	return conf
}

// PrepareDB opens a fresh, migrated, in-memory database closed at the end of the test.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	t.Helper()
	var c *core.Config
	if len(conf) > 0 {
		c = conf[0]
	} else {
		c = Config(t)
	}

	db, err := database.Open(c)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewValidator returns a validator with every validation of the app registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	email, firstName, surname, schoolID string,
	role user.Role,
	pwd string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Email:     email,
		FirstName: firstName,
		Surname:   surname,
		SchoolID:  schoolID,
		Role:      role,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, cid, name string) course.Course {
	t.Helper()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		CID:       cid,
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// Engage links users to the course cid, without any side effect on their takes.
func Engage(t *testing.T, repo course.Repository, cid string, users ...user.User) {
	t.Helper()
	for _, usr := range users {
		err := repo.CreateEngagement(context.Background(), course.Engagement{
			Email:     usr.Email,
			CID:       cid,
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		})
		if err != nil {
			t.Fatalf("Engage() failed: %v", err)
		}
	}
}
