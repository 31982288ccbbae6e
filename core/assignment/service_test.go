package assignment_test

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
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

var errTakesFailed = errors.New("takes failed")

// failingTakesRepo fails every CreateTakes call.
type failingTakesRepo struct {
	assignment.Repository
}

func (failingTakesRepo) CreateTakes(context.Context, string, []string, time.Time, ...core.DBExecutor) error {
	return errTakesFailed
}

type fixture struct {
	conf     *core.Config
	db       *sqlx.DB
	usrRepo  user.Repository
	crsRepo  course.Repository
	asgRepo  assignment.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	svc      *assignment.Service
	crsSvc   *course.Service
	teacher  user.User
	students []user.User
}

func newFixture(t *testing.T, wrap ...func(assignment.Repository) assignment.Repository) *fixture {
	conf := testutil.Config(t)
	db := testutil.PrepareDB(t, conf)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	f := &fixture{
		conf:    conf,
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		crsRepo: sqlxrepos.NewCourseRepository(db),
		asgRepo: sqlxrepos.NewAssignmentRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}
	repo := f.asgRepo
	for _, w := range wrap {
		repo = w(repo)
	}
	f.svc = assignment.NewService(db, repo, f.crsRepo, uploads.NewLocalStore(conf.Uploads.Dir), f.mailSvc, logger, conf)
	f.crsSvc = course.NewService(db, f.crsRepo)

	f.teacher = testutil.CreateUser(t, f.usrRepo, "prof@odin.test", "Prof", "X", "T1", user.RoleTeacher, "")
	for _, id := range []string{"S1", "S2"} {
		email := strings.ToLower(id) + "@odin.test"
		f.students = append(f.students, testutil.CreateUser(t, f.usrRepo, email, id, "Student", id, user.RoleStudent, ""))
	}
	testutil.CreateCourse(t, f.crsRepo, "MATH101", "Maths")
	testutil.Engage(t, f.crsRepo, "MATH101", append(f.students, f.teacher)...)
	return f
}

func (f *fixture) count(t *testing.T, q string, args ...interface{}) int {
	var cnt int
	require.NoError(t, f.db.Get(&cnt, f.db.Rebind(q), args...))
	return cnt
}

func newAssignment(title, date string) assignment.NewAssignment {
	return assignment.NewAssignment{
		Title:        title,
		Description:  "Read the attached document.",
		CourseID:     "MATH101",
		DeadlineDate: date,
		DeadlineTime: "09:30",
	}
}

func upload(name string) *assignment.Upload {
	return &assignment.Upload{Filename: name, Content: strings.NewReader("content")}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	fields := make(map[string]string, len(vErr.Fields))
	for _, f := range vErr.Fields {
		fields[f.Field] = f.Error
	}
	return fields
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validate := testutil.NewValidator()

	a, err := f.svc.Create(ctx, f.teacher, newAssignment(" Homework 1 ", "2030-03-01"), upload("My Notes.pdf"), validate)
	require.NoError(t, err)
	assert.Equal(t, "Homework 1", a.Title)
	assert.Equal(t, "My_Notes.pdf", a.DocName)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "/static/uploads/MATH101/"+a.ID+"/My_Notes.pdf", a.DocPath)
	assert.Equal(t, time.Date(2030, time.March, 1, 9, 30, 0, 0, time.UTC), a.Deadline)

	_, err = os.Stat(filepath.Join(f.conf.Uploads.Dir, "MATH101", a.ID, "My_Notes.pdf"))
	assert.NoError(t, err)

	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM authorships WHERE email = ? AND aid = ?", f.teacher.Email, a.ID))
	for _, s := range f.students {
		assert.Equal(t, 1, f.count(t,
			"SELECT COUNT(*) FROM takes WHERE email = ? AND aid = ? AND submit_time IS NULL AND grade IS NULL", s.Email, a.ID))
	}
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM takes WHERE email = ?", f.teacher.Email))

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, len(f.students))
	assert.Equal(t, "[MATH101] New assignment: Homework 1", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Homework 1")

	t.Run("duplicate leaves no trace", func(t *testing.T) {
		f.mailSvc.Reset()
		_, err := f.svc.Create(ctx, f.teacher, newAssignment("Homework 1", "2030-04-01"), upload("other.pdf"), validate)
		assert.Equal(t, map[string]string{"title": assignment.ErrAssignmentExists.Error()}, fieldErrors(t, err))

		assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM assignments"))
		assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM authorships"))
		assert.Equal(t, len(f.students), f.count(t, "SELECT COUNT(*) FROM takes"))
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("same title in another course", func(t *testing.T) {
		testutil.CreateCourse(t, f.crsRepo, "PHYS101", "Physics")
		testutil.Engage(t, f.crsRepo, "PHYS101", f.teacher)

		na := newAssignment("Homework 1", "2030-04-01")
		na.CourseID = "PHYS101"
		_, err := f.svc.Create(ctx, f.teacher, na, upload("notes.pdf"), validate)
		require.NoError(t, err)
	})
}

func TestService_CreateErrors(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateUser(t, f.usrRepo, "other@odin.test", "Other", "X", "T2", user.RoleTeacher, "")
	validate := testutil.NewValidator()

	tests := []struct {
		name    string
		teacher user.User
		na      assignment.NewAssignment
		upload  *assignment.Upload
		want    map[string]string
	}{
		{
			name: "course not taught", teacher: other, na: newAssignment("Homework", "2030-03-01"), upload: upload("a.pdf"),
			want: map[string]string{"cid": assignment.ErrCourseNotAllowed.Error()},
		},
		{
			name: "no file", teacher: f.teacher, na: newAssignment("Homework", "2030-03-01"),
			want: map[string]string{"file": assignment.ErrFileRequired.Error()},
		},
		{
			name: "file type", teacher: f.teacher, na: newAssignment("Homework", "2030-03-01"), upload: upload("a.exe"),
			want: map[string]string{"file": "file type not allowed (allowed: pdf, docx, txt)"},
		},
		{
			name: "unsafe file name", teacher: f.teacher, na: newAssignment("Homework", "2030-03-01"), upload: upload("../.."),
			want: map[string]string{"file": assignment.ErrInvalidFilename.Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.teacher, tt.na, tt.upload, validate)
			got := fieldErrors(t, err)
			for field, msg := range tt.want {
				assert.Equal(t, msg, got[field])
			}
		})
	}

	t.Run("impossible date", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), f.teacher, newAssignment("Homework", "2030-02-30"), upload("a.pdf"), validate)
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
		require.Len(t, vErrs, 1)
		assert.Equal(t, "deadline_date", vErrs[0].Field())
	})

	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM assignments"))
}

func TestService_CreateIsAtomic(t *testing.T) {
	f := newFixture(t, func(repo assignment.Repository) assignment.Repository {
		return failingTakesRepo{Repository: repo}
	})

	_, err := f.svc.Create(context.Background(), f.teacher, newAssignment("Homework 1", "2030-03-01"), upload("notes.pdf"), testutil.NewValidator())
	assert.Equal(t, errTakesFailed, errors.Cause(err))

	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM assignments"))
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM authorships"))
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM takes"))
	assert.Empty(t, f.mailSvc.SentMessages())
}

func TestService_CreateKeepsDocumentsApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validate := testutil.NewValidator()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), f.conf)

	readDoc := func(t *testing.T, a assignment.Assignment) string {
		key := strings.TrimPrefix(a.DocPath, f.conf.Uploads.URLPrefix+"/")
		data, err := os.ReadFile(filepath.Join(f.conf.Uploads.Dir, filepath.FromSlash(key)))
		require.NoError(t, err)
		return string(data)
	}
	notes := func(content string) *assignment.Upload {
		return &assignment.Upload{Filename: "notes.pdf", Content: strings.NewReader(content)}
	}

	first, err := f.svc.Create(ctx, f.teacher, newAssignment("Homework 1", "2030-03-01"), notes("HOMEWORK ONE"), validate)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.teacher, newAssignment("Homework 2", "2030-03-08"), notes("HOMEWORK TWO"), validate)
	require.NoError(t, err)

	assert.NotEqual(t, first.DocPath, second.DocPath)
	assert.Equal(t, "HOMEWORK ONE", readDoc(t, first))
	assert.Equal(t, "HOMEWORK TWO", readDoc(t, second))

	// a create that fails after storing its upload leaves other documents alone
	failing := assignment.NewService(f.db, failingTakesRepo{Repository: f.asgRepo}, f.crsRepo,
		uploads.NewLocalStore(f.conf.Uploads.Dir), f.mailSvc, logger, f.conf)
	_, err = failing.Create(ctx, f.teacher, newAssignment("Homework 3", "2030-03-15"), notes("HOMEWORK THREE"), validate)
	assert.Equal(t, errTakesFailed, errors.Cause(err))
	assert.Equal(t, "HOMEWORK ONE", readDoc(t, first))
	assert.Equal(t, "HOMEWORK TWO", readDoc(t, second))
}

func TestService_Lists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validate := testutil.NewValidator()

	for _, na := range []assignment.NewAssignment{
		newAssignment("March", "2030-03-01"),
		newAssignment("January", "2030-01-15"),
		newAssignment("February", "2030-02-10"),
	} {
		_, err := f.svc.Create(ctx, f.teacher, na, upload("notes.pdf"), validate)
		require.NoError(t, err)
	}
	want := []string{"January", "February", "March"}

	authored, err := f.svc.ListForTeacher(ctx, f.teacher)
	require.NoError(t, err)
	titles := make([]string, 0, len(authored))
	for _, a := range authored {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, want, titles)

	taken, err := f.svc.ListForStudent(ctx, f.students[0])
	require.NoError(t, err)
	titles = titles[:0]
	for _, a := range taken {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, want, titles)

	late := testutil.CreateUser(t, f.usrRepo, "late@odin.test", "Late", "Student", "S9", user.RoleStudent, "")
	require.NoError(t, f.crsSvc.Enroll(ctx, late, "MATH101"))
	taken, err = f.svc.ListForStudent(ctx, late)
	require.NoError(t, err)
	assert.Len(t, taken, 3)
}

func TestService_SubmitAndGrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validate := testutil.NewValidator()
	ada, bob := f.students[0], f.students[1]

	a, err := f.svc.Create(ctx, f.teacher, newAssignment("Homework 1", "2030-03-01"), upload("notes.pdf"), validate)
	require.NoError(t, err)
	gt := func(email, grade string) assignment.GradeTake {
		return assignment.GradeTake{AssignmentID: a.ID, Email: email, Grade: grade}
	}

	_, err = f.svc.Grade(ctx, f.teacher, gt(ada.Email, "90"), validate)
	assert.Equal(t, assignment.ErrNotSubmitted, errors.Cause(err).(*core.ValidationError).Err)

	take, err := f.svc.Submit(ctx, ada, a.ID, upload("report.pdf"))
	require.NoError(t, err)
	assert.True(t, take.Submitted())
	assert.False(t, take.Graded())
	assert.Equal(t, "/static/uploads/MATH101/submissions/"+a.ID+"/S1_report.pdf", take.DocPath.String)

	_, err = f.svc.Submit(ctx, ada, a.ID, upload("report-v2.pdf"))
	require.NoError(t, err, "resubmitting before grading")

	_, err = f.svc.Grade(ctx, f.teacher, gt(ada.Email, "101"), validate)
	assert.Equal(t, map[string]string{"grade": assignment.ErrInvalidGrade.Error()}, fieldErrors(t, err))

	take, err = f.svc.Grade(ctx, f.teacher, gt(" ADA@odin.test ", "90"), validate)
	require.NoError(t, err)
	assert.Equal(t, 90, take.Grade.Int)

	_, err = f.svc.Submit(ctx, ada, a.ID, upload("late.pdf"))
	assert.Equal(t, assignment.ErrGraded, errors.Cause(err).(*core.ValidationError).Err)

	_, err = f.svc.Submit(ctx, ada, "unknown", upload("late.pdf"))
	assert.Equal(t, assignment.ErrNotFound, err)

	detail, err := f.svc.Detail(ctx, f.teacher, a.ID)
	require.NoError(t, err)
	require.Len(t, detail.List, 2)
	byID := map[string]assignment.TakeRow{}
	for _, row := range detail.List {
		byID[row.SchoolID] = row
	}
	assert.Equal(t, 90, byID[ada.SchoolID].Grade.Int)
	assert.Equal(t, "S1 Student", byID[ada.SchoolID].Name)
	assert.False(t, byID[bob.SchoolID].SubmitTime.Valid)

	outsider := testutil.CreateUser(t, f.usrRepo, "out@odin.test", "Out", "X", "T3", user.RoleTeacher, "")
	_, err = f.svc.Detail(ctx, outsider, a.ID)
	assert.Equal(t, assignment.ErrNotFound, err)
}
