package assignment

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
)

var (
	ErrNotFound         = errors.New("assignment not found")
	ErrAssignmentExists = errors.New("this assignment already exists")
	ErrCourseNotAllowed = errors.New("select one of the courses you teach")
	ErrFileRequired     = errors.New("this field is required")
	ErrFileNotAllowed   = errors.New("file type not allowed")
	ErrInvalidFilename  = errors.New("invalid file name")
	ErrNotEnrolled      = errors.New("not enrolled for this assignment")
	ErrNotSubmitted     = errors.New("this assignment has not been submitted yet")
	ErrGraded           = errors.New("this assignment has already been graded")
	ErrInvalidGrade     = errors.New("grade must be an integer between 0 and 100")
)

type (
	Repository interface {
		// CreateAssignment returns ErrAssignmentExists if the course already has an assignment with this title.
		// An ID is generated unless a.ID is set.
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		AssignmentExists(ctx context.Context, title, cid string, exec ...core.DBExecutor) (bool, error)
		GetAssignment(ctx context.Context, aid string, exec ...core.DBExecutor) (Assignment, error)
		CreateAuthorship(ctx context.Context, au Authorship, exec ...core.DBExecutor) error
		// CreateTakes gives every one of emails a blank Take for aid.
		CreateTakes(ctx context.Context, aid string, emails []string, at time.Time, exec ...core.DBExecutor) error
		// QueryAuthoredAssignments returns one Assignment per Authorship of email, in retrieval order.
		QueryAuthoredAssignments(ctx context.Context, email string, exec ...core.DBExecutor) ([]Assignment, error)
		// QueryStudentAssignments returns the assignments of the courses email is enrolled in, with its Take if any.
		QueryStudentAssignments(ctx context.Context, email string, exec ...core.DBExecutor) ([]StudentAssignment, error)
		// QueryTakeRows returns the progress of every taker of aid, ordered by Take creation then email.
		QueryTakeRows(ctx context.Context, aid string, exec ...core.DBExecutor) ([]TakeRow, error)
		GetTake(ctx context.Context, email, aid string, exec ...core.DBExecutor) (Take, error)
		UpdateTake(ctx context.Context, t Take, exec ...core.DBExecutor) (Take, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		courseRepo course.Repository
		files      FileStore
		mailSvc    core.EmailService
		logger     core.Logger
		conf       *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	courseRepo course.Repository,
	files FileStore,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		courseRepo: courseRepo,
		files:      files,
		mailSvc:    mailSvc,
		logger:     logger,
		conf:       conf,
	}
}

// ListForTeacher returns the assignments created by teacher, earliest deadline first.
func (svc *Service) ListForTeacher(ctx context.Context, teacher user.User) ([]Assignment, error) {
	assignments, err := svc.repo.QueryAuthoredAssignments(ctx, teacher.Email)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Deadline.Before(assignments[j].Deadline)
	})
	return assignments, nil
}

// ListForStudent returns the assignments of the courses student is enrolled in, earliest deadline first.
func (svc *Service) ListForStudent(ctx context.Context, student user.User) ([]StudentAssignment, error) {
	assignments, err := svc.repo.QueryStudentAssignments(ctx, student.Email)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Deadline.Before(assignments[j].Deadline)
	})
	return assignments, nil
}

// getTaught returns the assignment aid, provided teacher is engaged with its course.
func (svc *Service) getTaught(ctx context.Context, teacher user.User, aid string) (Assignment, error) {
	aid = core.CleanString(aid)
	if aid == "" {
		return Assignment{}, ErrNotFound
	}
	a, err := svc.repo.GetAssignment(ctx, aid)
	if err != nil {
		return Assignment{}, err
	}
	engaged, err := svc.courseRepo.IsEngaged(ctx, teacher.Email, a.CourseID)
	if err != nil {
		return Assignment{}, err
	}
	if !engaged {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

// Detail returns assignment aid with the progress of each of its takers.
func (svc *Service) Detail(ctx context.Context, teacher user.User, aid string) (Detail, error) {
	a, err := svc.getTaught(ctx, teacher, aid)
	if err != nil {
		return Detail{}, err
	}
	rows, err := svc.repo.QueryTakeRows(ctx, a.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Assignment: a, List: rows}, nil
}

// Form returns the choices a teacher has when creating an assignment.
func (svc *Service) Form(ctx context.Context, teacher user.User) (Form, error) {
	courses, err := svc.courseRepo.QueryCourses(ctx, teacher.Email)
	if err != nil {
		return Form{}, err
	}
	return Form{Courses: courses, AllowedExtensions: svc.conf.Uploads.AllowedExtensions}, nil
}

// checkUpload sanitizes the name of upload and checks its extension.
func (svc *Service) checkUpload(upload *Upload) (string, error) {
	if upload == nil || upload.Content == nil {
		return "", core.NewFieldError(ErrFileRequired, "file")
	}
	filename := SecureFilename(upload.Filename)
	if filename == "" {
		return "", core.NewFieldError(ErrInvalidFilename, "file")
	}
	if !AllowedFile(filename, svc.conf.Uploads.AllowedExtensions) {
		msg := fmt.Sprintf("%s (allowed: %s)", ErrFileNotAllowed, strings.Join(svc.conf.Uploads.AllowedExtensions, ", "))
		return "", core.NewValidationError(ErrFileNotAllowed, core.FieldError{Field: "file", Error: msg})
	}
	return filename, nil
}

// Create creates an assignment of one of the courses teacher is engaged with.
// The assignment, its authorship and a blank Take for every enrolled student are stored in a single transaction.
// The enrolled students are notified once it is committed.
func (svc *Service) Create(ctx context.Context, teacher user.User, na NewAssignment, upload *Upload, validate *validator.Validate) (Assignment, error) {
	if err := na.Validate(validate); err != nil {
		return Assignment{}, err
	}

	engaged, err := svc.courseRepo.IsEngaged(ctx, teacher.Email, na.CourseID)
	if err != nil {
		return Assignment{}, err
	}
	if !engaged {
		return Assignment{}, core.NewFieldError(ErrCourseNotAllowed, "cid")
	}

	exists, err := svc.repo.AssignmentExists(ctx, na.Title, na.CourseID)
	if err != nil {
		return Assignment{}, err
	}
	if exists {
		return Assignment{}, core.NewFieldError(ErrAssignmentExists, "title")
	}

	filename, err := svc.checkUpload(upload)
	if err != nil {
		return Assignment{}, err
	}
	deadline, err := na.Deadline()
	if err != nil {
		return Assignment{}, core.NewFieldError(err, "deadline_date")
	}

	aid := uuid.New().String()
	key := documentKey(na.CourseID, aid, filename)
	if err = svc.files.Save(ctx, key, upload.Content); err != nil {
		return Assignment{}, errors.Wrap(err, "saving assignment document")
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := Assignment{
		ID:          aid,
		CourseID:    na.CourseID,
		Title:       na.Title,
		Description: na.Description,
		Deadline:    deadline,
		DocName:     filename,
		DocPath:     publicPath(svc.conf.Uploads.URLPrefix, key),
		CreatedAt:   now,
	}

	var students []course.Member
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if a, err = svc.repo.CreateAssignment(ctx, a, tx); err != nil {
			return err
		}
		if err = svc.repo.CreateAuthorship(ctx, Authorship{Email: teacher.Email, AssignmentID: a.ID}, tx); err != nil {
			return err
		}

		if students, err = svc.courseRepo.QueryMembers(ctx, a.CourseID, []user.Role{user.RoleStudent}, tx); err != nil {
			return err
		}
		emails := make([]string, 0, len(students))
		for _, s := range students {
			emails = append(emails, s.Email)
		}
		return svc.repo.CreateTakes(ctx, a.ID, emails, now, tx)
	})
	if err != nil {
		// the document stays in the file store
		svc.logger.Warn(fmt.Sprintf("assignment.Create: orphaned upload %q", key), teacher)
		if errors.Cause(err) == ErrAssignmentExists {
			return Assignment{}, core.NewFieldError(ErrAssignmentExists, "title")
		}
		return Assignment{}, err
	}

	svc.notifyStudents(a, students)
	return a, nil
}

func (svc *Service) notifyStudents(a Assignment, students []course.Member) {
	if len(students) == 0 {
		return
	}
	messages := make([]*core.EmailMessage, 0, len(students))
	for _, s := range students {
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: s.FullName(), Address: s.Email}},
			Subject:      fmt.Sprintf("[%s] New assignment: %s", a.CourseID, a.Title),
			TemplateName: "new_assignment",
			TemplateData: map[string]interface{}{
				"Name":     s.FirstName,
				"Title":    a.Title,
				"CourseID": a.CourseID,
				"Deadline": a.Deadline.Format("Mon, 02 Jan 2006 15:04 MST"),
			},
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

// Submit stores the work of student on assignment aid. It may be resubmitted until it is graded.
func (svc *Service) Submit(ctx context.Context, student user.User, aid string, upload *Upload) (Take, error) {
	aid = core.CleanString(aid)
	if aid == "" {
		return Take{}, ErrNotFound
	}
	a, err := svc.repo.GetAssignment(ctx, aid)
	if err != nil {
		return Take{}, err
	}
	take, err := svc.repo.GetTake(ctx, student.Email, a.ID)
	if err != nil {
		return Take{}, err
	}
	if take.Graded() {
		return Take{}, core.NewValidationError(ErrGraded)
	}

	filename, err := svc.checkUpload(upload)
	if err != nil {
		return Take{}, err
	}
	key := submissionKey(a.CourseID, a.ID, student.SchoolID, filename)
	if err = svc.files.Save(ctx, key, upload.Content); err != nil {
		return Take{}, errors.Wrap(err, "saving submission")
	}

	take.SubmitTime = null.TimeFrom(time.Now().UTC().Truncate(time.Microsecond))
	take.DocName = null.StringFrom(filename)
	take.DocPath = null.StringFrom(publicPath(svc.conf.Uploads.URLPrefix, key))
	return svc.repo.UpdateTake(ctx, take)
}

// Grade grades the submitted work of a student, provided teacher teaches the course of the assignment.
func (svc *Service) Grade(ctx context.Context, teacher user.User, gt GradeTake, validate *validator.Validate) (Take, error) {
	if err := gt.Validate(validate); err != nil {
		return Take{}, err
	}
	a, err := svc.getTaught(ctx, teacher, gt.AssignmentID)
	if err != nil {
		return Take{}, err
	}

	take, err := svc.repo.GetTake(ctx, gt.Email, a.ID)
	if err != nil {
		if err == ErrNotEnrolled {
			return Take{}, core.NewFieldError(ErrNotEnrolled, "email")
		}
		return Take{}, err
	}
	if !take.Submitted() {
		return Take{}, core.NewValidationError(ErrNotSubmitted)
	}

	take.Grade = null.IntFrom(gt.value)
	return svc.repo.UpdateTake(ctx, take)
}
