package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

var (
	ErrNotFound        = errors.New("course not found")
	ErrCourseExists    = errors.New("a course with this code already exists")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrNotEnrollable   = errors.New("only students and teachers can join a course")
)

type (
	Repository interface {
		// CreateCourse returns ErrCourseExists if the course code is taken.
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, cid string, exec ...core.DBExecutor) (Course, error)
		// QueryCourses returns the courses email is engaged with, or all courses if email is blank.
		QueryCourses(ctx context.Context, email string, exec ...core.DBExecutor) ([]Course, error)
		// CreateEngagement returns ErrAlreadyEnrolled if the engagement exists.
		CreateEngagement(ctx context.Context, e Engagement, exec ...core.DBExecutor) error
		IsEngaged(ctx context.Context, email, cid string, exec ...core.DBExecutor) (bool, error)
		// QueryMembers returns the users engaged with cid, optionally restricted to roles.
		QueryMembers(ctx context.Context, cid string, roles []user.Role, exec ...core.DBExecutor) ([]Member, error)
		// CreateMissingTakes gives email a blank Take for every assignment of cid it has none for.
		CreateMissingTakes(ctx context.Context, email, cid string, at time.Time, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// Create creates a course taught by its creator.
func (svc *Service) Create(ctx context.Context, creator user.User, nc NewCourse) (Course, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	crs := Course{
		CID:         nc.CID,
		Name:        nc.Name,
		Description: nc.Description,
		CreatedAt:   now,
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if crs, err = svc.repo.CreateCourse(ctx, crs, tx); err != nil {
			return err
		}
		return svc.repo.CreateEngagement(ctx, Engagement{Email: creator.Email, CID: crs.CID, CreatedAt: now}, tx)
	})
	if err != nil {
		if errors.Cause(err) == ErrCourseExists {
			return Course{}, core.NewFieldError(ErrCourseExists, "cid")
		}
		return Course{}, err
	}
	return crs, nil
}

func (svc *Service) Get(ctx context.Context, cid string) (Course, error) {
	return svc.repo.GetCourse(ctx, core.CleanString(cid))
}

// List returns every course to admins, the courses usr is engaged with to others.
func (svc *Service) List(ctx context.Context, usr user.User) ([]Course, error) {
	if usr.IsAdmin() {
		return svc.repo.QueryCourses(ctx, "")
	}
	return svc.repo.QueryCourses(ctx, usr.Email)
}

// Enroll engages usr with the course cid.
// A student also gets a blank Take for every assignment the course already has,
// so joining late leaves them in the same state as if they had been enrolled at creation.
func (svc *Service) Enroll(ctx context.Context, usr user.User, cid string) error {
	if !usr.Role.In(user.RoleStudent, user.RoleTeacher) {
		return ErrNotEnrollable
	}
	crs, err := svc.Get(ctx, cid)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.CreateEngagement(ctx, Engagement{Email: usr.Email, CID: crs.CID, CreatedAt: now}, tx); err != nil {
			return err
		}
		if usr.IsStudent() {
			if _, err := svc.repo.CreateMissingTakes(ctx, usr.Email, crs.CID, now, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (svc *Service) IsEngaged(ctx context.Context, usr user.User, cid string) (bool, error) {
	return svc.repo.IsEngaged(ctx, usr.Email, cid)
}

func (svc *Service) Members(ctx context.Context, cid string, roles ...user.Role) ([]Member, error) {
	if _, err := svc.Get(ctx, cid); err != nil {
		return nil, err
	}
	return svc.repo.QueryMembers(ctx, cid, roles)
}
