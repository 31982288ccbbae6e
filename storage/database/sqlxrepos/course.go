package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
	"github.com/odinschool/odin/storage/database"
)

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind("INSERT INTO courses (cid, name, description, created_at) VALUES (?, ?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, crs.CID, crs.Name, crs.Description, crs.CreatedAt.UTC()); err != nil {
		if database.IsUniqueViolation(err) {
			return course.Course{}, course.ErrCourseExists
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, cid string, exec ...core.DBExecutor) (course.Course, error) {
	exe := core.GetExec(repo.exec, exec)

	var crs course.Course
	q := exe.Rebind("SELECT cid, name, description, created_at FROM courses WHERE cid = ?")
	if err := sqlx.GetContext(ctx, exe, &crs, q, cid); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return crs, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, email string, exec ...core.DBExecutor) ([]course.Course, error) {
	exe := core.GetExec(repo.exec, exec)

	var (
		q    = "SELECT cid, name, description, created_at FROM courses ORDER BY cid"
		args []interface{}
	)
	if email != "" {
		q = `
			SELECT c.cid, c.name, c.description, c.created_at
			FROM courses c
			JOIN engagements e ON e.cid = c.cid
			WHERE e.email = ?
			ORDER BY c.cid`
		args = append(args, email)
	}

	courses := make([]course.Course, 0)
	if err := sqlx.SelectContext(ctx, exe, &courses, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo courseRepository) CreateEngagement(ctx context.Context, e course.Engagement, exec ...core.DBExecutor) error {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind("INSERT INTO engagements (email, cid, created_at) VALUES (?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, e.Email, e.CID, e.CreatedAt.UTC()); err != nil {
		if database.IsUniqueViolation(err) {
			return course.ErrAlreadyEnrolled
		}
		return errors.Wrap(err, "inserting engagement")
	}
	return nil
}

func (repo courseRepository) IsEngaged(ctx context.Context, email, cid string, exec ...core.DBExecutor) (bool, error) {
	exe := core.GetExec(repo.exec, exec)

	var cnt int
	q := exe.Rebind("SELECT COUNT(*) FROM engagements WHERE email = ? AND cid = ?")
	if err := sqlx.GetContext(ctx, exe, &cnt, q, email, cid); err != nil {
		return false, errors.Wrap(err, "checking engagement")
	}
	return cnt > 0, nil
}

func (repo courseRepository) QueryMembers(ctx context.Context, cid string, roles []user.Role, exec ...core.DBExecutor) ([]course.Member, error) {
	exe := core.GetExec(repo.exec, exec)

	q := `
		SELECT u.email, u.first_name, u.surname, u.school_id, u.role, e.created_at AS engaged_at
		FROM engagements e
		JOIN users u ON u.email = e.email
		WHERE e.cid = ?`
	args := []interface{}{cid}
	if len(roles) > 0 {
		q += " AND u.role IN (?)"
		args = append(args, roles)
	}
	q += " ORDER BY u.surname, u.first_name, u.email"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building members query")
	}

	members := make([]course.Member, 0)
	if err = sqlx.SelectContext(ctx, exe, &members, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying course members")
	}
	return members, nil
}

func (repo courseRepository) CreateMissingTakes(ctx context.Context, email, cid string, at time.Time, exec ...core.DBExecutor) (int, error) {
	exe := core.GetExec(repo.exec, exec)

	var aids []string
	q := exe.Rebind(`
		SELECT a.aid
		FROM assignments a
		WHERE a.cid = ? AND NOT EXISTS (SELECT 1 FROM takes t WHERE t.email = ? AND t.aid = a.aid)
		ORDER BY a.created_at`)
	if err := sqlx.SelectContext(ctx, exe, &aids, q, cid, email); err != nil {
		return 0, errors.Wrap(err, "querying missing takes")
	}

	ins := exe.Rebind("INSERT INTO takes (email, aid, created_at) VALUES (?, ?, ?)")
	for _, aid := range aids {
		if _, err := exe.ExecContext(ctx, ins, email, aid, at.UTC()); err != nil {
			return 0, errors.Wrap(err, "inserting take")
		}
	}
	return len(aids), nil
}
