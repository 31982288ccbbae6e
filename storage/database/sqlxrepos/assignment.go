package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
	"github.com/odinschool/odin/storage/database"
)

const (
	assignmentColumns   = "aid, cid, title, description, deadline, doc_name, doc_path, created_at"
	assignmentUniqueKey = "assignments_title_cid_key"
)

type assignmentRepository struct {
	exec core.DBExecutor
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(exec core.DBExecutor) assignment.Repository {
	return &assignmentRepository{exec: exec}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	exe := core.GetExec(repo.exec, exec)
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	q := exe.Rebind("INSERT INTO assignments (" + assignmentColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := exe.ExecContext(ctx, q,
		a.ID, a.CourseID, a.Title, a.Description, a.Deadline.UTC(), a.DocName, a.DocPath, a.CreatedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, assignmentUniqueKey) {
			return assignment.Assignment{}, assignment.ErrAssignmentExists
		}
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) AssignmentExists(ctx context.Context, title, cid string, exec ...core.DBExecutor) (bool, error) {
	exe := core.GetExec(repo.exec, exec)

	var cnt int
	q := exe.Rebind("SELECT COUNT(*) FROM assignments WHERE title = ? AND cid = ?")
	if err := sqlx.GetContext(ctx, exe, &cnt, q, title, cid); err != nil {
		return false, errors.Wrap(err, "checking assignment existence")
	}
	return cnt > 0, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, aid string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	exe := core.GetExec(repo.exec, exec)

	var a assignment.Assignment
	q := exe.Rebind("SELECT " + assignmentColumns + " FROM assignments WHERE aid = ?")
	if err := sqlx.GetContext(ctx, exe, &a, q, aid); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Assignment{}, assignment.ErrNotFound
		}
		return assignment.Assignment{}, errors.Wrap(err, "finding assignment")
	}
	return a, nil
}

func (repo assignmentRepository) CreateAuthorship(ctx context.Context, au assignment.Authorship, exec ...core.DBExecutor) error {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind("INSERT INTO authorships (email, aid) VALUES (?, ?)")
	if _, err := exe.ExecContext(ctx, q, au.Email, au.AssignmentID); err != nil {
		return errors.Wrap(err, "inserting authorship")
	}
	return nil
}

func (repo assignmentRepository) CreateTakes(ctx context.Context, aid string, emails []string, at time.Time, exec ...core.DBExecutor) error {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind("INSERT INTO takes (email, aid, created_at) VALUES (?, ?, ?)")
	for _, email := range emails {
		if _, err := exe.ExecContext(ctx, q, email, aid, at.UTC()); err != nil {
			return errors.Wrapf(err, "inserting take of %s", email)
		}
	}
	return nil
}

func (repo assignmentRepository) QueryAuthoredAssignments(ctx context.Context, email string, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind(`
		SELECT a.aid, a.cid, a.title, a.description, a.deadline, a.doc_name, a.doc_path, a.created_at
		FROM authorships au
		JOIN assignments a ON a.aid = au.aid
		WHERE au.email = ?
		ORDER BY a.created_at`)

	assignments := make([]assignment.Assignment, 0)
	if err := sqlx.SelectContext(ctx, exe, &assignments, q, email); err != nil {
		return nil, errors.Wrap(err, "querying authored assignments")
	}
	return assignments, nil
}

func (repo assignmentRepository) QueryStudentAssignments(ctx context.Context, email string, exec ...core.DBExecutor) ([]assignment.StudentAssignment, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind(`
		SELECT a.aid, a.cid, a.title, a.description, a.deadline, a.doc_name, a.doc_path, a.created_at,
			t.submit_time, t.grade
		FROM engagements e
		JOIN assignments a ON a.cid = e.cid
		LEFT JOIN takes t ON t.aid = a.aid AND t.email = e.email
		WHERE e.email = ?
		ORDER BY a.created_at`)

	assignments := make([]assignment.StudentAssignment, 0)
	if err := sqlx.SelectContext(ctx, exe, &assignments, q, email); err != nil {
		return nil, errors.Wrap(err, "querying student assignments")
	}
	return assignments, nil
}

func (repo assignmentRepository) QueryTakeRows(ctx context.Context, aid string, exec ...core.DBExecutor) ([]assignment.TakeRow, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind(`
		SELECT t.email, u.school_id, u.first_name || ' ' || u.surname AS name, t.submit_time, t.grade
		FROM takes t
		JOIN users u ON u.email = t.email
		WHERE t.aid = ?
		ORDER BY t.created_at, t.email`)

	rows := make([]assignment.TakeRow, 0)
	if err := sqlx.SelectContext(ctx, exe, &rows, q, aid); err != nil {
		return nil, errors.Wrap(err, "querying takes")
	}
	return rows, nil
}

func (repo assignmentRepository) GetTake(ctx context.Context, email, aid string, exec ...core.DBExecutor) (assignment.Take, error) {
	exe := core.GetExec(repo.exec, exec)

	var t assignment.Take
	q := exe.Rebind(`
		SELECT email, aid, submit_time, grade, doc_name, doc_path, created_at
		FROM takes
		WHERE email = ? AND aid = ?`)
	if err := sqlx.GetContext(ctx, exe, &t, q, email, aid); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Take{}, assignment.ErrNotEnrolled
		}
		return assignment.Take{}, errors.Wrap(err, "finding take")
	}
	return t, nil
}

func (repo assignmentRepository) UpdateTake(ctx context.Context, t assignment.Take, exec ...core.DBExecutor) (assignment.Take, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind(`
		UPDATE takes
		SET submit_time = ?, grade = ?, doc_name = ?, doc_path = ?
		WHERE email = ? AND aid = ?`)
	res, err := exe.ExecContext(ctx, q, t.SubmitTime, t.Grade, t.DocName, t.DocPath, t.Email, t.AssignmentID)
	if err != nil {
		return assignment.Take{}, errors.Wrap(err, "updating take")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Take{}, assignment.ErrNotEnrolled
	}
	return t, nil
}
