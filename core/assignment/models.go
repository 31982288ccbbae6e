package assignment

import (
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/course"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MinGrade = 0
	MaxGrade = 100
)

type Assignment struct {
	ID          string    `json:"id" db:"aid"`
	CourseID    string    `json:"cid" db:"cid"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Deadline    time.Time `json:"deadline" db:"deadline"` // UTC
	DocName     string    `json:"doc_name" db:"doc_name"`
	DocPath     string    `json:"doc_path" db:"doc_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

// Authorship records the teacher who created an assignment.
type Authorship struct {
	Email        string `json:"email" db:"email"`
	AssignmentID string `json:"aid" db:"aid"`
}

// Take is the progress of one student on one assignment.
// SubmitTime and Grade stay null until the student submits and the teacher grades.
type Take struct {
	Email        string      `json:"email" db:"email"`
	AssignmentID string      `json:"aid" db:"aid"`
	SubmitTime   null.Time   `json:"submit_time" db:"submit_time"` // UTC
	Grade        null.Int    `json:"grade" db:"grade"`
	DocName      null.String `json:"doc_name" db:"doc_name"`
	DocPath      null.String `json:"doc_path" db:"doc_path"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (t Take) Submitted() bool { return t.SubmitTime.Valid }
func (t Take) Graded() bool    { return t.Grade.Valid }

// StudentAssignment is an assignment as listed to a student, with their own progress on it.
type StudentAssignment struct {
	Assignment
	SubmitTime null.Time `json:"submit_time" db:"submit_time"` // UTC
	Grade      null.Int  `json:"grade" db:"grade"`
}

// TakeRow is one line of the progress table of an assignment.
type TakeRow struct {
	Email      string    `json:"-" db:"email"`
	SchoolID   string    `json:"school_id" db:"school_id"`
	Name       string    `json:"name" db:"name"`
	SubmitTime null.Time `json:"submit_time" db:"submit_time"` // UTC
	Grade      null.Int  `json:"grade" db:"grade"`
}

type Detail struct {
	Assignment Assignment `json:"assignment"`
	List       []TakeRow  `json:"list"`
}

// Form lists the choices offered to a teacher creating an assignment.
type Form struct {
	Courses           []course.Course `json:"courses"`
	AllowedExtensions []string        `json:"allowed_extensions"`
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

type NewAssignment struct {
	Title        string `json:"title" form:"title" validate:"required,notblank,max=255"`
	Description  string `json:"description" form:"description" validate:"required,notblank"`
	CourseID     string `json:"cid" form:"cid" validate:"required"`
	DeadlineDate string `json:"deadline_date" form:"deadline_date" validate:"required,datetime=2006-01-02"`
	DeadlineTime string `json:"deadline_time" form:"deadline_time" validate:"required,datetime=15:04"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.CourseID = core.CleanString(na.CourseID)
	na.DeadlineDate = core.CleanString(na.DeadlineDate)
	na.DeadlineTime = core.CleanString(na.DeadlineTime)
	return validate.Struct(na)
}

// Deadline composes the deadline out of the date of DeadlineDate and the hour and minute of DeadlineTime.
func (na NewAssignment) Deadline() (time.Time, error) {
	return ComposeDeadline(na.DeadlineDate, na.DeadlineTime)
}

type GradeTake struct {
	AssignmentID string `json:"assignmentID" form:"assignmentID" validate:"required"`
	Email        string `json:"email" form:"email" validate:"required,email"`
	Grade        string `json:"grade" form:"grade" validate:"required,number"`

	value int
}

func (gt *GradeTake) Validate(validate *validator.Validate) error {
	gt.AssignmentID = core.CleanString(gt.AssignmentID)
	gt.Email = core.NormalizeKey(gt.Email)
	gt.Grade = core.CleanString(gt.Grade)
	if err := validate.Struct(gt); err != nil {
		return err
	}

	grade, err := strconv.Atoi(gt.Grade)
	if err != nil || grade < MinGrade || grade > MaxGrade {
		return core.NewFieldError(ErrInvalidGrade, "grade")
	}
	gt.value = grade
	return nil
}
