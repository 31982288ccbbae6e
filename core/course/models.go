package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
)

type Course struct {
	CID         string    `json:"cid" db:"cid"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

// Engagement links a user to a course: a teacher teaches it, a student is enrolled in it.
type Engagement struct {
	Email     string    `json:"email" db:"email"`
	CID       string    `json:"cid" db:"cid"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// Member is a user engaged with a course.
type Member struct {
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	Surname   string    `json:"surname" db:"surname"`
	SchoolID  string    `json:"school_id" db:"school_id"`
	Role      user.Role `json:"role" db:"role"`
	EngagedAt time.Time `json:"engaged_at" db:"engaged_at"` // UTC
}

func (m Member) FullName() string {
	return m.FirstName + " " + m.Surname
}

type NewCourse struct {
	CID         string `json:"cid" form:"cid" validate:"required,code,max=20"`
	Name        string `json:"name" form:"name" validate:"required,notblank,max=255"`
	Description string `json:"description" form:"description" validate:"max=5000"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.CID = core.CleanString(nc.CID)
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}
