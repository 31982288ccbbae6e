package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/odinschool/odin/core"
)

// Role is the single role a User holds. Permissions derive from it alone.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAdmin   Role = "administrator"
)

var (
	// Roles lists every Role, in the order shown to admins.
	Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

	// SelfServiceRoles are the roles one may pick when registering without an admin.
	SelfServiceRoles = []Role{RoleStudent, RoleTeacher}

	errInvalidRole = errors.New("invalid role")
)

func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, role := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

func ParseRole(s string) (Role, error) {
	r := Role(core.NormalizeKey(s))
	if !r.Valid() {
		return "", errInvalidRole
	}
	return r, nil
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	Surname      string    `json:"surname" db:"surname"`
	SchoolID     string    `json:"school_id" db:"school_id"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return u.FirstName + " " + u.Surname
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	FirstName       string `json:"first_name" validate:"required,notblank,max=100"`
	Surname         string `json:"surname" validate:"required,notblank,max=100"`
	SchoolID        string `json:"school_id" validate:"required,code,max=50"`
	Role            Role   `json:"role" validate:"required,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) clean() {
	nu.Email = core.NormalizeKey(nu.Email)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.Surname = core.CleanString(nu.Surname)
	nu.SchoolID = core.CleanString(nu.SchoolID)
	nu.Role = Role(core.NormalizeKey(string(nu.Role)))
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email, nu.SchoolID)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Blank fields keep their current value.
type UpdateUser struct {
	FirstName       string `json:"first_name" validate:"omitempty,max=100"`
	Surname         string `json:"surname" validate:"omitempty,max=100"`
	SchoolID        string `json:"school_id" validate:"omitempty,code,max=50"`
	Role            Role   `json:"role" validate:"omitempty,role"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,omitempty,eqfield=Password"`

	// set by Validate from the original User, used by the password policy
	email string
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.FirstName); name != "" {
		uu.FirstName = name
	} else {
		uu.FirstName = origUsr.FirstName
	}

	if name := core.CleanString(uu.Surname); name != "" {
		uu.Surname = name
	} else {
		uu.Surname = origUsr.Surname
	}

	if schoolID := core.CleanString(uu.SchoolID); schoolID != "" {
		uu.SchoolID = schoolID
	} else {
		uu.SchoolID = origUsr.SchoolID
	}

	if role := Role(core.NormalizeKey(string(uu.Role))); role != "" {
		uu.Role = role
	} else {
		uu.Role = origUsr.Role
	}
	uu.email = origUsr.Email

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness("", uu.SchoolID, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string
	Roles    []Role
	IsActive *bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User. The first non-empty field wins: ID, then Email.
type GetFilter struct {
	ID    string
	Email string
}
