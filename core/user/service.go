package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/odinschool/odin/core"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrSchoolIDExists = errors.New("a user with this school ID already exists")
	ErrRoleForbidden  = errors.New("this role cannot be chosen at registration")
)

type (
	Repository interface {
		// CheckUserUniqueness returns ErrEmailExists or ErrSchoolIDExists if another user holds email or schoolID.
		// Blank values are not checked.
		CheckUserUniqueness(ctx context.Context, email, schoolID string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FirstName, User.Surname, User.Email or User.SchoolID.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen *tokenGenerator
		conf     *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		conf:     conf,
	}
}

// CheckUniqueness maps uniqueness violations to field errors.
func (svc *Service) CheckUniqueness(email, schoolID string, exclUsers ...User) error {
	if err := svc.repo.CheckUserUniqueness(context.Background(), email, schoolID, exclUsers); err != nil {
		switch err {
		case ErrEmailExists:
			return core.NewFieldError(err, "email")
		case ErrSchoolIDExists:
			return core.NewFieldError(err, "school_id")
		default:
			return err
		}
	}
	return nil
}

// Register creates the account of a student or teacher signing up by themselves.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if !Role(core.NormalizeKey(string(nu.Role))).In(SelfServiceRoles...) {
		return User{}, core.NewFieldError(ErrRoleForbidden, "role")
	}
	return svc.Create(ctx, nu)
}

// Create creates a user of any role. The caller is responsible for validating nu.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	usr := User{
		Email:     core.NormalizeKey(nu.Email),
		FirstName: core.CleanString(nu.FirstName),
		Surname:   core.CleanString(nu.Surname),
		SchoolID:  core.CleanString(nu.SchoolID),
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !usr.Role.Valid() {
		return User{}, core.NewFieldError(errInvalidRole, "role")
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "surname", Ascending: true}, {Field: "first_name", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.NormalizeKey(email)})
}

// Update applies the validated changes uu to usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.FirstName = uu.FirstName
	usr.Surname = uu.Surname
	usr.SchoolID = uu.SchoolID
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC().Truncate(time.Microsecond))
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset emails a password reset link to the active user owning email.
// Unknown emails are ignored so the endpoint does not disclose who has an account.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if !usr.IsActive {
		return nil
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.FirstName,
			"UID":   encodeUID(usr),
			"Token": svc.tokenGen.makeToken(usr),
		},
	})
	return nil
}

// ResetPassword sets a new password for the user identified by data.UID, provided data.Token is valid.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword, validate *validator.Validate) (User, error) {
	if err := data.Validate(validate); err != nil {
		return User{}, err
	}

	invalidErr := core.NewValidationError(errInvalidToken)
	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, invalidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return User{}, invalidErr
		}
		return User{}, err
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return User{}, core.NewValidationError(err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	return svc.repo.UpdateUser(ctx, usr)
}
