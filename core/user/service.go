package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/lockout"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

// AuthError is returned on a failed credential comparison. AttemptsLeft is -1
// when the attempt was not tracked (no device identifier supplied).
type AuthError struct {
	AttemptsLeft int
}

func (err *AuthError) Error() string {
	if err.AttemptsLeft < 0 {
		return "invalid credentials"
	}
	return fmt.Sprintf("invalid credentials, %d attempt(s) remaining", err.AttemptsLeft)
}

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		// UpdateUser updates the user's set fields; emailVerified is applied only
		// when non-nil.
		UpdateUser(ctx context.Context, usr User, emailVerified *bool, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		VerifyEmail(ctx context.Context, uid, token string) (User, error)
		Authenticate(ctx context.Context, email, pwd, deviceID string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		repo    Repository
		lockSvc *lockout.Service
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	lockSvc *lockout.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	secretKey = conf.SecretKey
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	emailVerificationTimeoutDelta = conf.EmailVerificationTimeoutDelta

	return &service{
		repo:    repo,
		lockSvc: lockSvc,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *service) CheckEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a not-yet-privileged account from the self-service signup
// form and sends the verification email. The requested role may only be
// PENDING (default) or TRANSFEREE.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	role := nu.Role
	if role == "" {
		role = RolePending
	}

	now := time.Now().UTC()
	usr := User{
		Name:          nu.Name,
		Email:         nu.Email,
		Role:          role,
		EmailVerified: false,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewConflictError(err)
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	svc.sendVerificationMail(usr)
	return usr, nil
}

// VerifyEmail flips EmailVerified for the account matching a valid
// verification link. Already-verified accounts pass through unchanged.
func (svc *service) VerifyEmail(ctx context.Context, uid, token string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.EmailVerified {
		return usr, nil
	}
	if err = verifyToken(usr, token, purposeEmailVerification); err != nil {
		return User{}, core.NewValidationError(err)
	}

	verified := true
	usr, err = svc.repo.UpdateUser(ctx, User{ID: usr.ID, UpdatedAt: time.Now().UTC()}, &verified)
	return usr, errors.Wrap(err, "marking email verified")
}

// Authenticate runs the lockout-guarded login protocol: a suspended device is
// rejected before any credential comparison and consumes no attempt; a failed
// comparison counts one; a success clears the device's state.
func (svc *service) Authenticate(ctx context.Context, email, pwd, deviceID string) (User, error) {
	if deviceID != "" {
		if err := svc.lockSvc.Guard(ctx, deviceID); err != nil {
			if _, ok := errors.Cause(err).(*lockout.SuspendedError); ok {
				svc.logger.Warn(fmt.Sprintf("login attempt from suspended device %s", deviceID))
			}
			return User{}, err
		}
	}

	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, svc.failAttempt(ctx, deviceID)
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, svc.failAttempt(ctx, deviceID)
	}

	if deviceID != "" {
		if err = svc.lockSvc.RecordSuccess(ctx, deviceID); err != nil {
			return User{}, err
		}
	}

	usr, err = svc.repo.SetLastLogin(ctx, usr.ID, time.Now().UTC())
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *service) failAttempt(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return &AuthError{AttemptsLeft: -1}
	}
	rec, err := svc.lockSvc.RecordFailure(ctx, deviceID)
	if err != nil {
		return err
	}
	return &AuthError{AttemptsLeft: svc.lockSvc.AttemptsLeft(rec)}
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) (User, error) {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err = verifyToken(usr, rp.Token, purposePasswordReset); err != nil {
		return User{}, core.NewValidationError(err)
	}

	upd := User{ID: usr.ID, UpdatedAt: time.Now().UTC()}
	if err = upd.SetPassword(rp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err = svc.repo.UpdateUser(ctx, upd, nil)
	return usr, errors.Wrap(err, "updating password")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:              id,
		Name:            uu.Name,
		Email:           uu.Email,
		Role:            uu.Role,
		Status:          uu.Status,
		GradeLevel:      uu.GradeLevel,
		Section:         uu.Section,
		GuardianName:    uu.GuardianName,
		GuardianContact: uu.GuardianContact,
		UpdatedAt:       time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids)
}

func (svc *service) sendVerificationMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "email-verification",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), makeToken(usr, purposeEmailVerification)},
	})
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{usr.Name, EncodeUID(usr), makeToken(usr, purposePasswordReset)},
	})
}
