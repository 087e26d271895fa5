package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/activity"
	"github.com/academia-dev/academia/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("enrollment application not found")
	ErrApplicationDecided = errors.New("enrollment application has already been decided")
	ErrPendingAppExists   = errors.New("a pending application with this email already exists")
	ErrAccountExists      = errors.New("an account with this email already exists")
	ErrInvalidDecision    = errors.New("invalid decision")
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		GetApplicationByID(ctx context.Context, id string, exec ...core.DBExecutor) (Application, error)
		QueryApplications(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Application, error)
		HasPendingApplication(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error)
		// SetDecision flips a still-pending application to the given terminal
		// status; it fails with ErrApplicationDecided when the application is no
		// longer pending, which serializes concurrent decisions.
		SetDecision(ctx context.Context, id, status, decidedBy string, at time.Time, exec ...core.DBExecutor) (Application, error)
	}

	Service interface {
		Submit(ctx context.Context, na NewApplication) (Application, error)
		GetByID(ctx context.Context, id string) (Application, error)
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Application, error)
		Decide(ctx context.Context, id, decision string, actor user.User) (Application, error)
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		usrRepo user.Repository
		actSvc  *activity.Service
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	usrRepo user.Repository,
	actSvc *activity.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		usrRepo: usrRepo,
		actSvc:  actSvc,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Submit stores a new application as pending. One in-flight application per
// applicant email; a duplicate submission is a Conflict.
func (svc *service) Submit(ctx context.Context, na NewApplication) (Application, error) {
	exists, err := svc.repo.HasPendingApplication(ctx, na.Email)
	if err != nil {
		return Application{}, errors.Wrap(err, "checking pending applications")
	}
	if exists {
		return Application{}, core.NewConflictError(ErrPendingAppExists)
	}

	app := Application{
		FirstName:       na.FirstName,
		MiddleName:      na.MiddleName,
		LastName:        na.LastName,
		Email:           na.Email,
		GradeLevel:      na.GradeLevel,
		PreviousSchool:  na.PreviousSchool,
		GuardianName:    na.GuardianName,
		GuardianContact: na.GuardianContact,
		Status:          StatusPending,
		Documents:       na.Documents,
		SubmittedAt:     time.Now().UTC(),
	}
	app, err = svc.repo.CreateApplication(ctx, app)
	if err != nil {
		if errors.Cause(err) == ErrPendingAppExists {
			return Application{}, core.NewConflictError(err)
		}
		return Application{}, errors.Wrap(err, "creating application")
	}

	if _, err = svc.actSvc.Log(ctx, "", app.FullName(), fmt.Sprintf("submitted enrollment application for %s", app.GradeLevel), activity.CategoryEnrollment); err != nil {
		svc.logger.Error("logging application submission", err)
	}
	return app, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Application, error) {
	return svc.repo.GetApplicationByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Application, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at"}}
	}
	return svc.repo.QueryApplications(ctx, filter, ordering)
}

// Decide converts a pending application into its terminal state. An approval
// provisions a student account with generated credentials; the status flip,
// the uniqueness check, the account insert and the audit entry commit in one
// transaction, so a crash or a concurrent second approval cannot leave a
// half-provisioned applicant. The credentials email goes out after commit and
// is best-effort only.
func (svc *service) Decide(ctx context.Context, id, decision string, actor user.User) (Application, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return Application{}, core.NewValidationError(ErrInvalidDecision, core.FieldError{Field: "status", Error: decisionText})
	}

	var (
		app     Application
		usr     user.User
		tempPwd string
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.repo.SetDecision(ctx, id, decision, actor.ID, time.Now().UTC(), exec)
		if err != nil {
			return err
		}

		if decision == StatusRejected {
			_, err = svc.actSvc.Log(ctx, actor.ID, actor.Name,
				fmt.Sprintf("rejected enrollment application %s (%s)", app.ID, app.Email),
				activity.CategoryEnrollment, exec)
			return errors.Wrap(err, "logging rejection")
		}

		// approval: provision the student account
		if err = svc.usrRepo.CheckEmailUniqueness(ctx, app.Email, nil, exec); err != nil {
			if errors.Cause(err) == user.ErrEmailExists {
				return ErrAccountExists
			}
			return errors.Wrap(err, "checking account email")
		}

		lrn, err := generateLRN()
		if err != nil {
			return err
		}
		tempPwd, err = generateTempPassword()
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		usr = user.User{
			Name:            app.FullName(),
			Email:           app.Email,
			Role:            user.RoleStudent,
			LRN:             null.StringFrom(lrn),
			GradeLevel:      app.GradeLevel,
			GuardianName:    app.GuardianName,
			GuardianContact: app.GuardianContact,
			EmailVerified:   true,
			Status:          user.StatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err = usr.SetPassword(tempPwd); err != nil {
			return errors.Wrap(err, "setting password")
		}
		if usr, err = svc.usrRepo.CreateUser(ctx, usr, exec); err != nil {
			if errors.Cause(err) == user.ErrEmailExists {
				return ErrAccountExists
			}
			return errors.Wrap(err, "creating student account")
		}

		_, err = svc.actSvc.Log(ctx, actor.ID, actor.Name,
			fmt.Sprintf("approved enrollment application %s; provisioned student account with LRN %s", app.ID, lrn),
			activity.CategoryEnrollment, exec)
		return errors.Wrap(err, "logging approval")
	})
	if err != nil {
		switch errors.Cause(err) {
		case ErrAccountExists, ErrApplicationDecided:
			return Application{}, core.NewConflictError(err)
		}
		return Application{}, err
	}

	if decision == StatusApproved {
		svc.sendCredentialsMail(usr, tempPwd)
	}
	return app, nil
}

// sendCredentialsMail emails the freshly generated LRN and temporary password.
// Delivery failures are logged by the email service and never roll back the
// provisioning; an applicant whose email got lost falls back to a manual
// password reset.
func (svc *service) sendCredentialsMail(usr user.User, tempPwd string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your enrollment has been approved",
		TemplateName: "student-credentials",
		TemplateData: struct {
			Name     string
			LRN      string
			Password string
		}{usr.Name, usr.LRN.String, tempPwd},
	})
}
