package tests

import (
	"fmt"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/academia-dev/academia/apps/api/echo"
	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/activity"
	"github.com/academia-dev/academia/core/enrollment"
	"github.com/academia-dev/academia/core/lockout"
	"github.com/academia-dev/academia/core/user"
	emailsvc "github.com/academia-dev/academia/services/email"
	inmemdb "github.com/academia-dev/academia/storage/database/inmem"
	testutil "github.com/academia-dev/academia/tests"
)

var (
	conf *core.Config
	db   *inmemdb.DB
	app  Server

	usrRepo    user.Repository
	enrollRepo enrollment.Repository
	actRepo    activity.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func TestMain(m *testing.M) {
	conf = testutil.NewConfig()
	logger := testutil.NewLogger()

	// set up DB & repos
	db = inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	enrollRepo = inmemdb.NewEnrollmentRepository(db)
	actRepo = inmemdb.NewActivityRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	lockSvc := lockout.NewService(inmemdb.NewLockoutRepository(db), conf)
	actSvc := activity.NewService(actRepo)
	usrSvc := user.NewService(usrRepo, lockSvc, mailSvc, logger, conf)
	enrollSvc := enrollment.NewService(db, enrollRepo, usrRepo, actSvc, mailSvc, logger, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	enrollment.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// set up server
	app = NewServer(
		ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			EnrollSvc:      enrollSvc,
			ActSvc:         actSvc,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)

	// run tests
	code := m.Run()

	fmt.Println("tests done")
	os.Exit(code)
}

func resetDB(t *testing.T) {
	t.Helper()
	db.Reset()
	emailsvc.ClearSentMessages()
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
