package user_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/lockout"
	"github.com/academia-dev/academia/core/user"
	emailsvc "github.com/academia-dev/academia/services/email"
	inmemdb "github.com/academia-dev/academia/storage/database/inmem"
	testutil "github.com/academia-dev/academia/tests"
)

var tokenRx = regexp.MustCompile(`uid=([^&\s]+)&token=([^&\s]+)`)

type fixture struct {
	db      *inmemdb.DB
	usrRepo user.Repository
	lockSvc *lockout.Service
	svc     user.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	lockSvc := lockout.NewService(inmemdb.NewLockoutRepository(db), conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := user.NewService(usrRepo, lockSvc, mailSvc, logger, conf)

	emailsvc.ClearSentMessages()
	t.Cleanup(emailsvc.ClearSentMessages)

	return &fixture{db: db, usrRepo: usrRepo, lockSvc: lockSvc, svc: svc}
}

// lastMailToken pulls the uid and token out of the most recent email body.
func lastMailToken(t *testing.T) (uid, token string) {
	t.Helper()

	if len(emailsvc.SentMessages) == 0 {
		t.Fatal("no email was sent")
	}
	msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
	match := tokenRx.FindStringSubmatch(msg.TextContent)
	if match == nil {
		t.Fatalf("no uid/token found in email body: %q", msg.TextContent)
	}
	return match[1], match[2]
}

func TestService_Register(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr, err := f.svc.Register(ctx, user.NewUser{
		Name:            "Jane Doe",
		Email:           "jane@test.cd",
		Password:        "LePassword#123",
		PasswordConfirm: "LePassword#123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if usr.Role != user.RolePending {
		t.Errorf("Role = %s, want %s", usr.Role, user.RolePending)
	}
	if usr.EmailVerified {
		t.Error("EmailVerified = true, want false on signup")
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent %d emails, want 1", len(emailsvc.SentMessages))
	}

	// duplicate email conflicts
	_, err = f.svc.Register(ctx, user.NewUser{
		Name:            "Jane Again",
		Email:           "jane@test.cd",
		Password:        "LePassword#123",
		PasswordConfirm: "LePassword#123",
	})
	if _, ok := errors.Cause(err).(*core.ConflictError); !ok {
		t.Errorf("Register() error = %v, want ConflictError", err)
	}
}

func TestService_VerifyEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, user.NewUser{
		Name:            "Jane Doe",
		Email:           "jane@test.cd",
		Password:        "LePassword#123",
		PasswordConfirm: "LePassword#123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	uid, token := lastMailToken(t)

	// a tampered token is rejected
	if _, err = f.svc.VerifyEmail(ctx, uid, token+"x"); err == nil {
		t.Error("VerifyEmail() error = nil, want invalid token")
	}

	usr, err := f.svc.VerifyEmail(ctx, uid, token)
	if err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	if !usr.EmailVerified {
		t.Error("EmailVerified = false, want true")
	}

	// repeated verification is a no-op
	usr, err = f.svc.VerifyEmail(ctx, uid, token)
	if err != nil {
		t.Fatalf("VerifyEmail() again error = %v", err)
	}
	if !usr.EmailVerified {
		t.Error("EmailVerified = false, want true")
	}
}

func TestService_Authenticate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deviceID := "device-1"

	testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", "LePassword#123", user.RoleStudent)

	// wrong password counts one attempt
	_, err := f.svc.Authenticate(ctx, "jane@test.cd", "nope", deviceID)
	authErr, ok := errors.Cause(err).(*user.AuthError)
	if !ok {
		t.Fatalf("Authenticate() error = %v, want *AuthError", err)
	}
	if authErr.AttemptsLeft != 2 {
		t.Errorf("AttemptsLeft = %d, want 2", authErr.AttemptsLeft)
	}

	// unknown email counts too
	_, err = f.svc.Authenticate(ctx, "whois@test.cd", "nope", deviceID)
	if authErr, ok = errors.Cause(err).(*user.AuthError); !ok || authErr.AttemptsLeft != 1 {
		t.Fatalf("Authenticate() error = %v, want *AuthError with 1 attempt left", err)
	}

	// success clears the count and stamps last login
	usr, err := f.svc.Authenticate(ctx, "jane@test.cd", "LePassword#123", deviceID)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !usr.LastLogin.Valid {
		t.Error("LastLogin not set")
	}
	rec, err := f.lockSvc.Check(ctx, deviceID)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if rec.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 after success", rec.Attempts)
	}
}

func TestService_AuthenticateSuspendsDevice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deviceID := "device-1"

	now := time.Now()
	lockout.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { lockout.NowFunc = time.Now })

	testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", "LePassword#123", user.RoleStudent)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Authenticate(ctx, "jane@test.cd", "nope", deviceID); err == nil {
			t.Fatal("Authenticate() error = nil, want *AuthError")
		}
	}

	// the device is out, even with correct credentials
	_, err := f.svc.Authenticate(ctx, "jane@test.cd", "LePassword#123", deviceID)
	suspErr, ok := errors.Cause(err).(*lockout.SuspendedError)
	if !ok {
		t.Fatalf("Authenticate() error = %v, want *SuspendedError", err)
	}
	if suspErr.Remaining != 10*time.Hour {
		t.Errorf("Remaining = %v, want %v", suspErr.Remaining, 10*time.Hour)
	}

	// a suspended attempt consumes no attempt
	rec, _ := f.lockSvc.Check(ctx, deviceID)
	if rec.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", rec.Attempts)
	}

	// another device is unaffected
	if _, err = f.svc.Authenticate(ctx, "jane@test.cd", "LePassword#123", "device-2"); err != nil {
		t.Errorf("Authenticate() on fresh device error = %v", err)
	}

	// once the window elapses the device logs in again
	now = now.Add(10*time.Hour + time.Minute)
	if _, err = f.svc.Authenticate(ctx, "jane@test.cd", "LePassword#123", deviceID); err != nil {
		t.Errorf("Authenticate() after expiry error = %v", err)
	}
}

func TestService_AuthenticateUntrackedDevice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", "LePassword#123", user.RoleStudent)

	// without a device ID failures are not throttled
	for i := 0; i < 5; i++ {
		_, err := f.svc.Authenticate(ctx, "jane@test.cd", "nope", "")
		authErr, ok := errors.Cause(err).(*user.AuthError)
		if !ok {
			t.Fatalf("Authenticate() error = %v, want *AuthError", err)
		}
		if authErr.AttemptsLeft != -1 {
			t.Errorf("AttemptsLeft = %d, want -1", authErr.AttemptsLeft)
		}
	}
	if _, err := f.svc.Authenticate(ctx, "jane@test.cd", "LePassword#123", ""); err != nil {
		t.Errorf("Authenticate() error = %v", err)
	}
}

func TestService_PasswordReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", "LePassword#123", user.RoleStudent)

	if err := f.svc.RequestPasswordReset(ctx, "jane@test.cd"); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	uid, token := lastMailToken(t)

	_, err := f.svc.ConfirmPasswordReset(ctx, user.ResetUserPassword{
		UID:             uid,
		Token:           token,
		Password:        "NewPassword#456",
		PasswordConfirm: "NewPassword#456",
	})
	if err != nil {
		t.Fatalf("ConfirmPasswordReset() error = %v", err)
	}

	if _, err = f.svc.Authenticate(ctx, "jane@test.cd", "NewPassword#456", ""); err != nil {
		t.Errorf("Authenticate() with new password error = %v", err)
	}

	// resetting invalidated the token
	_, err = f.svc.ConfirmPasswordReset(ctx, user.ResetUserPassword{
		UID:             uid,
		Token:           token,
		Password:        "YetAnother#789",
		PasswordConfirm: "YetAnother#789",
	})
	if err == nil {
		t.Error("ConfirmPasswordReset() error = nil, want invalid token")
	}

	// unknown accounts bubble up ErrNotFound; the API layer hides it
	if err = f.svc.RequestPasswordReset(ctx, "whois@test.cd"); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("RequestPasswordReset() error = %v, want ErrNotFound", err)
	}
}
