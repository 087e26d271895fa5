package testutil

import (
	"context"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/enrollment"
	"github.com/academia-dev/academia/core/user"
)

// NewConfig returns a self-contained test configuration; nothing is read from
// the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		AppName:          "Academia",
		SecretKey:        []byte("s3cr3t-t3st-k3y"),
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Address: "noreply@test.academia"},

		PasswordResetTimeoutDelta:     3 * 24 * time.Hour,
		EmailVerificationTimeoutDelta: 3 * 24 * time.Hour,

		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Lockout: core.LockoutConfig{
			MaxAttempts:        3,
			SuspensionDuration: 10 * time.Hour,
		},
	}
}

// NewLogger returns a core.Logger writing to stdout; Fatal kills the test run
// so failures are loud.
func NewLogger() core.Logger {
	return &testLogger{std: log.New(os.Stdout, "TEST : ", log.LstdFlags)}
}

type testLogger struct {
	std *log.Logger
}

var _ core.Logger = (*testLogger)(nil)

func (l *testLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l *testLogger) Debug(msg string, args ...interface{}) { l.print(msg, args) }
func (l *testLogger) Info(msg string, args ...interface{})  { l.print(msg, args) }
func (l *testLogger) Warn(msg string, args ...interface{})  { l.print(msg, args) }
func (l *testLogger) Error(msg string, args ...interface{}) { l.print(msg, args) }
func (l *testLogger) Fatal(msg string, args ...interface{}) {
	l.print(msg, args)
	l.std.Fatal(msg)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:          name,
		Email:         email,
		Role:          role,
		EmailVerified: true,
		Status:        user.StatusActive,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateApplication(
	t *testing.T,
	repo enrollment.Repository,
	firstName, lastName, email, gradeLevel string,
	submittedAt ...time.Time,
) enrollment.Application {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(submittedAt) > 0 {
		tstamp = submittedAt[0].UTC()
	}
	app := enrollment.Application{
		FirstName:       firstName,
		LastName:        lastName,
		Email:           email,
		GradeLevel:      gradeLevel,
		GuardianName:    "Guardian " + lastName,
		GuardianContact: "+1000000000",
		Status:          enrollment.StatusPending,
		SubmittedAt:     tstamp,
	}
	app, err := repo.CreateApplication(context.Background(), app)
	if err != nil {
		t.Fatalf("CreateApplication() failed: %v", err)
	}
	return app
}
