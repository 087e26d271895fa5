package user

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestMakeVerifyToken(t *testing.T) {
	secretKey = []byte("secret")
	passwordResetTimeoutDelta = 3 * 24 * time.Hour
	emailVerificationTimeoutDelta = 3 * 24 * time.Hour

	now := time.Now()
	usr := User{
		ID:        "0c9cabb2-4a12-4cfb-8b1c-3b6a1e912345",
		Name:      "T",
		Email:     "t@test.test",
		Role:      RoleStudent,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	_ = usr.SetPassword("pwd")

	validToken := makeToken(usr, purposePasswordReset)
	verificationToken := makeToken(usr, purposeEmailVerification)

	// generate an expired token
	dayLate := passwordResetTimeoutDelta + (24 * time.Hour)
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := makeToken(usr, purposePasswordReset)
	nowFunc = time.Now // reset

	tests := []struct {
		name    string
		usr     User
		token   string
		purpose string
		wantErr error
	}{
		{name: "no token", usr: usr, purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", purpose: purposePasswordReset, wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, purpose: purposePasswordReset, wantErr: errTokenExpired},
		{name: "wrong purpose", usr: usr, token: validToken, purpose: purposeEmailVerification, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken, purpose: purposePasswordReset},
		{name: "valid verification token", usr: usr, token: verificationToken, purpose: purposeEmailVerification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := verifyToken(tt.usr, tt.token, tt.purpose); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyTokenInvalidatedByStateChange(t *testing.T) {
	secretKey = []byte("secret")
	emailVerificationTimeoutDelta = 3 * 24 * time.Hour

	usr := User{ID: "a-user", Email: "t@test.test"}
	_ = usr.SetPassword("pwd")

	token := makeToken(usr, purposeEmailVerification)
	if err := verifyToken(usr, token, purposeEmailVerification); err != nil {
		t.Fatalf("verifyToken() error = %v", err)
	}

	// verifying the email invalidates the token
	usr.EmailVerified = true
	if err := verifyToken(usr, token, purposeEmailVerification); err != errInvalidToken {
		t.Errorf("verifyToken() error = %v, wantErr %v", err, errInvalidToken)
	}
}
