package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/academia-dev/academia/core/user"
	emailsvc "github.com/academia-dev/academia/services/email"
	testutil "github.com/academia-dev/academia/tests"
)

var tokenRx = regexp.MustCompile(`uid=([^&\s]+)&token=([^&\s]+)`)

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

func Test_userApi_register(t *testing.T) {
	resetDB(t)

	testutil.CreateUser(t, usrRepo, "Taken", "taken@test.cd", "", user.RoleStudent)

	body := func(name, email, pwd, pwdConfirm, role string) []byte {
		return []byte(fmt.Sprintf(
			`{"name":%q,"email":%q,"password":%q,"password_confirm":%q,"role":%q}`,
			name, email, pwd, pwdConfirm, role,
		))
	}

	tests := []httpTest{
		{
			name: "empty payload", body: []byte("{}"), wantCode: http.StatusBadRequest,
		},
		{
			name: "password mismatch", body: body("Jane", "jane@test.cd", "LePassword#123", "LePassword#124", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "common password", body: body("Jane", "jane@test.cd", "password", "password", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "password too similar to attributes", body: body("Jane", "jane@test.cd", "jane@test.cd", "jane@test.cd", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "staff role not self-assignable", body: body("Jane", "jane@test.cd", "LePassword#123", "LePassword#123", user.RoleAdmin),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "email taken", body: body("Jane", "taken@test.cd", "LePassword#123", "LePassword#123", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "signup ok", body: body("Jane", "jane@test.cd", "LePassword#123", "LePassword#123", ""),
			wantCode: http.StatusCreated,
		},
		{
			name: "transferee signup ok", body: body("John", "john@test.cd", "LePassword#123", "LePassword#123", user.RoleTransferee),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/register", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	// the new signup has the default role and an unverified email
	var usr user.User
	req, rec := newRequest(http.MethodPost, "/v1/users/register", body("Doe", "doe@test.cd", "LePassword#123", "LePassword#123", ""))
	app.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if usr.Role != user.RolePending {
		t.Errorf("role = %s, want %s", usr.Role, user.RolePending)
	}
	if usr.EmailVerified {
		t.Error("email_verified = true, want false")
	}
}

func Test_userApi_verifyEmail(t *testing.T) {
	resetDB(t)

	req, rec := newRequest(http.MethodPost, "/v1/users/register",
		[]byte(`{"name":"Jane","email":"jane@test.cd","password":"LePassword#123","password_confirm":"LePassword#123"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %s", rec.Body.String())
	}
	uid, token := lastMailToken(t)

	tests := []httpTest{
		{name: "missing fields", body: []byte("{}"), wantCode: http.StatusBadRequest},
		{name: "bad token", body: []byte(fmt.Sprintf(`{"uid":%q,"token":"nope"}`, uid)), wantCode: http.StatusBadRequest},
		{name: "ok", body: []byte(fmt.Sprintf(`{"uid":%q,"token":%q}`, uid, token)), wantCode: http.StatusOK},
		{name: "idempotent", body: []byte(fmt.Sprintf(`{"uid":%q,"token":%q}`, uid, token)), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/verify-email", tt.body)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	testutil.CreateUser(t, usrRepo, "Jane", "jane@test.cd", "LePassword#123", user.RoleStudent)

	body := func(email, pwd, deviceID string) []byte {
		return []byte(fmt.Sprintf(`{"email":%q,"password":%q,"device_id":%q}`, email, pwd, deviceID))
	}

	tests := []httpTest{
		{name: "missing fields", body: []byte("{}"), wantCode: http.StatusBadRequest},
		{
			name: "wrong password (untracked)", body: body("jane@test.cd", "nope", ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", body: body("jane@test.cd", "nope", "dev-1"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials, 2 attempt(s) remaining"}),
		},
		{
			name: "unknown email", body: body("whois@test.cd", "nope", "dev-1"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials, 1 attempt(s) remaining"}),
		},
		{
			name: "third failure suspends", body: body("jane@test.cd", "nope", "dev-1"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials, 0 attempt(s) remaining"}),
		},
		{
			name: "suspended device", body: body("jane@test.cd", "LePassword#123", "dev-1"),
			wantCode: http.StatusLocked, wantData: marchallObj(t, httpErr{Error: "device suspended, 10 hours remaining"}),
		},
		{name: "other device unaffected", body: body("jane@test.cd", "LePassword#123", "dev-2"), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string    `json:"token"`
					User  user.User `json:"user"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if resp.Token == "" {
					t.Error("no token returned")
				}
				if !resp.User.LastLogin.Valid {
					t.Error("last_login not set")
				}
			}
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	resetDB(t)

	testutil.CreateUser(t, usrRepo, "Jane", "jane@test.cd", "LePassword#123", user.RoleStudent)

	// the response never reveals whether the account exists
	for _, email := range []string{"jane@test.cd", "whois@test.cd"} {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", []byte(fmt.Sprintf(`{"email":%q}`, email)))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent %d emails, want 1", len(emailsvc.SentMessages))
	}
	uid, token := lastMailToken(t)

	confirmBody := []byte(fmt.Sprintf(
		`{"uid":%q,"token":%q,"password":"NewPassword#456","password_confirm":"NewPassword#456"}`, uid, token))
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", confirmBody)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// old password out, new password in
	req, rec = newRequest(http.MethodPost, "/v1/users/login", []byte(`{"email":"jane@test.cd","password":"LePassword#123"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("old password still works; code = %v", rec.Code)
	}
	req, rec = newRequest(http.MethodPost, "/v1/users/login", []byte(`{"email":"jane@test.cd","password":"NewPassword#456"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("new password rejected; code = %v; body %s", rec.Code, rec.Body.String())
	}
}

func Test_userApi_userQuery(t *testing.T) {
	resetDB(t)

	path := func(search, role, status string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		if status != "" {
			v.Add("status", status)
		}
		return "/v1/users?" + v.Encode()
	}

	now := time.Now()
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent, now.Add(1*time.Hour))
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher@test.cd", "", user.RoleTeacher, now.Add(2*time.Hour))
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, now.Add(3*time.Hour))

	adminToken := getToken(t, admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, student, teacher, admin),
		},
		{name: "search (unknown)", path: path("lol", "", ""), token: adminToken, wantCode: http.StatusOK, wantData: empty},
		{
			name: "search=her", path: path("her", "", ""), token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, student),
		},
		{
			name: "role=STUDENT", path: path("", user.RoleStudent, ""), token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, student),
		},
		{name: "role (unknown)", path: path("", "GHOST", ""), token: adminToken, wantCode: http.StatusOK, wantData: empty},
		{
			name: "status=active", path: path("", "", user.StatusActive), token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, student, teacher, admin),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent)
	other := testutil.CreateUser(t, usrRepo, "Other", "other@test.cd", "", user.RoleStudent)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin)

	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)

	t.Run("own detail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID, studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("someone else's detail is hidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, studentToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("admin updates role", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+other.ID, adminToken, []byte(`{"role":"TEACHER"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var usr user.User
		_ = json.Unmarshal(rec.Body.Bytes(), &usr)
		if usr.Role != user.RoleTeacher {
			t.Errorf("role = %s, want %s", usr.Role, user.RoleTeacher)
		}
	})

	t.Run("non-admin cannot update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, studentToken, []byte(`{"name":"Sneaky"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin cannot delete self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin deletes user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+other.ID, adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusNoContent)
		}
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "Jane", "jane@test.cd", "", user.RoleStudent)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if resp.Token == "" {
		t.Error("no token returned")
	}
}
