package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/academia-dev/academia/core/activity"
	"github.com/academia-dev/academia/core/enrollment"
	"github.com/academia-dev/academia/core/user"
	emailsvc "github.com/academia-dev/academia/services/email"
	testutil "github.com/academia-dev/academia/tests"
)

func applicationBody(firstName, lastName, email, gradeLevel string) []byte {
	return []byte(fmt.Sprintf(
		`{"first_name":%q,"last_name":%q,"email":%q,"grade_level":%q,"guardian_name":"Guardian","guardian_contact":"+63 900 000 0000"}`,
		firstName, lastName, email, gradeLevel,
	))
}

func Test_enrollmentApi_submit(t *testing.T) {
	resetDB(t)

	tests := []httpTest{
		{name: "empty payload", body: []byte("{}"), wantCode: http.StatusBadRequest},
		{name: "invalid email", body: applicationBody("Juan", "dela Cruz", "not-an-email", "Grade 7"), wantCode: http.StatusBadRequest},
		{name: "submit ok", body: applicationBody("Juan", "dela Cruz", "juan@test.ph", "Grade 7"), wantCode: http.StatusCreated},
		{
			name: "duplicate pending application", body: applicationBody("Juan", "dela Cruz", "juan@test.ph", "Grade 7"),
			wantCode: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/enrollment/applications", tt.body)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_enrollmentApi_query(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent)
	staff := testutil.CreateUser(t, usrRepo, "Reg Istrar", "registrar@test.cd", "", user.RoleFaculty)

	app1 := testutil.CreateApplication(t, enrollRepo, "Juan", "dela Cruz", "juan@test.ph", "Grade 7")
	app2 := testutil.CreateApplication(t, enrollRepo, "Maria", "Santos", "maria@test.ph", "Grade 8")

	staffToken := getToken(t, staff)

	path := func(search, status, gradeLevel string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if status != "" {
			v.Add("status", status)
		}
		if gradeLevel != "" {
			v.Add("grade_level", gradeLevel)
		}
		return "/v1/enrollment/applications?" + v.Encode()
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/enrollment/applications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Staff required", path: "/v1/enrollment/applications", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/v1/enrollment/applications", token: staffToken,
			wantCode: http.StatusOK, wantData: marchallList(t, app1, app2),
		},
		{
			name: "filter by grade level", path: path("", "", "Grade 8"), token: staffToken,
			wantCode: http.StatusOK, wantData: marchallList(t, app2),
		},
		{
			name: "search by name", path: path("santos", "", ""), token: staffToken,
			wantCode: http.StatusOK, wantData: marchallList(t, app2),
		},
		{
			name: "filter by status", path: path("", enrollment.StatusApproved, ""), token: staffToken,
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("retrieve detail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollment/applications/"+app1.ID, staffToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollment/applications/nope", staffToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusNotFound)
		}
	})
}

func Test_enrollmentApi_decide(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent)
	staff := testutil.CreateUser(t, usrRepo, "Reg Istrar", "registrar@test.cd", "", user.RoleAdmin)
	staffToken := getToken(t, staff)

	application := testutil.CreateApplication(t, enrollRepo, "Juan", "dela Cruz", "juan@test.ph", "Grade 7")
	decisionPath := func(id string) string { return "/v1/enrollment/applications/" + id + "/decision" }

	tests := []httpTest{
		{
			name: "Auth required", path: decisionPath(application.ID), body: []byte(`{"status":"approved"}`),
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "Staff required", path: decisionPath(application.ID), body: []byte(`{"status":"approved"}`),
			token: getToken(t, student), wantCode: http.StatusForbidden,
		},
		{
			name: "decision must be terminal", path: decisionPath(application.ID), body: []byte(`{"status":"pending"}`),
			token: staffToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown application", path: decisionPath("nope"), body: []byte(`{"status":"approved"}`),
			token: staffToken, wantCode: http.StatusNotFound,
		},
		{
			name: "approve", path: decisionPath(application.ID), body: []byte(`{"status":"approved"}`),
			token: staffToken, wantCode: http.StatusOK,
		},
		{
			name: "decisions are final", path: decisionPath(application.ID), body: []byte(`{"status":"rejected"}`),
			token: staffToken, wantCode: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	// approval provisioned the student account and emailed the credentials
	var usr user.User
	req, rec := newAuthRequest(http.MethodGet, "/v1/users?"+url.Values{"role": {user.RoleStudent}, "search": {"juan"}}.Encode(), staffToken)
	app.ServeHTTP(rec, req)
	var users []user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("got %d provisioned users, want 1; body %s", len(users), rec.Body.String())
	}
	usr = users[0]
	if !usr.LRN.Valid || len(usr.LRN.String) != 12 {
		t.Errorf("LRN = %q, want a 12-digit number", usr.LRN.String)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Errorf("sent %d emails, want 1", len(emailsvc.SentMessages))
	}

	// the admin-only audit trail recorded the approval
	req, rec = newAuthRequest(http.MethodGet, "/v1/activity?category="+activity.CategoryEnrollment, staffToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	var entries []activity.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d audit entries, want 1", len(entries))
	}

	t.Run("activity is admin-only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/activity", getToken(t, student))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v, want %v", rec.Code, http.StatusForbidden)
		}
	})
}
