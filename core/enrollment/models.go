package enrollment

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
)

// Application statuses. An application is decided exactly once:
// pending -> approved or pending -> rejected, never reversed.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Application is a candidate's intake record, retained indefinitely for audit.
type Application struct {
	ID              string      `json:"id" db:"id"`
	FirstName       string      `json:"first_name" db:"first_name"`
	MiddleName      string      `json:"middle_name,omitempty" db:"middle_name"`
	LastName        string      `json:"last_name" db:"last_name"`
	Email           string      `json:"email" db:"email"`
	GradeLevel      string      `json:"grade_level" db:"grade_level"`
	PreviousSchool  string      `json:"previous_school,omitempty" db:"previous_school"`
	GuardianName    string      `json:"guardian_name,omitempty" db:"guardian_name"`
	GuardianContact string      `json:"guardian_contact,omitempty" db:"guardian_contact"`
	Status          string      `json:"status" db:"status"`
	Documents       []string    `json:"documents,omitempty" db:"documents"`
	SubmittedAt     time.Time   `json:"submitted_at" db:"submitted_at"` // UTC
	DecidedAt       null.Time   `json:"decided_at" db:"decided_at"`     // UTC
	DecidedBy       null.String `json:"decided_by,omitempty" db:"decided_by"`
}

func (a Application) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.FirstName, a.MiddleName, a.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (a Application) IsDecided() bool { return a.Status != StatusPending }

// NewApplication contains information needed to submit an enrollment
// application. Documents holds references to already-uploaded supporting
// files; the upload transport itself lives outside this service.
type NewApplication struct {
	FirstName       string   `json:"first_name" validate:"required"`
	MiddleName      string   `json:"middle_name"`
	LastName        string   `json:"last_name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	GradeLevel      string   `json:"grade_level" validate:"required"`
	PreviousSchool  string   `json:"previous_school"`
	GuardianName    string   `json:"guardian_name" validate:"required"`
	GuardianContact string   `json:"guardian_contact" validate:"required"`
	Documents       []string `json:"documents"`
}

func (na *NewApplication) Clean() {
	na.FirstName = core.CleanString(na.FirstName)
	na.MiddleName = core.CleanString(na.MiddleName)
	na.LastName = core.CleanString(na.LastName)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.GradeLevel = core.CleanString(na.GradeLevel)
	na.PreviousSchool = core.CleanString(na.PreviousSchool)
	na.GuardianName = core.CleanString(na.GuardianName)
	na.GuardianContact = core.CleanString(na.GuardianContact)
}

// Decision is a staff member's ruling on a pending application.
type Decision struct {
	Status string `json:"status" validate:"required,decision"`
}

type QueryFilter struct {
	Search        string    `query:"search"`
	Status        string    `query:"status"`
	GradeLevel    string    `query:"grade_level"`
	SubmittedFrom time.Time `query:"submitted_from"`
	SubmittedTo   time.Time `query:"submitted_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == "" && qf.GradeLevel == "" && qf.SubmittedFrom.IsZero() && qf.SubmittedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.GradeLevel = core.CleanString(qf.GradeLevel)
}
