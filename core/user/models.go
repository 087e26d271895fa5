package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/academia-dev/academia/core"
)

// Roles
const (
	RoleAdmin      = "ADMIN"
	RoleFaculty    = "FACULTY"
	RoleTeacher    = "TEACHER"
	RoleStudent    = "STUDENT"
	RoleTransferee = "TRANSFEREE"
	RolePending    = "PENDING"
)

// Account statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

var (
	AllRoles    = []string{RoleAdmin, RoleFaculty, RoleTeacher, RoleStudent, RoleTransferee, RolePending}
	SignupRoles = []string{RolePending, RoleTransferee}
	AllStatuses = []string{StatusActive, StatusCompleted, StatusDropped}

	rolePriorities = map[string]int{
		RoleAdmin:      30,
		RoleFaculty:    20,
		RoleTeacher:    15,
		RoleStudent:    10,
		RoleTransferee: 5,
		RolePending:    1,
	}

	Roles = []Role{
		{Name: "Pending", Value: RolePending},
		{Name: "Transferee", Value: RoleTransferee},
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Faculty", Value: RoleFaculty},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID              string      `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	Email           string      `json:"email" db:"email"`
	Role            string      `json:"role" db:"role"`
	PasswordHash    []byte      `json:"-" db:"password_hash"`
	LRN             null.String `json:"lrn,omitempty" db:"lrn"`
	GradeLevel      string      `json:"grade_level,omitempty" db:"grade_level"`
	Section         string      `json:"section,omitempty" db:"section"`
	GuardianName    string      `json:"guardian_name,omitempty" db:"guardian_name"`
	GuardianContact string      `json:"guardian_contact,omitempty" db:"guardian_contact"`
	EmailVerified   bool        `json:"email_verified" db:"email_verified"`
	Status          string      `json:"status" db:"status"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin       null.Time   `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

// IsStaff reports whether the user may review enrollment applications.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleFaculty
}

// NewUser contains information needed to sign up a new User.
// Only self-service roles may be requested here; staff roles are granted by admins.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,signuprole"`
}

func (nu *NewUser) Validate(v *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = strings.ToUpper(core.CleanString(nu.Role))

	if err := v.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nu.Email)
}

// UpdateUser defines what information admins may provide to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            string `json:"role" validate:"omitempty,anyrole"`
	Status          string `json:"status" validate:"omitempty,accountstatus"`
	GradeLevel      string `json:"grade_level"`
	Section         string `json:"section"`
	GuardianName    string `json:"guardian_name"`
	GuardianContact string `json:"guardian_contact"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(v *validator.Validate, origUsr User, svc Service) error {
	uu.Name = core.CleanString(uu.Name)
	if uu.Name == "" {
		uu.Name = origUsr.Name
	}

	uu.Email = core.CleanString(uu.Email, true /* lower */)
	if uu.Email == "" {
		uu.Email = origUsr.Email
	}

	uu.Role = strings.ToUpper(core.CleanString(uu.Role))
	if uu.Role == "" {
		uu.Role = origUsr.Role
	}
	uu.Status = core.CleanString(uu.Status, true /* lower */)
	if uu.Status == "" {
		uu.Status = origUsr.Status
	}

	if err := v.Struct(uu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(v *validator.Validate) error { return v.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	Status      string    `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Status == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = strings.ToUpper(core.CleanString(qf.Role))
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
