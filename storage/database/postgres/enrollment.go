package pgrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/enrollment"
)

const applicationCols = `id, first_name, middle_name, last_name, email, grade_level,
	previous_school, guardian_name, guardian_contact, status, documents, submitted_at, decided_at, decided_by`

// applicationRow mirrors enrollment.Application with pq-compatible columns.
type applicationRow struct {
	ID              string         `db:"id"`
	FirstName       string         `db:"first_name"`
	MiddleName      string         `db:"middle_name"`
	LastName        string         `db:"last_name"`
	Email           string         `db:"email"`
	GradeLevel      string         `db:"grade_level"`
	PreviousSchool  string         `db:"previous_school"`
	GuardianName    string         `db:"guardian_name"`
	GuardianContact string         `db:"guardian_contact"`
	Status          string         `db:"status"`
	Documents       pq.StringArray `db:"documents"`
	SubmittedAt     time.Time      `db:"submitted_at"`
	DecidedAt       null.Time      `db:"decided_at"`
	DecidedBy       null.String    `db:"decided_by"`
}

func (row applicationRow) toApplication() enrollment.Application {
	return enrollment.Application{
		ID:              row.ID,
		FirstName:       row.FirstName,
		MiddleName:      row.MiddleName,
		LastName:        row.LastName,
		Email:           row.Email,
		GradeLevel:      row.GradeLevel,
		PreviousSchool:  row.PreviousSchool,
		GuardianName:    row.GuardianName,
		GuardianContact: row.GuardianContact,
		Status:          row.Status,
		Documents:       row.Documents,
		SubmittedAt:     row.SubmittedAt,
		DecidedAt:       row.DecidedAt,
		DecidedBy:       row.DecidedBy,
	}
}

type enrollmentRepository struct {
	exec core.DBExecutor
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{exec: exec}
}

func (repo enrollmentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo enrollmentRepository) queryApplications(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) ([]enrollment.Application, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	appRows := make([]applicationRow, 0)
	if err = sqlx.StructScan(rows, &appRows); err != nil {
		return nil, err
	}
	apps := make([]enrollment.Application, 0, len(appRows))
	for _, row := range appRows {
		apps = append(apps, row.toApplication())
	}
	return apps, rows.Err()
}

func (repo enrollmentRepository) getApplication(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (enrollment.Application, error) {
	apps, err := repo.queryApplications(ctx, exec, query, args...)
	if err != nil {
		return enrollment.Application{}, err
	}
	if len(apps) == 0 {
		return enrollment.Application{}, enrollment.ErrNotFound
	}
	return apps[0], nil
}

func (repo enrollmentRepository) CreateApplication(ctx context.Context, app enrollment.Application, exec ...core.DBExecutor) (enrollment.Application, error) {
	app.ID = uuid.New().String()

	query := `INSERT INTO enrollment_application (` + applicationCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + applicationCols
	created, err := repo.getApplication(ctx, repo.getExec(exec), query,
		app.ID, app.FirstName, app.MiddleName, app.LastName, app.Email, app.GradeLevel,
		app.PreviousSchool, app.GuardianName, app.GuardianContact, app.Status,
		pq.StringArray(app.Documents), app.SubmittedAt.UTC(), app.DecidedAt, app.DecidedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return enrollment.Application{}, enrollment.ErrPendingAppExists
		}
		return enrollment.Application{}, errors.Wrap(err, "inserting application")
	}
	return created, nil
}

func (repo enrollmentRepository) GetApplicationByID(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Application, error) {
	app, err := repo.getApplication(ctx, repo.getExec(exec), `SELECT `+applicationCols+` FROM enrollment_application WHERE id = $1`, id)
	if err == enrollment.ErrNotFound {
		return enrollment.Application{}, err
	}
	return app, errors.Wrap(err, "getting application by id")
}

func (repo enrollmentRepository) QueryApplications(ctx context.Context, filter *enrollment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]enrollment.Application, error) {
	query := `SELECT ` + applicationCols + ` FROM enrollment_application`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR email ILIKE %[1]s)", p))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
		if filter.GradeLevel != "" {
			conds = append(conds, "grade_level = "+arg(filter.GradeLevel))
		}
		if !filter.SubmittedFrom.IsZero() {
			conds = append(conds, "submitted_at >= "+arg(filter.SubmittedFrom.UTC()))
		}
		if !filter.SubmittedTo.IsZero() {
			conds = append(conds, "submitted_at <= "+arg(filter.SubmittedTo.UTC()))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) > 0 {
		ords := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			ords = append(ords, ord.String())
		}
		query += " ORDER BY " + strings.Join(ords, ", ")
	}

	apps, err := repo.queryApplications(ctx, repo.getExec(exec), query, args...)
	return apps, errors.Wrap(err, "querying applications")
}

func (repo enrollmentRepository) HasPendingApplication(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := repo.getExec(exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollment_application WHERE email = $1 AND status = $2)`,
		email, enrollment.StatusPending,
	).Scan(&exists)
	return exists, errors.Wrap(err, "checking pending applications")
}

func (repo enrollmentRepository) SetDecision(ctx context.Context, id, status, decidedBy string, at time.Time, exec ...core.DBExecutor) (enrollment.Application, error) {
	query := `UPDATE enrollment_application
		SET status = $2, decided_at = $3, decided_by = NULLIF($4, '')
		WHERE id = $1 AND status = $5
		RETURNING ` + applicationCols
	app, err := repo.getApplication(ctx, repo.getExec(exec), query, id, status, at.UTC(), decidedBy, enrollment.StatusPending)
	if err == enrollment.ErrNotFound {
		// no pending row matched: either absent or already decided
		if _, getErr := repo.GetApplicationByID(ctx, id, exec...); getErr == nil {
			return enrollment.Application{}, enrollment.ErrApplicationDecided
		}
		return enrollment.Application{}, enrollment.ErrNotFound
	}
	return app, errors.Wrap(err, "deciding application")
}
