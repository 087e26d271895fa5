package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateApplication(ctx context.Context, app enrollment.Application, exec ...core.DBExecutor) (enrollment.Application, error) {
	if app.Status == enrollment.StatusPending {
		exists, _ := repo.HasPendingApplication(ctx, app.Email, exec...)
		if exists {
			return enrollment.Application{}, enrollment.ErrPendingAppExists
		}
	}

	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	app.ID = uuid.New().String()
	repo.db.apps[app.ID] = &app
	return app, nil
}

func (repo *enrollmentRepository) GetApplicationByID(_ context.Context, id string, _ ...core.DBExecutor) (enrollment.Application, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if app, ok := repo.db.apps[id]; ok {
		return *app, nil
	}
	return enrollment.Application{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryApplications(_ context.Context, filter *enrollment.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]enrollment.Application, error) {
	repo.db.mu.RLock()
	apps := make([]enrollment.Application, 0, len(repo.db.apps))
	for _, app := range repo.db.apps {
		apps = append(apps, *app)
	}
	repo.db.mu.RUnlock()

	if filter != nil && !filter.IsEmpty() {
		matched := make([]enrollment.Application, 0, len(apps))
		for _, app := range apps {
			if matchApplication(app, filter) {
				matched = append(matched, app)
			}
		}
		apps = matched
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].SubmittedAt.After(apps[j].SubmittedAt) })
	return apps, nil
}

func matchApplication(app enrollment.Application, filter *enrollment.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(app.FirstName), s) ||
			strings.Contains(strings.ToLower(app.LastName), s) ||
			strings.Contains(strings.ToLower(app.Email), s)) {
			return false
		}
	}
	if filter.Status != "" && app.Status != filter.Status {
		return false
	}
	if filter.GradeLevel != "" && app.GradeLevel != filter.GradeLevel {
		return false
	}
	if !filter.SubmittedFrom.IsZero() && app.SubmittedAt.Before(filter.SubmittedFrom) {
		return false
	}
	if !filter.SubmittedTo.IsZero() && app.SubmittedAt.After(filter.SubmittedTo) {
		return false
	}
	return true
}

func (repo *enrollmentRepository) HasPendingApplication(_ context.Context, email string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, app := range repo.db.apps {
		if app.Email == email && app.Status == enrollment.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (repo *enrollmentRepository) SetDecision(_ context.Context, id, status, decidedBy string, at time.Time, _ ...core.DBExecutor) (enrollment.Application, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	app, ok := repo.db.apps[id]
	if !ok {
		return enrollment.Application{}, enrollment.ErrNotFound
	}
	if app.Status != enrollment.StatusPending {
		return enrollment.Application{}, enrollment.ErrApplicationDecided
	}
	app.Status = status
	app.DecidedAt = null.TimeFrom(at)
	app.DecidedBy = null.NewString(decidedBy, decidedBy != "")
	return *app, nil
}
