package pgrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/activity"
)

const activityCols = `id, actor_id, actor_name, action, category, created_at`

// activityRepository only ever inserts and selects: the audit trail is
// append-only.
type activityRepository struct {
	exec core.DBExecutor
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{exec: exec}
}

func (repo activityRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo activityRepository) CreateEntry(ctx context.Context, entry activity.Entry, exec ...core.DBExecutor) (activity.Entry, error) {
	entry.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO activity_log (`+activityCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.ActorID, entry.ActorName, entry.Action, entry.Category, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return activity.Entry{}, errors.Wrap(err, "inserting activity entry")
	}
	return entry, nil
}

func (repo activityRepository) QueryEntries(ctx context.Context, filter *activity.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]activity.Entry, error) {
	query := `SELECT ` + activityCols + ` FROM activity_log`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Category != "" {
			conds = append(conds, "category = "+arg(filter.Category))
		}
		if filter.ActorID != "" {
			conds = append(conds, "actor_id = "+arg(filter.ActorID))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= "+arg(filter.CreatedTo.UTC()))
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

	rows, err := repo.getExec(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying activity entries")
	}
	defer func() { _ = rows.Close() }()

	entries := make([]activity.Entry, 0)
	if err = sqlx.StructScan(rows, &entries); err != nil {
		return nil, errors.Wrap(err, "scanning activity entries")
	}
	return entries, errors.Wrap(rows.Err(), "querying activity entries")
}
