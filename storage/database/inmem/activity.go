package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateEntry(_ context.Context, entry activity.Entry, _ ...core.DBExecutor) (activity.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	entry.ID = uuid.NewString()
	repo.db.log = append(repo.db.log, entry)
	return entry, nil
}

func (repo *activityRepository) QueryEntries(_ context.Context, filter *activity.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]activity.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]activity.Entry, 0, len(repo.db.log))
	for _, entry := range repo.db.log {
		if matchEntry(entry, filter) {
			entries = append(entries, entry)
		}
	}
	for _, ord := range ordering {
		if ord.Field == "created_at" {
			asc := ord.Ascending
			sort.SliceStable(entries, func(i, j int) bool {
				if asc {
					return entries[i].CreatedAt.Before(entries[j].CreatedAt)
				}
				return entries[i].CreatedAt.After(entries[j].CreatedAt)
			})
		}
	}
	return entries, nil
}

func matchEntry(entry activity.Entry, filter *activity.QueryFilter) bool {
	if filter == nil || filter.IsEmpty() {
		return true
	}
	if filter.Category != "" && entry.Category != filter.Category {
		return false
	}
	if filter.ActorID != "" && entry.ActorID != filter.ActorID {
		return false
	}
	if !filter.CreatedFrom.IsZero() && entry.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && entry.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}
