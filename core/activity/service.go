package activity

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
)

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry, exec ...core.DBExecutor) (Entry, error)
		QueryEntries(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Entry, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Log appends an audit entry. The optional exec lets callers record the entry
// inside their own transaction.
func (svc *Service) Log(ctx context.Context, actorID, actorName, action, category string, exec ...core.DBExecutor) (Entry, error) {
	entry := Entry{
		ActorID:   actorID,
		ActorName: actorName,
		Action:    action,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	entry, err := svc.repo.CreateEntry(ctx, entry, exec...)
	return entry, errors.Wrap(err, "creating activity entry")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, filter, []core.DBOrdering{{Field: "created_at"}})
}
