package activity

import "time"

// Categories
const (
	CategoryAuth       = "auth"
	CategoryAccount    = "account"
	CategoryEnrollment = "enrollment"
	CategoryAdmin      = "admin"
)

// Entry is one line of the append-only audit trail. Entries are never mutated
// or deleted once written; the repository exposes no update or delete.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	ActorName string    `json:"actor_name" db:"actor_name"`
	Action    string    `json:"action" db:"action"`
	Category  string    `json:"category" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type QueryFilter struct {
	Category    string    `query:"category"`
	ActorID     string    `query:"actor_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Category == "" && qf.ActorID == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}
