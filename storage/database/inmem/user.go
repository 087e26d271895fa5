package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if err := repo.CheckEmailUniqueness(ctx, usr.Email, nil, exec...); err != nil {
		return user.User{}, err
	}

	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	users := repo.query()
	repo.db.mu.RUnlock()

	if filter != nil && !filter.IsEmpty() {
		matched := make([]user.User, 0, len(users))
		for _, usr := range users {
			if matchUser(usr, filter) {
				matched = append(matched, usr)
			}
		}
		users = matched
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(strings.ToLower(usr.Email), s) ||
			strings.Contains(usr.LRN.String, s)) {
			return false
		}
	}
	if filter.Role != "" && usr.Role != filter.Role {
		return false
	}
	if filter.Status != "" && usr.Status != filter.Status {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) GetUserByID(_ context.Context, id string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, emailVerified *bool, _ ...core.DBExecutor) (user.User, error) {
	if usr.Email != "" {
		if err := repo.CheckEmailUniqueness(ctx, usr.Email, []user.User{{ID: usr.ID}}); err != nil {
			return user.User{}, err
		}
	}

	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cur, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Name != "" {
		cur.Name = usr.Name
	}
	if usr.Email != "" {
		cur.Email = usr.Email
	}
	if usr.Role != "" {
		cur.Role = usr.Role
	}
	if usr.Status != "" {
		cur.Status = usr.Status
	}
	if usr.GradeLevel != "" {
		cur.GradeLevel = usr.GradeLevel
	}
	if usr.Section != "" {
		cur.Section = usr.Section
	}
	if usr.GuardianName != "" {
		cur.GuardianName = usr.GuardianName
	}
	if usr.GuardianContact != "" {
		cur.GuardianContact = usr.GuardianContact
	}
	if usr.PasswordHash != nil {
		cur.PasswordHash = usr.PasswordHash
	}
	if emailVerified != nil {
		cur.EmailVerified = *emailVerified
	}
	if !usr.UpdatedAt.IsZero() {
		cur.UpdatedAt = usr.UpdatedAt
	} else {
		cur.UpdatedAt = time.Now().UTC()
	}
	return *cur, nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id string, t time.Time, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cur, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	cur.LastLogin = null.TimeFrom(t)
	cur.UpdatedAt = t
	return *cur, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func isExcluded(usr user.User, excluded []user.User) bool {
	for _, e := range excluded {
		if usr.ID == e.ID {
			return true
		}
	}
	return false
}
