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

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/user"
)

const userCols = `id, name, email, role, password_hash, lrn, grade_level, section,
	guardian_name, guardian_contact, email_verified, status, created_at, updated_at, last_login`

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) queryUsers(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) ([]user.User, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := make([]user.User, 0)
	if err = sqlx.StructScan(rows, &users); err != nil {
		return nil, err
	}
	return users, rows.Err()
}

func (repo userRepository) getUser(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (user.User, error) {
	users, err := repo.queryUsers(ctx, exec, query, args...)
	if err != nil {
		return user.User{}, err
	}
	if len(users) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return users[0], nil
}

// isUniqueViolation reports a psql duplicate-key error.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	query := `SELECT EXISTS (SELECT 1 FROM account WHERE email = $1`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND NOT (id = ANY($2))`
		args = append(args, pq.Array(ids))
	}
	query += `)`

	var exists bool
	if err := repo.getExec(exec).QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()

	query := `INSERT INTO account (` + userCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + userCols
	created, err := repo.getUser(ctx, repo.getExec(exec), query,
		usr.ID, usr.Name, usr.Email, usr.Role, usr.PasswordHash, usr.LRN,
		usr.GradeLevel, usr.Section, usr.GuardianName, usr.GuardianContact,
		usr.EmailVerified, usr.Status, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), usr.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return created, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userCols + ` FROM account`
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		// users with Name, Email or LRN matching the search keyword
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(name ILIKE %[1]s OR email ILIKE %[1]s OR lrn ILIKE %[1]s)", p))
		}
		if filter.Role != "" {
			conds = append(conds, "role = "+arg(filter.Role))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
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

	users, err := repo.queryUsers(ctx, repo.getExec(exec), query, args...)
	return users, errors.Wrap(err, "querying users")
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	usr, err := repo.getUser(ctx, repo.getExec(exec), `SELECT `+userCols+` FROM account WHERE id = $1`, id)
	if err == user.ErrNotFound {
		return user.User{}, err
	}
	return usr, errors.Wrap(err, "getting user by id")
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	usr, err := repo.getUser(ctx, repo.getExec(exec), `SELECT `+userCols+` FROM account WHERE email = $1`, email)
	if err == user.ErrNotFound {
		return user.User{}, err
	}
	return usr, errors.Wrap(err, "getting user by email")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, emailVerified *bool, exec ...core.DBExecutor) (user.User, error) {
	var sets []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if usr.Name != "" {
		sets = append(sets, "name = "+arg(usr.Name))
	}
	if usr.Email != "" {
		sets = append(sets, "email = "+arg(usr.Email))
	}
	if usr.Role != "" {
		sets = append(sets, "role = "+arg(usr.Role))
	}
	if usr.Status != "" {
		sets = append(sets, "status = "+arg(usr.Status))
	}
	if usr.GradeLevel != "" {
		sets = append(sets, "grade_level = "+arg(usr.GradeLevel))
	}
	if usr.Section != "" {
		sets = append(sets, "section = "+arg(usr.Section))
	}
	if usr.GuardianName != "" {
		sets = append(sets, "guardian_name = "+arg(usr.GuardianName))
	}
	if usr.GuardianContact != "" {
		sets = append(sets, "guardian_contact = "+arg(usr.GuardianContact))
	}
	if usr.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(usr.PasswordHash))
	}
	if emailVerified != nil {
		sets = append(sets, "email_verified = "+arg(*emailVerified))
	}
	updatedAt := usr.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets = append(sets, "updated_at = "+arg(updatedAt.UTC()))

	query := `UPDATE account SET ` + strings.Join(sets, ", ") + ` WHERE id = ` + arg(usr.ID) + ` RETURNING ` + userCols
	updated, err := repo.getUser(ctx, repo.getExec(exec), query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		if err == user.ErrNotFound {
			return user.User{}, err
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) (user.User, error) {
	query := `UPDATE account SET last_login = $2, updated_at = $2 WHERE id = $1 RETURNING ` + userCols
	usr, err := repo.getUser(ctx, repo.getExec(exec), query, id, t.UTC())
	if err == user.ErrNotFound {
		return user.User{}, err
	}
	return usr, errors.Wrap(err, "setting last login")
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM account WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
