package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, first_name, last_name, roles, is_active, created_at, updated_at, last_login_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Save(ctx context.Context, u *entity.User) error {
	s := u.Snapshot()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.Email, s.PasswordHash, s.FirstName, s.LastName, s.Roles, s.IsActive, s.CreatedAt, s.UpdatedAt, s.LastLoginAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrConflict
		}
		return domain.Internal(err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

// Update writes only the non-nil fields.
func (r *UserRepository) Update(ctx context.Context, id string, f repository.UserFields) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.PasswordHash != nil {
		add("password_hash", *f.PasswordHash)
	}
	if f.FirstName != nil {
		add("first_name", *f.FirstName)
	}
	if f.LastName != nil {
		add("last_name", *f.LastName)
	}
	if f.Roles != nil {
		add("roles", f.Roles)
	}
	if f.IsActive != nil {
		add("is_active", *f.IsActive)
	}
	if f.LastLoginAt != nil {
		add("last_login_at", *f.LastLoginAt)
	}
	if f.UpdatedAt != nil {
		add("updated_at", *f.UpdatedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return domain.Internal(err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, strings.ToLower(email)).Scan(&exists)
	if err != nil {
		return false, domain.Internal(err)
	}
	return exists, nil
}

// List pages through users newest first. Roles matches users holding any of
// the given roles.
func (r *UserRepository) List(ctx context.Context, f repository.ListFilter) (repository.ListResult, error) {
	f = f.Normalize()

	var where []string
	var args []any
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(f.Roles) > 0 {
		args = append(args, f.Roles)
		where = append(where, fmt.Sprintf("roles && $%d::text[]", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return repository.ListResult{}, domain.Internal(err)
	}

	args = append(args, f.Limit, f.Offset())
	q := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return repository.ListResult{}, domain.Internal(err)
	}
	defer rows.Close()

	users := make([]*entity.User, 0, f.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return repository.ListResult{}, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return repository.ListResult{}, domain.Internal(err)
	}

	return repository.ListResult{
		Users:      users,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: repository.TotalPages(total, f.Limit),
	}, nil
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var s entity.Snapshot
	if err := row.Scan(&s.ID, &s.Email, &s.PasswordHash, &s.FirstName, &s.LastName,
		&s.Roles, &s.IsActive, &s.CreatedAt, &s.UpdatedAt, &s.LastLoginAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Internal(err)
	}
	u, err := entity.FromSnapshot(s)
	if err != nil {
		// a row that no longer satisfies the aggregate invariants
		return nil, domain.Internal(err)
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
