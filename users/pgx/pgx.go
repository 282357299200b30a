// Package pgx implements users.Repository on PostgreSQL through pgxpool.
package pgx

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ users.Repository = (*Repository)(nil)

const columns = "id, username, email, role, status, created_at, updated_at"

// Repository implements users.Repository using PostgreSQL.
type Repository struct {
	config Config
	pool   *pgxpool.Pool
}

// New creates a new user repository using pgxpool.
func New(pool *pgxpool.Pool, options ...Option) *Repository {
	config := Config{
		TableName: "users",
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &Repository{
		config: config,
		pool:   pool,
	}
}

// Migrate creates the users table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, CreateTableSQL(r.config.TableName)); err != nil {
		return fmt.Errorf("users: migrate: %w", err)
	}
	return nil
}

// Create inserts user. Empty timestamps default to now.
func (r *Repository) Create(ctx context.Context, user users.User) (users.User, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, username, email, role, status) VALUES ($1, $2, $3, $4, $5) RETURNING %s`,
		r.config.TableName, columns,
	)
	created, err := scanUser(r.pool.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.Role, user.Status))
	if err != nil {
		return users.User{}, fmt.Errorf("users: create: %w", err)
	}
	return created, nil
}

// Get returns the user with the given id.
func (r *Repository) Get(ctx context.Context, id string) (users.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, columns, r.config.TableName)

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return users.User{}, errors.NotFound("user not found: %s", id)
	}
	if err != nil {
		return users.User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// Update sets the fields present in patch and bumps updated_at.
func (r *Repository) Update(ctx context.Context, id string, patch users.Patch) (users.User, error) {
	sets := []string{"updated_at = now()"}
	var args []any
	if patch.Email != nil {
		args = append(args, *patch.Email)
		sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
	}
	if patch.Role != nil {
		args = append(args, *patch.Role)
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING %s`,
		r.config.TableName, strings.Join(sets, ", "), len(args), columns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return users.User{}, errors.NotFound("user not found: %s", id)
	}
	if err != nil {
		return users.User{}, fmt.Errorf("users: update: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
