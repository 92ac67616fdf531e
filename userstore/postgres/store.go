// Package postgres implements authcore.UserStore on PostgreSQL through
// database/sql and the pgx stdlib driver. The schema is applied with
// goose from embedded migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/userstore/postgres/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// DBTX is the subset of database/sql the store uses. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db DBTX
}

var _ authcore.UserStore = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

const userColumns = `id, email, phone, password_hash, first_name, last_name, address, role, verified, created_at, updated_at`

func (s *Store) Create(ctx context.Context, u *authcore.User) (*authcore.User, error) {
	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.FirstName, u.LastName,
		u.Address, u.Role, u.Verified, u.CreatedAt, u.UpdatedAt)

	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) Update(ctx context.Context, u *authcore.User) (*authcore.User, error) {
	query :=
		`UPDATE users SET email = $2, phone = $3, password_hash = $4, first_name = $5,
		        last_name = $6, address = $7, role = $8, verified = $9, updated_at = $10
		 WHERE id = $1
		 RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.FirstName, u.LastName,
		u.Address, u.Role, u.Verified, u.UpdatedAt)

	return scanUser(row)
}

func scanUser(row *sql.Row) (*authcore.User, error) {
	u := &authcore.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Address, &u.Role, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return authcore.ErrEmailTaken
	}
	return fmt.Errorf("db error: %w", err)
}
