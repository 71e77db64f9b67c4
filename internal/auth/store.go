package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/models"
)

var (
	errDuplicateEmail    = errors.New("duplicate email")
	errDuplicateUsername = errors.New("duplicate username")
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, email, name, username, passwordHash string, now time.Time) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, username, password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, email, name, username, is_admin, created_at, updated_at`,
		email, name, username, passwordHash, now, now,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Username, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, "username"):
			return nil, errDuplicateUsername
		case isUniqueViolation(err, "email"):
			return nil, errDuplicateEmail
		}
		return nil, errors.Wrap(err, "create user")
	}
	return &u, nil
}

// GetUserByEmail also returns the password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, COALESCE(username, ''), password, is_admin, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Username, &u.Password, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(models.ErrNotFound, "user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// isUniqueViolation matches both the Postgres constraint name (users_email_key)
// and the SQLite message (UNIQUE constraint failed: users.email).
func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "users_"+column+"_key") ||
		strings.Contains(msg, "UNIQUE constraint failed: users."+column)
}
