package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"boilerctl/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository { return &UserRepository{db: db} }

const (
	insertUserSQL = `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	selectUserSQL = `SELECT id, username, password_hash FROM users WHERE username = ?`
)

// Create stores a new operator account and returns its row id. The hash
// is opaque at this layer; the auth service owns the bcrypt policy.
func (r *UserRepository) Create(username, hash string) (int, error) {
	res, err := r.db.Exec(insertUserSQL, username, hash)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user %q insert id: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername reports a missing account as (nil, nil): the caller
// decides whether that is an error.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	row := r.db.QueryRow(selectUserSQL, username)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return &u, nil
}
