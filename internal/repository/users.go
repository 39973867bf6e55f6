package repository

import (
	"database/sql"
	"errors"

	"tasktrack/internal/models"

	"github.com/lib/pq"
)

// UserRepo owns all access to the users table. The *sql.DB handle is
// constructed once at startup and injected here.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new user. The email column is unique; a violation is
// reported as ErrDuplicateEmail.
func (r *UserRepo) Create(username, email, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRow(
		`INSERT INTO users (username, email, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, email, created_at, updated_at`,
		username, email, passwordHash,
	).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepo) GetByID(id int) (models.User, error) {
	var user models.User
	err := r.db.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM users WHERE id = $1",
		id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetByEmail returns the user together with the stored password hash, for
// login verification.
func (r *UserRepo) GetByEmail(email string) (models.User, string, error) {
	var user models.User
	var hash string
	err := r.db.QueryRow(
		"SELECT id, username, email, password, created_at, updated_at FROM users WHERE email = $1",
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &hash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, "", ErrNotFound
	}
	if err != nil {
		return models.User{}, "", err
	}
	return user, hash, nil
}

func (r *UserRepo) List() ([]models.User, error) {
	rows, err := r.db.Query("SELECT id, username, email, created_at, updated_at FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetRefreshToken replaces the user's stored refresh token. A user holds at
// most one live refresh token; storing a new one invalidates the prior
// session.
func (r *UserRepo) SetRefreshToken(id int, token string) error {
	res, err := r.db.Exec(
		"UPDATE users SET refresh_token = $1, updated_at = NOW() WHERE id = $2",
		token, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) RefreshToken(id int) (string, error) {
	var token string
	err := r.db.QueryRow("SELECT refresh_token FROM users WHERE id = $1", id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// ClearRefreshToken revokes the user's session. Clearing an already-empty
// token is a no-op, so logout stays idempotent.
func (r *UserRepo) ClearRefreshToken(id int) error {
	return r.SetRefreshToken(id, "")
}
