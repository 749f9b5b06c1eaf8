package users

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no user exists for the given id.
var ErrNotFound = errors.New("users: not found")

// Repository handles user database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new user repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "users").Logger(),
	}
}

// Create inserts a user row.
func (r *Repository) Create(u User) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO users (id, api_key_id, encrypted_private_key, settings_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.APIKeyID, u.EncryptedPrivateKey, string(settings),
		u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	r.log.Info().Str("user_id", u.ID).Msg("User created")
	return nil
}

// GetByID returns a user, or ErrNotFound.
func (r *Repository) GetByID(id string) (*User, error) {
	row := r.db.QueryRow(
		`SELECT id, api_key_id, encrypted_private_key, settings_json, created_at
		 FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns every user, oldest first.
func (r *Repository) List() ([]User, error) {
	rows, err := r.db.Query(
		`SELECT id, api_key_id, encrypted_private_key, settings_json, created_at
		 FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateSettings replaces a user's settings JSON.
func (r *Repository) UpdateSettings(id string, s Settings) error {
	settings, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	res, err := r.db.Exec(`UPDATE users SET settings_json = ? WHERE id = ?`, string(settings), id)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type userScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row userScanner) (*User, error) {
	var (
		u            User
		settingsJSON string
		createdAt    string
	)
	if err := row.Scan(&u.ID, &u.APIKeyID, &u.EncryptedPrivateKey, &settingsJSON, &createdAt); err != nil {
		return nil, err
	}
	settings, err := ParseSettings([]byte(settingsJSON))
	if err != nil {
		return nil, fmt.Errorf("settings for user %s unreadable: %w", u.ID, err)
	}
	u.Settings = settings
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}
