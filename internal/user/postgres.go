package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `
	id, username, COALESCE(email, ''), COALESCE(password_hash, ''), is_guest,
	COALESCE(fingerprint, ''), total_xp, rooms_created, rooms_joined,
	last_active, created_at, updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsGuest,
		&u.Fingerprint,
		&u.TotalXP,
		&u.RoomsCreated,
		&u.RoomsJoined,
		&u.LastActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Create inserts a user. Registered usernames are unique.
func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_guest, fingerprint,
			total_xp, last_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	u.LastActive = u.CreatedAt

	_, err := s.pool.Exec(ctx, query,
		u.ID,
		u.Username,
		nullable(u.Email),
		nullable(u.PasswordHash),
		u.IsGuest,
		nullable(u.Fingerprint),
		u.TotalXP,
		u.LastActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND NOT is_guest`
	return scanUser(s.pool.QueryRow(ctx, query, username))
}

// FindGuestByFingerprint returns the most recently active guest for a browser fingerprint
func (s *PostgresStore) FindGuestByFingerprint(ctx context.Context, fingerprint string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE fingerprint = $1 AND is_guest
		ORDER BY last_active DESC
		LIMIT 1
	`
	return scanUser(s.pool.QueryRow(ctx, query, fingerprint))
}

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := s.pool.Exec(ctx, `UPDATE users SET last_active = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddStats(ctx context.Context, id string, d StatsDelta) error {
	query := `
		UPDATE users
		SET rooms_created = rooms_created + $2,
			rooms_joined = rooms_joined + $3,
			total_xp = total_xp + $4,
			updated_at = now()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, id, d.RoomsCreated, d.RoomsJoined, d.XP)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
