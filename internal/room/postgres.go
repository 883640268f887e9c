package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const roomColumns = `
	access_key, name, room_type, creator, max_participants, is_public, enable_xp,
	time_limit, expires_at, is_active, participants, settings, created_at, updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool}
}

func scanRoom(row pgx.Row) (*Room, error) {
	r := &Room{}
	err := row.Scan(
		&r.AccessKey,
		&r.Name,
		&r.Type,
		&r.Creator,
		&r.MaxParticipants,
		&r.IsPublic,
		&r.EnableXP,
		&r.TimeLimit,
		&r.ExpiresAt,
		&r.IsActive,
		&r.Participants,
		&r.Settings,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.Participants == nil {
		r.Participants = []Participant{}
	}
	return r, nil
}

func collectRooms(rows pgx.Rows) ([]*Room, error) {
	defer rows.Close()

	rooms := []*Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}
	return rooms, nil
}

// Create inserts a new room
func (s *PostgresStore) Create(ctx context.Context, room *Room) error {
	query := `INSERT INTO rooms (` + roomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if room.Participants == nil {
		room.Participants = []Participant{}
	}

	_, err := s.pool.Exec(ctx, query,
		room.AccessKey,
		room.Name,
		room.Type,
		room.Creator,
		room.MaxParticipants,
		room.IsPublic,
		room.EnableXP,
		room.TimeLimit,
		room.ExpiresAt,
		room.IsActive,
		room.Participants,
		room.Settings,
		room.CreatedAt,
		room.UpdatedAt,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

// FindByKey retrieves a room regardless of its active flag
func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE access_key = $1`

	r, err := scanRoom(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return r, nil
}

// Save overwrites every mutable column of the room
func (s *PostgresStore) Save(ctx context.Context, room *Room) error {
	query := `
		UPDATE rooms
		SET name = $2, room_type = $3, max_participants = $4, is_public = $5,
		    enable_xp = $6, time_limit = $7, expires_at = $8, is_active = $9,
		    participants = $10, settings = $11, updated_at = $12
		WHERE access_key = $1
	`

	if room.Participants == nil {
		room.Participants = []Participant{}
	}

	result, err := s.pool.Exec(ctx, query,
		room.AccessKey,
		room.Name,
		room.Type,
		room.MaxParticipants,
		room.IsPublic,
		room.EnableXP,
		room.TimeLimit,
		room.ExpiresAt,
		room.IsActive,
		room.Participants,
		room.Settings,
		room.UpdatedAt,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to save room: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteByKey removes the room row
func (s *PostgresStore) DeleteByKey(ctx context.Context, key string) error {
	query := `DELETE FROM rooms WHERE access_key = $1`

	result, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM rooms WHERE access_key = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check room key: %w", err)
	}

	return exists, nil
}

func (s *PostgresStore) FindByCreator(ctx context.Context, userID string) ([]*Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE creator = $1 AND is_active
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get created rooms: %w", err)
	}

	return collectRooms(rows)
}

// FindByParticipant uses jsonb containment on the participants column
func (s *PostgresStore) FindByParticipant(ctx context.Context, userID string, excludingCreator bool) ([]*Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE participants @> $1::jsonb
		  AND is_active
		  AND (NOT $2 OR creator <> $3)
		ORDER BY updated_at DESC
	`

	member := []map[string]string{{"user_id": userID}}

	rows, err := s.pool.Query(ctx, query, member, excludingCreator, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get joined rooms: %w", err)
	}

	return collectRooms(rows)
}

func (s *PostgresStore) FindExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT access_key
		FROM rooms
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
	`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired rooms: %w", err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect expired rooms: %w", err)
	}

	return keys, nil
}
