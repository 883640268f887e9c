package message

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, room_key, user_id, username, content, message_type, reactions, is_edited, edited_at, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{pool: pool, ttl: ttl, now: time.Now}
}

func (s *PostgresStore) cutoff() time.Time {
	return s.now().Add(-s.ttl)
}

func scanMessage(row pgx.Row) (*Message, error) {
	m := &Message{}
	err := row.Scan(
		&m.ID,
		&m.RoomKey,
		&m.UserID,
		&m.Username,
		&m.Content,
		&m.Type,
		&m.Reactions,
		&m.IsEdited,
		&m.EditedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	return m, nil
}

// Append creates a message record in the database
func (s *PostgresStore) Append(ctx context.Context, m *Message) error {
	query := `INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	m.ID = uuid.New()
	m.CreatedAt = s.now().UTC()
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID,
		m.RoomKey,
		m.UserID,
		m.Username,
		m.Content,
		m.Type,
		m.Reactions,
		m.IsEdited,
		m.EditedAt,
		m.CreatedAt,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindByRoom(ctx context.Context, roomKey string, limit int, order Order) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_key = $1 AND created_at > $2
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, roomKey, s.cutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get room messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	if order == OldestFirst {
		slices.Reverse(messages)
	}

	return messages, nil
}

func (s *PostgresStore) Count(ctx context.Context, roomKey string) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE room_key = $1 AND created_at > $2`

	var n int
	if err := s.pool.QueryRow(ctx, query, roomKey, s.cutoff()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return n, nil
}

func (s *PostgresStore) LastByRoom(ctx context.Context, roomKey string) (*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_key = $1 AND created_at > $2
		ORDER BY seq DESC
		LIMIT 1
	`

	m, err := scanMessage(s.pool.QueryRow(ctx, query, roomKey, s.cutoff()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}

	return m, nil
}

func (s *PostgresStore) DeleteByRoom(ctx context.Context, roomKey string) (int64, error) {
	query := `DELETE FROM messages WHERE room_key = $1`

	result, err := s.pool.Exec(ctx, query, roomKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete room messages: %w", err)
	}

	return result.RowsAffected(), nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM messages WHERE created_at <= $1`

	result, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}

	return result.RowsAffected(), nil
}
