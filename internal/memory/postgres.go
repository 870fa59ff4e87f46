package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProfileStore persists user profiles in PostgreSQL for hosts that
// want the long-term side to survive restarts.
type PostgresProfileStore struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileStore(ctx context.Context, databaseURL string) (*PostgresProfileStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initProfileSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresProfileStore{pool: pool}, nil
}

func initProfileSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS session_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			summary JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_user_created ON session_records (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresProfileStore) SaveUserPreference(ctx context.Context, userID, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preference value: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		userID, key, encoded,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *PostgresProfileStore) GetUserPreference(ctx context.Context, userID, key string) (any, bool, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM user_preferences WHERE user_id=$1 AND key=$2`,
		userID, key,
	).Scan(&encoded)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query preference: %w", err)
	}

	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, false, fmt.Errorf("decode preference value: %w", err)
	}
	return value, true, nil
}

func (s *PostgresProfileStore) GetUserProfile(ctx context.Context, userID string) (Profile, error) {
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM user_profiles WHERE user_id=$1`,
		userID,
	).Scan(&createdAt)
	if err != nil {
		if isNoRows(err) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	profile := Profile{
		UserID:      userID,
		CreatedAt:   createdAt,
		Preferences: make(map[string]Preference),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key, value, updated_at FROM user_preferences WHERE user_id=$1`,
		userID,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var encoded []byte
		var updatedAt time.Time
		if err := rows.Scan(&key, &encoded, &updatedAt); err != nil {
			return Profile{}, fmt.Errorf("scan preference row: %w", err)
		}
		var value any
		if err := json.Unmarshal(encoded, &value); err != nil {
			return Profile{}, fmt.Errorf("decode preference value: %w", err)
		}
		profile.Preferences[key] = Preference{Value: value, UpdatedAt: updatedAt}
	}
	if err := rows.Err(); err != nil {
		return Profile{}, fmt.Errorf("iterate preference rows: %w", err)
	}

	return profile, nil
}

func (s *PostgresProfileStore) RecordSession(ctx context.Context, userID string, record SessionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	encoded, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("encode session summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_records (id, user_id, session_id, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, userID, record.SessionID, encoded, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func (s *PostgresProfileStore) GetUserSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, summary, created_at
		 FROM session_records WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var record SessionRecord
		var encoded []byte
		if err := rows.Scan(&record.ID, &record.SessionID, &encoded, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if err := json.Unmarshal(encoded, &record.Summary); err != nil {
			return nil, fmt.Errorf("decode session summary: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	// Reverse into chronological order for callers replaying history.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

func (s *PostgresProfileStore) Close() error {
	s.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
