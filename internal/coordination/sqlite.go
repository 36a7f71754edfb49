package coordination

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the networked (multi-node) Coordination Store backend.
// All callers across every gateway instance sharing the same db file see a
// consistent view, at the cost of per-call latency (spec's
// coordination.call_timeout_millis bounds this).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create coordination db directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open coordination db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping coordination db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize coordination schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS dedup_reservations (
		key TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS thread_locks (
		key TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS thread_states (
		key TEXT PRIMARY KEY,
		last_event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		event_ts INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS pending_followups (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) ReserveDedup(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM dedup_reservations WHERE key = ? AND expires_at <= ?`, key, now.Unix()); err != nil {
		return false, fmt.Errorf("evict expired dedup row: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup_reservations (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO NOTHING`, key, now.Add(ttl).Unix())
	if err != nil {
		return false, fmt.Errorf("reserve dedup key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	now := time.Now()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_locks WHERE key = ? AND expires_at <= ?`, key, now.Unix()); err != nil {
		return "", fmt.Errorf("evict expired lock row: %w", err)
	}

	token := uuid.New().String()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_locks (key, token, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`, key, token, now.Add(ttl).Unix())
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return "", nil // held by someone else
	}
	return token, nil
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_locks WHERE key = ? AND token = ?`, key, token)
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) SetThreadState(ctx context.Context, key string, state ThreadState, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_states (key, last_event_id, user_id, event_ts, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			last_event_id = excluded.last_event_id,
			user_id = excluded.user_id,
			event_ts = excluded.event_ts,
			expires_at = excluded.expires_at`,
		key, state.LastEventID, state.UserID, state.Timestamp.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("set thread state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetThreadState(ctx context.Context, key string) (*ThreadState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_event_id, user_id, event_ts, expires_at FROM thread_states WHERE key = ?`, key)

	var state ThreadState
	var eventTS, expiresAt int64
	err := row.Scan(&state.LastEventID, &state.UserID, &eventTS, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread state: %w", err)
	}
	if time.Now().Unix() > expiresAt {
		return nil, nil
	}
	state.Timestamp = time.Unix(eventTS, 0)
	return &state, nil
}

func (s *SQLiteStore) SetPending(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_followups (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("set pending followup: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM pending_followups WHERE key = ?`, key)

	var value string
	var expiresAt int64
	err := row.Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan pending followup: %w", err)
	}
	if time.Now().Unix() > expiresAt {
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) ClearPending(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_followups WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("clear pending followup: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
