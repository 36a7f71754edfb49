package escalation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/suppgw/gateway/internal/channel"
)

// Store is the SQLite-backed persistence layer. All state transitions that
// must be atomic against concurrent staff (claim, respond) go through a
// conditional UPDATE ... WHERE so exactly one caller observes success.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create escalation db directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open escalation db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping escalation db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize escalation schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS escalations (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		channel TEXT NOT NULL,
		channel_meta_json TEXT NOT NULL DEFAULT '{}',
		user_id TEXT NOT NULL,
		priority TEXT NOT NULL,
		question TEXT NOT NULL,
		ai_draft TEXT NOT NULL,
		sources_json TEXT NOT NULL DEFAULT '[]',
		confidence REAL,
		status TEXT NOT NULL,
		staff_id TEXT NOT NULL DEFAULT '',
		claimed_at INTEGER,
		staff_answer TEXT NOT NULL DEFAULT '',
		responded_at INTEGER,
		edit_distance REAL,
		closed_at INTEGER,
		staff_rating INTEGER,
		delivery_status TEXT NOT NULL DEFAULT '',
		delivery_attempts INTEGER NOT NULL DEFAULT 0,
		delivery_error TEXT NOT NULL DEFAULT '',
		last_delivery_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
	CREATE INDEX IF NOT EXISTS idx_escalations_channel ON escalations(channel);
	CREATE INDEX IF NOT EXISTS idx_escalations_staff ON escalations(staff_id);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// CreateIfAbsent inserts a new PENDING escalation, or returns the existing
// one if message_id was already used (idempotent create).
func (s *Store) CreateIfAbsent(ctx context.Context, e *Escalation) (*Escalation, error) {
	if existing, err := s.GetByMessageID(ctx, e.MessageID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	e.ID = uuid.New().String()
	e.Status = StatusPending
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now

	channelMeta, _ := sonic.Marshal(e.ChannelMeta)
	sources, _ := sonic.Marshal(e.Sources)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalations (
			id, message_id, channel, channel_meta_json, user_id, priority,
			question, ai_draft, sources_json, confidence, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		e.ID, e.MessageID, string(e.Channel), string(channelMeta), e.UserID, string(e.Priority),
		e.Question, e.AIDraft, string(sources), e.Confidence, string(e.Status),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}

	return s.GetByMessageID(ctx, e.MessageID)
}

// Claim atomically transitions PENDING -> IN_REVIEW for staffID.
func (s *Store) Claim(ctx context.Context, id, staffID string) (*Escalation, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET status = ?, staff_id = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusInReview), staffID, now.Unix(), now.Unix(), id, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("claim escalation: %w", err)
	}
	n, _ := res.RowsAffected()

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if n == 0 {
		return current, ErrAlreadyClaimed
	}
	return current, nil
}

// Respond atomically transitions IN_REVIEW -> RESPONDED when held by
// staffID. Re-calling with the same staffID after success is idempotent.
func (s *Store) Respond(ctx context.Context, id, staffAnswer, staffID string, editDistance float64) (*Escalation, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if current.Status == StatusClosed {
		return current, ErrNotFound
	}
	if current.Status == StatusResponded && current.StaffID == staffID {
		return current, nil // idempotent replay
	}
	if current.StaffID != "" && current.StaffID != staffID {
		return current, ErrAlreadyClaimed
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET status = ?, staff_id = ?, staff_answer = ?,
			responded_at = ?, edit_distance = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?) AND (staff_id = '' OR staff_id = ?)`,
		string(StatusResponded), staffID, staffAnswer, now.Unix(), editDistance, now.Unix(),
		id, string(StatusPending), string(StatusInReview), staffID)
	if err != nil {
		return nil, fmt.Errorf("respond to escalation: %w", err)
	}
	n, _ := res.RowsAffected()

	refreshed, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return refreshed, ErrAlreadyClaimed
	}
	return refreshed, nil
}

func (s *Store) Close_(ctx context.Context, id string) (*Escalation, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET status = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		string(StatusClosed), now.Unix(), now.Unix(), id, string(StatusClosed))
	if err != nil {
		return nil, fmt.Errorf("close escalation: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *Store) RateStaffAnswer(ctx context.Context, messageID string, rating int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET staff_rating = ?, updated_at = ?
		WHERE message_id = ? AND staff_answer != ''`,
		rating, time.Now().Unix(), messageID)
	if err != nil {
		return fmt.Errorf("rate staff answer: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no staff answer to rate for message %s", messageID)
	}
	return nil
}

func (s *Store) RecordDeliveryResult(ctx context.Context, id string, status string, deliveryErr string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET delivery_status = ?, delivery_attempts = delivery_attempts + 1,
			delivery_error = ?, last_delivery_at = ?, updated_at = ?
		WHERE id = ?`, status, deliveryErr, now.Unix(), now.Unix(), id)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*Escalation, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectQuery+" WHERE id = ?", id))
}

func (s *Store) GetByMessageID(ctx context.Context, messageID string) (*Escalation, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectQuery+" WHERE message_id = ?", messageID))
}

func (s *Store) List(ctx context.Context, f Filters) ([]*Escalation, error) {
	query := selectQuery
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Channel != "" {
		conds = append(conds, "channel = ?")
		args = append(args, string(f.Channel))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.StaffID != "" {
		conds = append(conds, "staff_id = ?")
		args = append(args, f.StaffID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountsByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM escalations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count escalations: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int, 4)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[Status(status)] = count
	}
	return out, rows.Err()
}

// ListStaleClaims returns IN_REVIEW rows claimed before the cutoff, for the
// stale-claim reaper.
func (s *Store) ListStaleClaims(ctx context.Context, cutoff time.Time) ([]*Escalation, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery+" WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?",
		string(StatusInReview), cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReleaseStaleClaim reverts a stale IN_REVIEW claim back to PENDING.
func (s *Store) ReleaseStaleClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET status = ?, staff_id = '', claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusPending), time.Now().Unix(), id, string(StatusInReview))
	return err
}

// ListFailedDeliveries returns RESPONDED rows whose last delivery attempt
// failed and have not yet exhausted maxAttempts, for the delivery retry
// sweep.
func (s *Store) ListFailedDeliveries(ctx context.Context, maxAttempts int) ([]*Escalation, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery+
		" WHERE status = ? AND delivery_status = 'failed' AND delivery_attempts < ?",
		string(StatusResponded), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAutoCloseCandidates returns RESPONDED rows older than the cutoff.
func (s *Store) ListAutoCloseCandidates(ctx context.Context, cutoff time.Time) ([]*Escalation, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery+" WHERE status = ? AND responded_at IS NOT NULL AND responded_at < ?",
		string(StatusResponded), cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeClosedBefore deletes CLOSED rows older than the cutoff and returns the
// number of rows removed.
func (s *Store) PurgeClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM escalations WHERE status = ? AND closed_at IS NOT NULL AND closed_at < ?`,
		string(StatusClosed), cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectQuery = `
	SELECT id, message_id, channel, channel_meta_json, user_id, priority,
		question, ai_draft, sources_json, confidence, status, staff_id,
		claimed_at, staff_answer, responded_at, edit_distance, closed_at,
		staff_rating, delivery_status, delivery_attempts, delivery_error,
		last_delivery_at, created_at, updated_at
	FROM escalations`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row *sql.Row) (*Escalation, error) {
	e, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func scanRow(row rowScanner) (*Escalation, error) {
	var e Escalation
	var channelStr, priorityStr, statusStr string
	var channelMetaJSON, sourcesJSON string
	var claimedAt, respondedAt, closedAt, lastDeliveryAt sql.NullInt64
	var confidence sql.NullFloat64
	var editDistance sql.NullFloat64
	var staffRating sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&e.ID, &e.MessageID, &channelStr, &channelMetaJSON, &e.UserID, &priorityStr,
		&e.Question, &e.AIDraft, &sourcesJSON, &confidence, &statusStr, &e.StaffID,
		&claimedAt, &e.StaffAnswer, &respondedAt, &editDistance, &closedAt,
		&staffRating, &e.DeliveryStatus, &e.DeliveryAttempts, &e.DeliveryError,
		&lastDeliveryAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Channel = channel.Type(channelStr)
	e.Priority = channel.Priority(priorityStr)
	e.Status = Status(statusStr)
	_ = sonic.Unmarshal([]byte(channelMetaJSON), &e.ChannelMeta)
	_ = sonic.Unmarshal([]byte(sourcesJSON), &e.Sources)

	if confidence.Valid {
		e.Confidence = &confidence.Float64
	}
	if editDistance.Valid {
		e.EditDistance = &editDistance.Float64
	}
	if staffRating.Valid {
		rating := int(staffRating.Int64)
		e.StaffRating = &rating
	}
	if claimedAt.Valid {
		t := time.Unix(claimedAt.Int64, 0)
		e.ClaimedAt = &t
	}
	if respondedAt.Valid {
		t := time.Unix(respondedAt.Int64, 0)
		e.RespondedAt = &t
	}
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0)
		e.ClosedAt = &t
	}
	if lastDeliveryAt.Valid {
		t := time.Unix(lastDeliveryAt.Int64, 0)
		e.LastDeliveryAt = &t
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}
