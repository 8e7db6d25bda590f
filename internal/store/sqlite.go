package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Timestamps are stored as fixed-width UTC strings so that lexical ordering
// in SQL matches chronological ordering. The fraction must not be trimmed:
// with variable-width fractions, "10:00:00.1Z" would sort after
// "10:00:00.15Z" because '5' < 'Z'.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path,
// ensuring the parent directory exists, and initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging db at %s: %w", path, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			title TEXT NOT NULL,
			start_time TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_email ON sessions(user_email);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			human TEXT NOT NULL,
			ai TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	`)
	return err
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (email) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("ensuring user %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID, title string, startTime time.Time) (SessionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("beginning session tx: %w", err)
	}
	defer tx.Rollback()

	// Insert-if-absent keyed on the session id primary key: a concurrent
	// identical call loses silently instead of failing the turn.
	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, user_email, title, start_time) VALUES (?, ?, ?, ?)`,
		sessionID, userID, title, startTime.UTC().Format(timeLayout),
	)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("creating session %s: %w", sessionID, err)
	}

	var rec SessionRecord
	var owner, start string
	err = tx.QueryRowContext(ctx,
		`SELECT session_id, user_email, title, start_time FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&rec.ID, &owner, &rec.Title, &start)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	if owner != userID {
		return SessionRecord{}, ErrSessionOwned
	}
	rec.UserID = owner
	rec.StartTime, err = time.Parse(timeLayout, start)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("parsing start_time of session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return SessionRecord{}, fmt.Errorf("committing session tx: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID string) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.title, s.start_time, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON s.session_id = m.session_id
		WHERE s.user_email = ?
		GROUP BY s.session_id
		ORDER BY s.start_time DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions for %s: %w", userID, err)
	}
	defer rows.Close()

	summaries := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		var start string
		if err := rows.Scan(&sum.ID, &sum.Title, &start, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sum.StartTime, err = time.Parse(timeLayout, start)
		if err != nil {
			return nil, fmt.Errorf("parsing start_time of session %s: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, human, ai string, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, human, ai, timestamp) VALUES (?, ?, ?, ?)`,
		sessionID, human, ai, ts.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("appending message to session %s: %w", sessionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading message id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, human, ai, timestamp FROM messages WHERE session_id = ? ORDER BY timestamp, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	msgs := []MessageRecord{}
	for rows.Next() {
		var m MessageRecord
		var ts string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Human, &m.AI, &ts); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp of message %d: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages for session %s: %w", sessionID, err)
	}
	return count, nil
}

// DeleteSession removes the session and its messages in one transaction;
// the cascade is application logic, not a foreign-key constraint.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting messages for session %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
