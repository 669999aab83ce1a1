package messagelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agenthall/agenthall/backend/internal/model/message"
)

var (
	ErrNotFound = errors.New("message not found")
	ErrInvalid  = errors.New("invalid message")
)

// timeLayout is a fixed-width UTC encoding so that lexical comparison of the
// stored column matches chronological order. RFC3339Nano trims trailing zeros
// and would break that property.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender TEXT NOT NULL,
	sender_type TEXT NOT NULL CHECK(sender_type IN ('agent', 'human')),
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	channel TEXT NOT NULL DEFAULT 'public'
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_timestamp ON messages(channel, timestamp);
`

// Store is the durable, append-only channel log. It is the single clock of
// record: ids and timestamps are assigned here at the moment of the write.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if needed and
// prepares the schema. The returned store is safe for concurrent use and must
// be closed exactly once by its owner.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append validates and durably writes a message, assigning its id and
// timestamp. A caller-supplied notion of time is deliberately ignored.
func (s *Store) Append(ctx context.Context, sender string, senderType message.SenderType, content, channel string) (message.Message, error) {
	if sender == "" || content == "" {
		return message.Message{}, fmt.Errorf("%w: sender and content are required", ErrInvalid)
	}
	if !senderType.Valid() {
		return message.Message{}, fmt.Errorf("%w: senderType must be %q or %q", ErrInvalid, message.SenderAgent, message.SenderHuman)
	}
	if channel == "" {
		channel = message.DefaultChannel
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages (sender, sender_type, content, timestamp, channel)
VALUES (?, ?, ?, ?, ?)`,
		sender, string(senderType), content, now.Format(timeLayout), channel)
	if err != nil {
		return message.Message{}, fmt.Errorf("append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return message.Message{}, fmt.Errorf("append message: %w", err)
	}

	return message.Message{
		ID:         id,
		Sender:     sender,
		SenderType: senderType,
		Content:    content,
		Timestamp:  now,
		Channel:    channel,
	}, nil
}

// Latest returns the most recent limit messages for the channel in
// oldest-to-newest order.
func (s *Store) Latest(ctx context.Context, limit int, channel string) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if channel == "" {
		channel = message.DefaultChannel
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, sender, sender_type, content, timestamp, channel
FROM messages
WHERE channel = ?
ORDER BY id DESC
LIMIT ?`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the query; callers want append order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Since returns every message strictly after the cursor timestamp, ascending.
// Two messages appended within the same clock reading share a timestamp; the
// exclusive comparison means such twins of the cursor message are skipped too,
// so incremental clients should carry (timestamp, id) pairs and treat the id
// as the tie-breaker.
func (s *Store) Since(ctx context.Context, ts time.Time, channel string) ([]message.Message, error) {
	if channel == "" {
		channel = message.DefaultChannel
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, sender, sender_type, content, timestamp, channel
FROM messages
WHERE channel = ? AND timestamp > ?
ORDER BY id ASC`, channel, ts.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query since: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetByID fetches a single message or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, sender, sender_type, content, timestamp, channel
FROM messages
WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return message.Message{}, ErrNotFound
	}
	if err != nil {
		return message.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (message.Message, error) {
	var (
		msg        message.Message
		senderType string
		timestamp  string
	)
	if err := row.Scan(&msg.ID, &msg.Sender, &senderType, &msg.Content, &timestamp, &msg.Channel); err != nil {
		return message.Message{}, err
	}
	msg.SenderType = message.SenderType(senderType)

	ts, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return message.Message{}, fmt.Errorf("parse stored timestamp %q: %w", timestamp, err)
	}
	msg.Timestamp = ts
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]message.Message, error) {
	out := make([]message.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
