package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	scenario_key    TEXT NOT NULL DEFAULT '',
	started_at      TEXT NOT NULL,
	ended_at        TEXT,
	raw_transcript  TEXT NOT NULL DEFAULT '',
	facts_extracted INTEGER NOT NULL DEFAULT 0,
	CHECK (kind IN ('survey', 'intervention', 'support'))
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

CREATE TABLE IF NOT EXISTS facts (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL,
	value           TEXT NOT NULL,
	severity        INTEGER,
	extracted_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS support_logs (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	stress_level    INTEGER,
	needs           TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL
);
`

// SQLite is a Store backed by an SQLite file (modernc.org/sqlite, no cgo).
type SQLite struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
// Parent directories are created if needed.
func OpenSQLite(path string, logger *slog.Logger, collector *metrics.Collector) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return &SQLite{db: db, logger: logger, metrics: collector, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func (s *SQLite) SaveFacts(ctx context.Context, facts []models.Fact) ([]models.Fact, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Wrap("save facts", err)
	}
	defer tx.Rollback()

	saved := make([]models.Fact, 0, len(facts))
	for _, f := range facts {
		f.ID = uuid.NewString()
		if f.ExtractedAt.IsZero() {
			f.ExtractedAt = s.now()
		}
		tags, err := json.Marshal(f.Tags)
		if err != nil {
			return nil, Wrap("save facts", err)
		}
		var severity sql.NullInt64
		if f.Severity != nil {
			severity = sql.NullInt64{Int64: int64(*f.Severity), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO facts (id, conversation_id, tags, value, severity, extracted_at) VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.ConversationID, string(tags), f.Value, severity, formatTime(f.ExtractedAt))
		if err != nil {
			return nil, Wrap("save facts", err)
		}
		saved = append(saved, f)
	}
	if err := tx.Commit(); err != nil {
		return nil, Wrap("save facts", err)
	}
	return saved, nil
}

func (s *SQLite) ListFacts(ctx context.Context, limit int) ([]models.Fact, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())

	query := `SELECT id, conversation_id, tags, value, severity, extracted_at FROM facts ORDER BY seq`
	var args []any
	if limit > 0 {
		query = `SELECT id, conversation_id, tags, value, severity, extracted_at FROM (
			SELECT * FROM facts ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Wrap("list facts", err)
	}
	defer rows.Close()

	var facts []models.Fact
	for rows.Next() {
		var (
			f        models.Fact
			tags, at string
			severity sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.ConversationID, &tags, &f.Value, &severity, &at); err != nil {
			return nil, Wrap("list facts", err)
		}
		if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
			return nil, Wrap("list facts", fmt.Errorf("fact %s tags: %w", f.ID, err))
		}
		if severity.Valid {
			v := int(severity.Int64)
			f.Severity = &v
		}
		if f.ExtractedAt, err = parseTime(at); err != nil {
			return nil, Wrap("list facts", err)
		}
		facts = append(facts, f)
	}
	return facts, Wrap("list facts", rows.Err())
}

func (s *SQLite) CountFacts(ctx context.Context) (int, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n)
	return n, Wrap("count facts", err)
}

func (s *SQLite) CreateConversation(ctx context.Context, kind models.Kind, scenarioKey string) (string, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, kind, scenario_key, started_at) VALUES (?, ?, ?, ?)`,
		id, string(kind), scenarioKey, formatTime(s.now()))
	if err != nil {
		return "", Wrap("create conversation", err)
	}
	return id, nil
}

func (s *SQLite) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	if msg.At.IsZero() {
		msg.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Content, formatTime(msg.At))
	return Wrap("append message", err)
}

// updateConversation runs an UPDATE and maps "no rows" to ErrNotFound.
func (s *SQLite) updateConversation(ctx context.Context, op, query string, args ...any) error {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Wrap(op, err)
	}
	if n == 0 {
		return &Error{Op: op, Err: ErrNotFound}
	}
	return nil
}

func (s *SQLite) FinishConversation(ctx context.Context, conversationID, transcript string) error {
	return s.updateConversation(ctx, "finish conversation",
		`UPDATE conversations SET ended_at = ?, raw_transcript = ? WHERE id = ?`,
		formatTime(s.now()), transcript, conversationID)
}

func (s *SQLite) MarkFactsExtracted(ctx context.Context, conversationID string) error {
	return s.updateConversation(ctx, "mark facts extracted",
		`UPDATE conversations SET facts_extracted = 1 WHERE id = ?`, conversationID)
}

func (s *SQLite) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	var (
		c         models.Conversation
		kind      string
		started   string
		ended     sql.NullString
		extracted int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, scenario_key, started_at, ended_at, raw_transcript, facts_extracted FROM conversations WHERE id = ?`,
		conversationID).Scan(&c.ID, &kind, &c.ScenarioKey, &started, &ended, &c.RawTranscript, &extracted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, &Error{Op: "get conversation", Err: ErrNotFound}
	}
	if err != nil {
		return models.Conversation{}, Wrap("get conversation", err)
	}
	c.Kind = models.Kind(kind)
	c.FactsExtracted = extracted != 0
	if c.StartedAt, err = parseTime(started); err != nil {
		return models.Conversation{}, Wrap("get conversation", err)
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return models.Conversation{}, Wrap("get conversation", err)
		}
		c.EndedAt = &t
	}
	return c, nil
}

func (s *SQLite) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, Wrap("list messages", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var role, at string
		if err := rows.Scan(&role, &m.Content, &at); err != nil {
			return nil, Wrap("list messages", err)
		}
		m.Role = models.Role(role)
		if m.At, err = parseTime(at); err != nil {
			return nil, Wrap("list messages", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, Wrap("list messages", rows.Err())
}

func (s *SQLite) SaveSupportLog(ctx context.Context, log models.SupportLog) (models.SupportLog, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	log.ID = uuid.NewString()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	needs, err := json.Marshal(log.Needs)
	if err != nil {
		return models.SupportLog{}, Wrap("save support log", err)
	}
	var stress sql.NullInt64
	if log.StressLevel != nil {
		stress = sql.NullInt64{Int64: int64(*log.StressLevel), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO support_logs (id, conversation_id, stress_level, needs, created_at) VALUES (?, ?, ?, ?, ?)`,
		log.ID, log.ConversationID, stress, string(needs), formatTime(log.CreatedAt))
	if err != nil {
		return models.SupportLog{}, Wrap("save support log", err)
	}
	return log, nil
}

func (s *SQLite) ListSupportLogs(ctx context.Context, conversationID string) ([]models.SupportLog, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, stress_level, needs, created_at FROM support_logs WHERE conversation_id = ? ORDER BY created_at`,
		conversationID)
	if err != nil {
		return nil, Wrap("list support logs", err)
	}
	defer rows.Close()

	var logs []models.SupportLog
	for rows.Next() {
		var (
			l      models.SupportLog
			stress sql.NullInt64
			needs  string
			at     string
		)
		if err := rows.Scan(&l.ID, &l.ConversationID, &stress, &needs, &at); err != nil {
			return nil, Wrap("list support logs", err)
		}
		if stress.Valid {
			v := int(stress.Int64)
			l.StressLevel = &v
		}
		if err := json.Unmarshal([]byte(needs), &l.Needs); err != nil {
			return nil, Wrap("list support logs", err)
		}
		if l.CreatedAt, err = parseTime(at); err != nil {
			return nil, Wrap("list support logs", err)
		}
		logs = append(logs, l)
	}
	return logs, Wrap("list support logs", rows.Err())
}
