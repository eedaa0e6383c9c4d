package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/store"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type factRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Tags           []string               `json:"tags"`
	Value          string                 `json:"value"`
	Severity       *int                   `json:"severity,omitempty"`
	ExtractedAt    time.Time              `json:"extracted_at"`
}

func (r factRecord) fact() models.Fact {
	return models.Fact{
		ID:             recordKey(r.ID),
		ConversationID: r.ConversationID,
		Tags:           r.Tags,
		Value:          r.Value,
		Severity:       r.Severity,
		ExtractedAt:    r.ExtractedAt,
	}
}

type conversationRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	Kind           string                 `json:"kind"`
	ScenarioKey    string                 `json:"scenario_key"`
	StartedAt      time.Time              `json:"started_at"`
	EndedAt        *time.Time             `json:"ended_at,omitempty"`
	RawTranscript  string                 `json:"raw_transcript"`
	FactsExtracted bool                   `json:"facts_extracted"`
}

type messageRecord struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type supportLogRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	StressLevel    *int                   `json:"stress_level,omitempty"`
	Needs          []string               `json:"needs"`
	CreatedAt      time.Time              `json:"created_at"`
}

// recordKey returns the id part of a record id such as fact:⟨uuid⟩.
func recordKey(id surrealmodels.RecordID) string {
	if s, ok := id.ID.(string); ok {
		return s
	}
	return fmt.Sprint(id.ID)
}

// lastResult returns the rows of the last statement in results.
func lastResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[len(*results)-1].Result
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Store implements store.Store on SurrealDB.
type Store struct {
	client  *Client
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore wraps a connected client. The schema must already be initialized.
func NewStore(client *Client, logger *slog.Logger, collector *metrics.Collector) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:  client,
		logger:  logger.With("component", "store", "backend", "surrealdb"),
		metrics: collector,
		now:     time.Now,
	}
}

// Open connects, initializes the schema and returns a ready Store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, collector *metrics.Collector) (*Store, error) {
	client, err := NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return NewStore(client, logger, collector), nil
}

// Client returns the underlying connection.
func (s *Store) Client() *Client { return s.client }

// Close closes the connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func (s *Store) SaveFacts(ctx context.Context, facts []models.Fact) ([]models.Fact, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	if len(facts) == 0 {
		return []models.Fact{}, nil
	}

	base := s.now().UnixNano()
	rows := make([]map[string]any, 0, len(facts))
	saved := make([]models.Fact, 0, len(facts))
	for i, f := range facts {
		f.ID = uuid.NewString()
		if f.ExtractedAt.IsZero() {
			f.ExtractedAt = s.now()
		}
		rows = append(rows, map[string]any{
			"id":              f.ID,
			"conversation_id": f.ConversationID,
			"tags":            f.Tags,
			"value":           f.Value,
			"severity":        f.Severity,
			"extracted_at":    formatTime(f.ExtractedAt),
			"seq":             base + int64(i),
		})
		saved = append(saved, f)
	}

	_, err := surrealdb.Query[any](ctx, s.client.db, `
		BEGIN TRANSACTION;
		FOR $f IN $facts {
			CREATE type::record("fact", $f.id) SET
				conversation_id = $f.conversation_id,
				tags = $f.tags,
				value = $f.value,
				severity = $f.severity,
				extracted_at = type::datetime($f.extracted_at),
				seq = $f.seq;
		};
		COMMIT TRANSACTION;
	`, map[string]any{"facts": rows})
	if err != nil {
		return nil, wrapQueryError("save facts", err)
	}
	return saved, nil
}

func (s *Store) ListFacts(ctx context.Context, limit int) ([]models.Fact, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())

	sql := `SELECT * FROM fact ORDER BY seq ASC`
	vars := map[string]any{}
	if limit > 0 {
		sql = `SELECT * FROM (SELECT * FROM fact ORDER BY seq DESC LIMIT $limit) ORDER BY seq ASC`
		vars["limit"] = limit
	}
	results, err := surrealdb.Query[[]factRecord](ctx, s.client.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError("list facts", err)
	}
	records := lastResult(results)
	facts := make([]models.Fact, 0, len(records))
	for _, r := range records {
		facts = append(facts, r.fact())
	}
	return facts, nil
}

func (s *Store) CountFacts(ctx context.Context) (int, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, s.client.db, `SELECT count() AS count FROM fact GROUP ALL`, nil)
	if err != nil {
		return 0, wrapQueryError("count facts", err)
	}
	rows := lastResult(results)
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

func (s *Store) CreateConversation(ctx context.Context, kind models.Kind, scenarioKey string) (string, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	id := uuid.NewString()
	_, err := surrealdb.Query[any](ctx, s.client.db, `
		CREATE type::record("conversation", $id) SET
			kind = $kind,
			scenario_key = $scenario_key,
			started_at = type::datetime($started_at)
	`, map[string]any{
		"id":           id,
		"kind":         string(kind),
		"scenario_key": scenarioKey,
		"started_at":   formatTime(s.now()),
	})
	if err != nil {
		return "", wrapQueryError("create conversation", err)
	}
	return id, nil
}

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	if msg.At.IsZero() {
		msg.At = s.now()
	}
	_, err := surrealdb.Query[any](ctx, s.client.db, `
		IF !record::exists(type::record("conversation", $cid)) {
			THROW "conversation not found";
		};
		CREATE message SET
			conversation_id = $cid,
			role = $role,
			content = $content,
			at = type::datetime($at),
			seq = $seq;
	`, map[string]any{
		"cid":     conversationID,
		"role":    string(msg.Role),
		"content": msg.Content,
		"at":      formatTime(msg.At),
		"seq":     s.now().UnixNano(),
	})
	return wrapQueryError("append message", err)
}

// updateConversation runs an UPDATE on one conversation and reports
// ErrNotFound when nothing matched.
func (s *Store) updateConversation(ctx context.Context, op, sql string, vars map[string]any) error {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db, sql, vars)
	if err != nil {
		return wrapQueryError(op, err)
	}
	if len(lastResult(results)) == 0 {
		return &store.Error{Op: op, Err: fmt.Errorf("conversation %s: %w", vars["id"], store.ErrNotFound)}
	}
	return nil
}

func (s *Store) FinishConversation(ctx context.Context, conversationID, transcript string) error {
	return s.updateConversation(ctx, "finish conversation", `
		UPDATE type::record("conversation", $id) SET
			ended_at = type::datetime($ended_at),
			raw_transcript = $transcript
		RETURN AFTER
	`, map[string]any{
		"id":         conversationID,
		"ended_at":   formatTime(s.now()),
		"transcript": transcript,
	})
}

func (s *Store) MarkFactsExtracted(ctx context.Context, conversationID string) error {
	return s.updateConversation(ctx, "mark facts extracted", `
		UPDATE type::record("conversation", $id) SET facts_extracted = true RETURN AFTER
	`, map[string]any{"id": conversationID})
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": conversationID})
	if err != nil {
		return models.Conversation{}, wrapQueryError("get conversation", err)
	}
	rows := lastResult(results)
	if len(rows) == 0 {
		return models.Conversation{}, &store.Error{
			Op:  "get conversation",
			Err: fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound),
		}
	}
	r := rows[0]
	return models.Conversation{
		ID:             recordKey(r.ID),
		Kind:           models.Kind(r.Kind),
		ScenarioKey:    r.ScenarioKey,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		RawTranscript:  r.RawTranscript,
		FactsExtracted: r.FactsExtracted,
	}, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	results, err := surrealdb.Query[[]messageRecord](ctx, s.client.db, `
		SELECT role, content, at, seq FROM message WHERE conversation_id = $cid ORDER BY seq ASC
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return nil, wrapQueryError("list messages", err)
	}
	records := lastResult(results)
	msgs := make([]models.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, models.Message{Role: models.Role(r.Role), Content: r.Content, At: r.At})
	}
	return msgs, nil
}

func (s *Store) SaveSupportLog(ctx context.Context, log models.SupportLog) (models.SupportLog, error) {
	defer s.metrics.Time(metrics.OpDBWrite, time.Now())
	log.ID = uuid.NewString()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	needs := log.Needs
	if needs == nil {
		needs = []string{}
	}
	_, err := surrealdb.Query[any](ctx, s.client.db, `
		CREATE type::record("support_log", $id) SET
			conversation_id = $cid,
			stress_level = $stress_level,
			needs = $needs,
			created_at = type::datetime($created_at)
	`, map[string]any{
		"id":           log.ID,
		"cid":          log.ConversationID,
		"stress_level": log.StressLevel,
		"needs":        needs,
		"created_at":   formatTime(log.CreatedAt),
	})
	if err != nil {
		return models.SupportLog{}, wrapQueryError("save support log", err)
	}
	return log, nil
}

func (s *Store) ListSupportLogs(ctx context.Context, conversationID string) ([]models.SupportLog, error) {
	defer s.metrics.Time(metrics.OpDBQuery, time.Now())
	results, err := surrealdb.Query[[]supportLogRecord](ctx, s.client.db, `
		SELECT * FROM support_log WHERE conversation_id = $cid ORDER BY created_at ASC
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return nil, wrapQueryError("list support logs", err)
	}
	records := lastResult(results)
	logs := make([]models.SupportLog, 0, len(records))
	for _, r := range records {
		logs = append(logs, models.SupportLog{
			ID:             recordKey(r.ID),
			ConversationID: r.ConversationID,
			StressLevel:    r.StressLevel,
			Needs:          r.Needs,
			CreatedAt:      r.CreatedAt,
		})
	}
	return logs, nil
}
