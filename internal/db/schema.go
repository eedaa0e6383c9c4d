package db

// SchemaSQL defines the tables backing conversations, messages, facts and
// support logs. Every statement is idempotent.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON conversation TYPE string ASSERT $value IN ["survey", "intervention", "support"];
    DEFINE FIELD IF NOT EXISTS scenario_key ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS started_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS ended_at ON conversation TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS raw_transcript ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS facts_extracted ON conversation TYPE bool DEFAULT false;

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS at ON message TYPE datetime;
    DEFINE FIELD IF NOT EXISTS seq ON message TYPE int;
    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation_id, seq;

    -- Facts are append-only; seq preserves insertion order inside a batch.
    DEFINE TABLE IF NOT EXISTS fact SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON fact TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS tags ON fact TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS value ON fact TYPE string;
    DEFINE FIELD IF NOT EXISTS severity ON fact TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS extracted_at ON fact TYPE datetime;
    DEFINE FIELD IF NOT EXISTS seq ON fact TYPE int;
    DEFINE INDEX IF NOT EXISTS fact_seq ON fact FIELDS seq;
    DEFINE INDEX IF NOT EXISTS fact_tags ON fact FIELDS tags;

    DEFINE TABLE IF NOT EXISTS support_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON support_log TYPE string;
    DEFINE FIELD IF NOT EXISTS stress_level ON support_log TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS needs ON support_log TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS created_at ON support_log TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS support_log_conversation ON support_log FIELDS conversation_id;
`
