package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- TASK_STATE TABLE
    -- ==========================================================================
    -- One record per generation job, written whole on every update.
    DEFINE TABLE IF NOT EXISTS task_state SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task_id ON task_state TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON task_state TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON task_state TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS step ON task_state TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON task_state TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error_kind ON task_state TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS topic ON task_state TYPE string;
    DEFINE FIELD IF NOT EXISTS outline ON task_state TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS sections ON task_state TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS sections.* ON task_state TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS document ON task_state TYPE option<string>;
    -- Monotonic counter checked by compare-and-swap updates.
    DEFINE FIELD IF NOT EXISTS version ON task_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON task_state TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS expires_at ON task_state TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS task_state_task_id ON task_state FIELDS task_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS task_state_status ON task_state FIELDS status;
    DEFINE INDEX IF NOT EXISTS task_state_expires ON task_state FIELDS expires_at;
`
