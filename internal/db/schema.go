package db

import "fmt"

// SchemaSQL returns the schema initialization SQL for the given embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- LECTURE TABLE
    -- ==========================================================================
    -- Keyed by the file ID assigned at import time
    DEFINE TABLE IF NOT EXISTS lecture SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source ON lecture TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS title ON lecture TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON lecture TYPE option<string>
        ASSERT $value = NONE OR $value IN ["Transcribing", "Indexing", "Indexed"];
    DEFINE FIELD IF NOT EXISTS version ON lecture TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS status_history ON lecture TYPE array<object> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS status_history[*].status ON lecture TYPE string;
    DEFINE FIELD IF NOT EXISTS status_history[*].at ON lecture TYPE datetime;
    DEFINE FIELD IF NOT EXISTS media_path ON lecture TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON lecture TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON lecture TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS lecture_status ON lecture FIELDS status;

    -- ==========================================================================
    -- TRANSCRIPT TABLE
    -- ==========================================================================
    -- One record per lecture file; tokens ordered by start_idx
    DEFINE TABLE IF NOT EXISTS transcript SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS tokens ON transcript TYPE array<object> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS tokens[*].text ON transcript TYPE string;
    DEFINE FIELD IF NOT EXISTS tokens[*].start_time ON transcript TYPE number;
    DEFINE FIELD IF NOT EXISTS tokens[*].end_time ON transcript TYPE number;
    DEFINE FIELD IF NOT EXISTS tokens[*].start_idx ON transcript TYPE int;
    DEFINE FIELD IF NOT EXISTS tokens[*].end_idx ON transcript TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON transcript TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- CHUNK TABLE (Vector Index)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS index_name ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS page_content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON chunk TYPE object;
    DEFINE FIELD IF NOT EXISTS metadata.start_time ON chunk TYPE number;
    DEFINE FIELD IF NOT EXISTS metadata.end_time ON chunk TYPE number;
    DEFINE FIELD IF NOT EXISTS metadata.start_idx ON chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS metadata.end_idx ON chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS metadata.source ON chunk TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS embedding ON chunk TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_index_name ON chunk FIELDS index_name;
    DEFINE INDEX IF NOT EXISTS chunk_source ON chunk FIELDS metadata.source;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- CHAT_TURN TABLE (Chat History)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chat_turn SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON chat_turn TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON chat_turn TYPE int;
    DEFINE FIELD IF NOT EXISTS question ON chat_turn TYPE string;
    DEFINE FIELD IF NOT EXISTS answer ON chat_turn TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON chat_turn TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chat_turn_session ON chat_turn FIELDS session_id, position UNIQUE;

    -- ==========================================================================
    -- STAGE_JOB TABLE (Durable task graph)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS stage_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS method ON stage_job TYPE string;
    DEFINE FIELD IF NOT EXISTS args ON stage_job TYPE object FLEXIBLE DEFAULT {};
    DEFINE FIELD IF NOT EXISTS wait_on ON stage_job TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS status ON stage_job TYPE string DEFAULT "pending"
        ASSERT $value IN ["pending", "running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS output ON stage_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON stage_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS attempts ON stage_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON stage_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS started_at ON stage_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON stage_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS stage_job_status ON stage_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS stage_job_created ON stage_job FIELDS created_at;
`
