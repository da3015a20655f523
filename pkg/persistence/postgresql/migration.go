package postgresql

// migrations returns the numbered schema migrations for the PostgreSQL
// persistence layer, applied in order by the migration manager.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS operators (
				id BIGINT PRIMARY KEY,
				full_name TEXT NOT NULL,
				position TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS drafts (
				operator_id BIGINT NOT NULL,
				process TEXT NOT NULL,
				schema_version INTEGER NOT NULL,
				payload JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (operator_id, process)
			);

			CREATE TABLE IF NOT EXISTS continuation_tokens (
				token TEXT PRIMARY KEY,
				operator_id BIGINT NOT NULL,
				action TEXT NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_continuation_tokens_expires_at
				ON continuation_tokens (expires_at);

			CREATE TABLE IF NOT EXISTS control_records (
				id UUID PRIMARY KEY,
				operator_id BIGINT NOT NULL,
				process TEXT NOT NULL,
				unit_session_id TEXT NOT NULL DEFAULT '',
				headline_numeric DOUBLE PRECISION,
				record_values JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_control_records_operator_process
				ON control_records (operator_id, process, created_at DESC);

			CREATE TABLE IF NOT EXISTS unit_sessions (
				id UUID PRIMARY KEY,
				operator_id BIGINT NOT NULL,
				process TEXT NOT NULL,
				container_code TEXT NOT NULL DEFAULT '',
				item_code TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_unit_sessions_active_item
				ON unit_sessions (process, item_code)
				WHERE completed_at IS NULL;

			CREATE INDEX IF NOT EXISTS idx_unit_sessions_operator
				ON unit_sessions (operator_id, process, created_at DESC);
		`,
	}
}
