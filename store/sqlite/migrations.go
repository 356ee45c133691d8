package sqlite

// migrations is the ordered schema DDL. Statements are idempotent so
// Migrate can run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id               TEXT PRIMARY KEY,
		command          TEXT NOT NULL,
		state            TEXT NOT NULL,
		attempts         INTEGER NOT NULL DEFAULT 0,
		max_retries      INTEGER NOT NULL DEFAULT 0,
		next_eligible_at TIMESTAMP NOT NULL,
		claimed_by       TEXT NOT NULL DEFAULT '',
		last_error       TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		started_at       TIMESTAMP,
		completed_at     TIMESTAMP
	)`,

	// The claim query filters on state and orders by eligibility.
	`CREATE INDEX IF NOT EXISTS idx_jobs_claim
		ON jobs (state, next_eligible_at, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}
