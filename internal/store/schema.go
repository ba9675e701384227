package store

// Schema DDL. Statements are idempotent so initdb can run repeatedly.
// The erroneous_assets key matches quality.FlaggedAsset's upsert key and
// error_type ids in errors reference the seeded lookup table.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS error_type_lookup (
		id          INTEGER PRIMARY KEY,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS errors (
		id          BIGSERIAL PRIMARY KEY,
		error_type  INTEGER NOT NULL REFERENCES error_type_lookup (id),
		device_id   TEXT NOT NULL,
		module_key  TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS errors_device_idx ON errors (device_id, module_key)`,
	`CREATE TABLE IF NOT EXISTS erroneous_assets (
		asset_kind           TEXT NOT NULL,
		identity_code        TEXT NOT NULL,
		channel              TEXT NOT NULL DEFAULT '',
		utility_type         TEXT NOT NULL DEFAULT '',
		most_recent_error_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (asset_kind, identity_code, channel)
	)`,
	`CREATE TABLE IF NOT EXISTS quality_log (
		run_id            UUID PRIMARY KEY,
		total_assets      INTEGER NOT NULL,
		erroneous_assets  INTEGER NOT NULL,
		defect_count      INTEGER NOT NULL,
		untestable        INTEGER NOT NULL,
		partitions_failed INTEGER NOT NULL,
		started_at        TIMESTAMPTZ NOT NULL,
		finished_at       TIMESTAMPTZ NOT NULL
	)`,
}
