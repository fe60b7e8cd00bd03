package store

// SchemaVersion is bumped whenever the table layouts change incompatibly.
const SchemaVersion = 1

// sampleSchema holds the labeled moderation samples, one database per
// deployment with profiles partitioned by column.
const sampleSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS samples (
	id          TEXT PRIMARY KEY,
	profile     TEXT NOT NULL,
	text        TEXT NOT NULL,
	label       TEXT NOT NULL CHECK (label IN ('pass', 'violation')),
	score       REAL NOT NULL DEFAULT 0,
	source      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_profile_label
	ON samples (profile, label);
CREATE INDEX IF NOT EXISTS idx_samples_profile_created
	ON samples (profile, created_at);
`

// decisionSchema is the append-only log of moderation decisions.
const decisionSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	profile     TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	score       REAL NOT NULL,
	model_absent INTEGER NOT NULL DEFAULT 0,
	uncertain   INTEGER NOT NULL DEFAULT 0,
	sampled     INTEGER NOT NULL DEFAULT 0,
	decided_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_profile_decided
	ON decisions (profile, decided_at);
CREATE INDEX IF NOT EXISTS idx_decisions_request
	ON decisions (request_id);
`

const insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`
