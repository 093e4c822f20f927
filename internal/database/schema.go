package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		character_name TEXT NOT NULL,
		role           TEXT NOT NULL CHECK (role IN ('human', 'companion')),
		content        TEXT NOT NULL,
		raw_content    TEXT NOT NULL DEFAULT '',
		phase_tag      TEXT NOT NULL DEFAULT '',
		safety         TEXT NOT NULL DEFAULT '',
		has_memory     BOOLEAN NOT NULL DEFAULT FALSE,
		affordances    TEXT NOT NULL DEFAULT '',
		user_id        TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
		ON chat_messages (session_id, character_name, created_at)`,
	`CREATE TABLE IF NOT EXISTS device_sessions (
		id           TEXT PRIMARY KEY,
		device_id    TEXT NOT NULL UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_companions (
		session_id      TEXT PRIMARY KEY,
		companion       TEXT NOT NULL,
		pending_message TEXT,
		expires_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_companions_expires
		ON pending_companions (expires_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		character_name TEXT NOT NULL,
		role           TEXT NOT NULL CHECK (role IN ('human', 'companion')),
		content        TEXT NOT NULL,
		raw_content    TEXT NOT NULL DEFAULT '',
		phase_tag      TEXT NOT NULL DEFAULT '',
		safety         TEXT NOT NULL DEFAULT '',
		has_memory     BOOLEAN NOT NULL DEFAULT 0,
		affordances    TEXT NOT NULL DEFAULT '',
		user_id        TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
		ON chat_messages (session_id, character_name, created_at)`,
	`CREATE TABLE IF NOT EXISTS device_sessions (
		id           TEXT PRIMARY KEY,
		device_id    TEXT NOT NULL UNIQUE,
		created_at   TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_companions (
		session_id      TEXT PRIMARY KEY,
		companion       TEXT NOT NULL,
		pending_message TEXT,
		expires_at      TIMESTAMP NOT NULL,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_companions_expires
		ON pending_companions (expires_at)`,
}
