package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				owner_id    TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_owner ON conversations (owner_id, updated_at);

			CREATE TABLE messages (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role             TEXT NOT NULL,
				speaker          TEXT NOT NULL,
				agent_id         TEXT NOT NULL DEFAULT '',
				content          TEXT NOT NULL,
				language         TEXT NOT NULL DEFAULT '',
				timestamp        TEXT NOT NULL
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create message search with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				speaker,
				content='messages',
				content_rowid='id'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content, speaker)
				VALUES (new.id, new.content, new.speaker);
			END;

			CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content, speaker)
				VALUES ('delete', old.id, old.content, old.speaker);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create agents",
		SQL: `
			CREATE TABLE agents (
				id          TEXT PRIMARY KEY,
				owner_id    TEXT NOT NULL DEFAULT '',
				name        TEXT NOT NULL,
				descriptor  TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_agents_owner ON agents (owner_id);
		`,
	},
	{
		Version: 4,
		Name:    "create usage ledger",
		SQL: `
			CREATE TABLE usage (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id        TEXT NOT NULL,
				provider       TEXT NOT NULL,
				model          TEXT NOT NULL DEFAULT '',
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				coordinator    INTEGER NOT NULL DEFAULT 0,
				at             TEXT NOT NULL
			);

			CREATE INDEX idx_usage_user ON usage (user_id, coordinator);
		`,
	},
}
