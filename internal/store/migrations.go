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
		Name:    "create turns and summaries",
		SQL: `
			CREATE TABLE turns (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL,
				role             TEXT NOT NULL,
				content          TEXT NOT NULL,
				created_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_turns_conversation ON turns (conversation_id, id);

			CREATE TABLE summaries (
				conversation_id  TEXT PRIMARY KEY,
				content          TEXT NOT NULL,
				updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
