package db

func (db *DB) initSchema() error {
	schema := `
	-- One row per exploration; the tree itself is never stored
	CREATE TABLE IF NOT EXISTS explorations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT,
		source TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		total_nodes INTEGER DEFAULT 0,
		completed_nodes INTEGER DEFAULT 0,
		error_nodes INTEGER DEFAULT 0,
		rate_limited_nodes INTEGER DEFAULT 0,
		has_analysis BOOLEAN DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_explorations_started_at ON explorations(started_at);
	CREATE INDEX IF NOT EXISTS idx_explorations_title ON explorations(title);
	`

	_, err := db.conn.Exec(schema)
	return err
}
