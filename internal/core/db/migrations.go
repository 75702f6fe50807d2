package db

import "fmt"

// migrate brings databases created by older builds up to date
func (db *DB) migrate() error {
	// Migration 1: record which endpoint served the exploration
	if err := db.addColumnIfMissing("explorations", "endpoint", "TEXT"); err != nil {
		return fmt.Errorf("migration 001: %w", err)
	}
	return nil
}

func (db *DB) addColumnIfMissing(table, column, decl string) error {
	var n int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	_, err = db.conn.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}
