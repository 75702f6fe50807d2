package db

import (
	"database/sql"
	"time"
)

// Stats summarizes the recorded history
type Stats struct {
	TotalExplorations    int
	FinishedExplorations int
	TotalNodes           int
	ErrorNodes           int
	RateLimitedNodes     int
	WithAnalysis         int
	Oldest               time.Time
	Newest               time.Time
	MostExplored         string
	MostExploredCount    int
}

// GetStats returns aggregate counts over every exploration
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
			COUNT(finished_at),
			COALESCE(SUM(total_nodes), 0),
			COALESCE(SUM(error_nodes), 0),
			COALESCE(SUM(rate_limited_nodes), 0),
			COALESCE(SUM(has_analysis), 0)
		FROM explorations
	`).Scan(&stats.TotalExplorations, &stats.FinishedExplorations, &stats.TotalNodes,
		&stats.ErrorNodes, &stats.RateLimitedNodes, &stats.WithAnalysis)
	if err != nil {
		return nil, err
	}

	if stats.TotalExplorations == 0 {
		return stats, nil
	}

	var oldest, newest sql.NullString
	err = db.conn.QueryRow("SELECT MIN(started_at), MAX(started_at) FROM explorations").Scan(&oldest, &newest)
	if err != nil {
		return nil, err
	}
	if oldest.Valid {
		stats.Oldest = parseTime(oldest.String)
	}
	if newest.Valid {
		stats.Newest = parseTime(newest.String)
	}

	var title sql.NullString
	err = db.conn.QueryRow(`
		SELECT title, COUNT(*) as count
		FROM explorations
		GROUP BY title
		ORDER BY count DESC, MAX(started_at) DESC
		LIMIT 1
	`).Scan(&title, &stats.MostExploredCount)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	stats.MostExplored = title.String

	return stats, nil
}
