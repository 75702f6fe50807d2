package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/tree"
)

// ErrNotFound is returned when no exploration has the requested id
var ErrNotFound = errors.New("exploration not found")

// Exploration is one recorded run
type Exploration struct {
	ID               string
	Title            string
	URL              string
	Source           string
	Endpoint         string
	StartedAt        time.Time
	FinishedAt       *time.Time
	TotalNodes       int
	CompletedNodes   int
	ErrorNodes       int
	RateLimitedNodes int
	HasAnalysis      bool
}

// Finished reports whether the run reached completion
func (e Exploration) Finished() bool {
	return e.FinishedAt != nil
}

// ExplorationFilter narrows ListExplorations. Zero values mean no bound.
type ExplorationFilter struct {
	Limit  int
	After  time.Time
	Before time.Time
	Title  string // substring match, case-insensitive
}

// Recorder records explorations served by one endpoint
type Recorder struct {
	db       *DB
	endpoint string
}

// Recorder returns a recorder that tags rows with endpoint
func (db *DB) Recorder(endpoint string) *Recorder {
	return &Recorder{db: db, endpoint: endpoint}
}

// Started records the start of an exploration and returns its id
func (r *Recorder) Started(article models.ArticleData) (string, error) {
	return r.db.start(article, r.endpoint)
}

// Finished stores the final counts; see DB.Finished
func (r *Recorder) Finished(id string, total int, counts tree.Counts, hasAnalysis bool) error {
	return r.db.Finished(id, total, counts, hasAnalysis)
}

// Started records the start of an exploration with no endpoint
func (db *DB) Started(article models.ArticleData) (string, error) {
	return db.start(article, "")
}

func (db *DB) start(article models.ArticleData, endpoint string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`
		INSERT INTO explorations (id, title, url, source, endpoint, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, article.Title, article.URL, article.Source, endpoint, formatTime(db.now()))
	if err != nil {
		return "", fmt.Errorf("failed to record exploration: %w", err)
	}
	return id, nil
}

// Finished stores the final counts. It may be called again for the same id
// when the analysis arrives after completion; the first finish time is kept.
func (db *DB) Finished(id string, total int, counts tree.Counts, hasAnalysis bool) error {
	res, err := db.conn.Exec(`
		UPDATE explorations SET
			finished_at = COALESCE(finished_at, ?),
			total_nodes = ?,
			completed_nodes = ?,
			error_nodes = ?,
			rate_limited_nodes = ?,
			has_analysis = (has_analysis OR ?)
		WHERE id = ?
	`, formatTime(db.now()), total,
		counts[models.StatusCompleted],
		counts[models.StatusError],
		counts[models.StatusRateLimited],
		hasAnalysis, id)
	if err != nil {
		return fmt.Errorf("failed to finish exploration: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish exploration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const explorationColumns = `id, title, url, source, endpoint, started_at, finished_at,
	total_nodes, completed_nodes, error_nodes, rate_limited_nodes, has_analysis`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExploration(row scanner) (Exploration, error) {
	var (
		e                     Exploration
		url, source, endpoint sql.NullString
		startedAt             string
		finishedAt            sql.NullString
	)
	err := row.Scan(&e.ID, &e.Title, &url, &source, &endpoint, &startedAt, &finishedAt,
		&e.TotalNodes, &e.CompletedNodes, &e.ErrorNodes, &e.RateLimitedNodes, &e.HasAnalysis)
	if err != nil {
		return e, err
	}

	e.URL = url.String
	e.Source = source.String
	e.Endpoint = endpoint.String
	e.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		e.FinishedAt = &t
	}
	return e, nil
}

// GetExploration loads one exploration by id
func (db *DB) GetExploration(id string) (Exploration, error) {
	row := db.conn.QueryRow(`SELECT `+explorationColumns+` FROM explorations WHERE id = ?`, id)
	e, err := scanExploration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return e, fmt.Errorf("failed to load exploration: %w", err)
	}
	return e, nil
}

// ListExplorations returns explorations newest first
func (db *DB) ListExplorations(filter ExplorationFilter) ([]Exploration, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.After.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, formatTime(filter.After))
	}
	if !filter.Before.IsZero() {
		where = append(where, "started_at < ?")
		args = append(args, formatTime(filter.Before))
	}
	if t := strings.TrimSpace(filter.Title); t != "" {
		where = append(where, "title LIKE ? COLLATE NOCASE")
		args = append(args, "%"+t+"%")
	}

	query := `SELECT ` + explorationColumns + ` FROM explorations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list explorations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Exploration
	for rows.Next() {
		e, err := scanExploration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exploration: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
