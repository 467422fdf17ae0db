// Package storage keeps the hub's telemetry history in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/models"
)

// Store defines the interface for sample history storage
type Store interface {
	Close() error
	Migrate() error
	InsertSample(sample *models.Sample) error
	InsertBatch(samples []*models.Sample) error
	GetSamplesInRange(agentID string, start, end time.Time, limit int) ([]*models.Sample, error)
	GetSamplesBefore(agentID string, before time.Time, limit int) ([]*models.Sample, error)
	GetLatestSample(agentID string) (*models.Sample, error)
	GetDailyStats(agentID string, start, end time.Time) ([]DailyStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
	GetAgentIDs() ([]string, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of agent samples.
// recorded_at holds the agent's timestamp in Unix seconds.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// DailyStat represents aggregated statistics for a single UTC day
type DailyStat struct {
	Date           time.Time `json:"date"`
	AgentID        string    `json:"agent_id"`
	MinTemperature float64   `json:"min_temperature"`
	MaxTemperature float64   `json:"max_temperature"`
	AvgTemperature float64   `json:"avg_temperature"`
	MinHumidity    float64   `json:"min_humidity"`
	MaxHumidity    float64   `json:"max_humidity"`
	AvgHumidity    float64   `json:"avg_humidity"`
	SampleCount    int       `json:"sample_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalSamples   int64     `json:"total_samples"`
	OldestSample   time.Time `json:"oldest_sample,omitempty"`
	NewestSample   time.Time `json:"newest_sample,omitempty"`
	UniqueAgents   int       `json:"unique_agents"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		recorded_at INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_samples_agent_time ON samples(agent_id, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_samples_time ON samples(recorded_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertSample = `
	INSERT INTO samples (agent_id, temperature, humidity, recorded_at)
	VALUES (?, ?, ?, ?)
`

// InsertSample inserts a single sample
func (s *SQLiteStore) InsertSample(sample *models.Sample) error {
	_, err := s.db.Exec(insertSample, sample.AgentID, sample.Temperature, sample.Humidity, sample.Time)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple samples in a single transaction
func (s *SQLiteStore) InsertBatch(samples []*models.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSample)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.Exec(sample.AgentID, sample.Temperature, sample.Humidity, sample.Time); err != nil {
			return fmt.Errorf("failed to insert sample in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(samples)).Msg("Batch insert completed")
	return nil
}

// querySamples runs a SELECT over samples, optionally filtered by agent.
// cond is ANDed with the agent filter.
func (s *SQLiteStore) querySamples(agentID, cond, order string, limit int, args ...any) ([]*models.Sample, error) {
	query := "SELECT agent_id, temperature, humidity, recorded_at FROM samples WHERE " + cond
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY recorded_at " + order + ", id " + order + " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// GetSamplesInRange returns samples within [start, end], newest first
func (s *SQLiteStore) GetSamplesInRange(agentID string, start, end time.Time, limit int) ([]*models.Sample, error) {
	return s.querySamples(agentID, "recorded_at BETWEEN ? AND ?", "DESC", limit, start.Unix(), end.Unix())
}

// GetSamplesBefore returns samples strictly before a time, newest first (for scrolling back)
func (s *SQLiteStore) GetSamplesBefore(agentID string, before time.Time, limit int) ([]*models.Sample, error) {
	return s.querySamples(agentID, "recorded_at < ?", "DESC", limit, before.Unix())
}

// GetLatestSample returns the most recent sample for an agent, or nil
func (s *SQLiteStore) GetLatestSample(agentID string) (*models.Sample, error) {
	row := s.db.QueryRow(`
		SELECT agent_id, temperature, humidity, recorded_at
		FROM samples
		WHERE agent_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, agentID)

	var sample models.Sample
	err := row.Scan(&sample.AgentID, &sample.Temperature, &sample.Humidity, &sample.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return &sample, nil
}

// GetDailyStats returns aggregated daily statistics for a time range
func (s *SQLiteStore) GetDailyStats(agentID string, start, end time.Time) ([]DailyStat, error) {
	query := `
		SELECT
			date(recorded_at, 'unixepoch') AS day,
			agent_id,
			MIN(temperature), MAX(temperature), AVG(temperature),
			MIN(humidity), MAX(humidity), AVG(humidity),
			COUNT(*)
		FROM samples
		WHERE recorded_at BETWEEN ? AND ?`
	args := []any{start.Unix(), end.Unix()}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " GROUP BY day, agent_id ORDER BY day DESC, agent_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var day string

		err := rows.Scan(
			&day,
			&stat.AgentID,
			&stat.MinTemperature,
			&stat.MaxTemperature,
			&stat.AvgTemperature,
			&stat.MinHumidity,
			&stat.MaxHumidity,
			&stat.AvgHumidity,
			&stat.SampleCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stat.Date, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes samples whose agent timestamp is older than days
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec("DELETE FROM samples WHERE recorded_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old samples")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&stats.TotalSamples); err != nil {
		return nil, fmt.Errorf("failed to count samples: %w", err)
	}

	if stats.TotalSamples == 0 {
		return stats, nil
	}

	var oldest, newest int64
	err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM samples").Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}
	stats.OldestSample = time.Unix(oldest, 0).UTC()
	stats.NewestSample = time.Unix(newest, 0).UTC()

	err = s.db.QueryRow("SELECT COUNT(DISTINCT agent_id) FROM samples").Scan(&stats.UniqueAgents)
	if err != nil {
		return nil, fmt.Errorf("failed to count agents: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// GetAgentIDs returns all agent IDs that have history, sorted
func (s *SQLiteStore) GetAgentIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT agent_id FROM samples ORDER BY agent_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query agent IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

func scanSamples(rows *sql.Rows) ([]*models.Sample, error) {
	var samples []*models.Sample

	for rows.Next() {
		var sample models.Sample
		if err := rows.Scan(&sample.AgentID, &sample.Temperature, &sample.Humidity, &sample.Time); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return samples, nil
}
