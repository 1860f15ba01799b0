package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// Archive persists terminal events to sqlite so they stay queryable by id
// after the in-memory history evicts them.
type Archive struct {
	db *sql.DB
}

// New opens (or creates) the archive database
func New(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// Single writer: the history cleanup job is the only producer
	db.SetMaxOpenConns(1)

	a := &Archive{db: db}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initialize() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			response TEXT,
			error TEXT,
			duration_ms INTEGER,
			provider TEXT,
			use_case TEXT,
			data TEXT,
			created_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// Save upserts a terminal event
func (a *Archive) Save(event *models.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT INTO events (id, type, source, priority, status, response, error, duration_ms, provider, use_case, data, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			response = excluded.response,
			error = excluded.error,
			duration_ms = excluded.duration_ms,
			completed_at = excluded.completed_at
	`, event.ID, event.Type, event.Source, string(event.Priority), string(event.Status),
		event.Response, event.Error, event.DurationMs, event.Provider, string(event.UseCase),
		string(data), event.Timestamp, event.CompletedAt)

	if err != nil {
		return fmt.Errorf("failed to archive event: %w", err)
	}
	return nil
}

// Get returns an archived event by id, or nil when not found
func (a *Archive) Get(id string) (*models.Event, error) {
	var event models.Event
	var priority, status, useCase, data string
	var response, errMsg, provider sql.NullString
	var completedAt sql.NullTime

	err := a.db.QueryRow(`
		SELECT id, type, source, priority, status, response, error, duration_ms, provider, use_case, data, created_at, completed_at
		FROM events WHERE id = ?
	`, id).Scan(&event.ID, &event.Type, &event.Source, &priority, &status,
		&response, &errMsg, &event.DurationMs, &provider, &useCase, &data,
		&event.Timestamp, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}

	event.Priority = models.Priority(priority)
	event.Status = models.EventStatus(status)
	event.UseCase = models.UseCase(useCase)
	if response.Valid {
		event.Response = response.String
	}
	if errMsg.Valid {
		event.Error = errMsg.String
	}
	if provider.Valid {
		event.Provider = provider.String
	}
	if completedAt.Valid {
		event.CompletedAt = completedAt.Time
	}
	if data != "" {
		_ = json.Unmarshal([]byte(data), &event.Data)
	}

	return &event, nil
}

// Count returns the number of archived events
func (a *Archive) Count() (int, error) {
	var count int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return count, nil
}

// Prune deletes archived events completed before the cutoff
func (a *Archive) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := a.db.Exec(`DELETE FROM events WHERE completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}
