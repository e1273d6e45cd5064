package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/model"
)

// ProvisionRecord is a single alert submission attempt
type ProvisionRecord struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	AlertName   string                 `json:"alert_name"`
	Metric      string                 `json:"metric"`
	Outcome     model.ProvisionOutcome `json:"outcome"`
	StatusCode  int                    `json:"status_code,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	Duration    time.Duration          `json:"duration,omitempty"`
}

// ProvisionHistoryStorage defines the interface for provisioning history storage
type ProvisionHistoryStorage interface {
	// Store stores a submission attempt
	Store(ctx context.Context, record *ProvisionRecord) error

	// List retrieves the attempts of a run, oldest first. An empty runID lists every run.
	List(ctx context.Context, runID string, offset, limit int) ([]*ProvisionRecord, error)

	// Count returns the number of attempts of a run with the given outcome.
	// Empty arguments match everything.
	Count(ctx context.Context, runID string, outcome model.ProvisionOutcome) (int, error)

	// DeleteBefore deletes attempts older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying resources
	Close() error
}

// SQLiteProvisionHistory implements ProvisionHistoryStorage using SQLite
type SQLiteProvisionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteProvisionHistory opens (or creates) the history database at dbPath
func NewSQLiteProvisionHistory(logger *zap.Logger, dbPath string) (*SQLiteProvisionHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteProvisionHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteProvisionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS provision_history (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			alert_name TEXT NOT NULL,
			metric TEXT NOT NULL,
			outcome TEXT NOT NULL,
			status_code INTEGER,
			error TEXT,
			payload TEXT,
			submitted_at DATETIME NOT NULL,
			duration INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_provision_history_run_id ON provision_history(run_id);
		CREATE INDEX IF NOT EXISTS idx_provision_history_alert_name ON provision_history(alert_name);
		CREATE INDEX IF NOT EXISTS idx_provision_history_submitted_at ON provision_history(submitted_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements ProvisionHistoryStorage.Store
func (s *SQLiteProvisionHistory) Store(ctx context.Context, record *ProvisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provision_history (
			id, run_id, alert_name, metric, outcome, status_code, error, payload, submitted_at, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.RunID,
		record.AlertName,
		record.Metric,
		record.Outcome,
		sql.NullInt64{Int64: int64(record.StatusCode), Valid: record.StatusCode != 0},
		sql.NullString{String: record.Error, Valid: record.Error != ""},
		sql.NullString{String: string(record.Payload), Valid: len(record.Payload) > 0},
		record.SubmittedAt.UTC(),
		sql.NullInt64{Int64: int64(record.Duration), Valid: record.Duration != 0},
	)
	if err != nil {
		return fmt.Errorf("failed to store provision history: %w", err)
	}
	return nil
}

// List implements ProvisionHistoryStorage.List
func (s *SQLiteProvisionHistory) List(ctx context.Context, runID string, offset, limit int) ([]*ProvisionRecord, error) {
	query := `SELECT id, run_id, alert_name, metric, outcome, status_code, error, payload, submitted_at, duration
		FROM provision_history`
	args := make([]interface{}, 0, 3)

	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}

	query += " ORDER BY submitted_at ASC, rowid ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list provision history: %w", err)
	}
	defer rows.Close()

	var records []*ProvisionRecord
	for rows.Next() {
		record := &ProvisionRecord{}
		var statusCode, durationNanos sql.NullInt64
		var errorStr, payload sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.AlertName,
			&record.Metric,
			&record.Outcome,
			&statusCode,
			&errorStr,
			&payload,
			&record.SubmittedAt,
			&durationNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provision history: %w", err)
		}

		if statusCode.Valid {
			record.StatusCode = int(statusCode.Int64)
		}
		if errorStr.Valid {
			record.Error = errorStr.String
		}
		if payload.Valid && payload.String != "" {
			record.Payload = json.RawMessage(payload.String)
		}
		if durationNanos.Valid {
			record.Duration = time.Duration(durationNanos.Int64)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provision history: %w", err)
	}

	return records, nil
}

// Count implements ProvisionHistoryStorage.Count
func (s *SQLiteProvisionHistory) Count(ctx context.Context, runID string, outcome model.ProvisionOutcome) (int, error) {
	query := "SELECT COUNT(*) FROM provision_history WHERE 1 = 1"
	args := make([]interface{}, 0, 2)

	if runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}
	if outcome != "" {
		query += " AND outcome = ?"
		args = append(args, outcome)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count provision history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ProvisionHistoryStorage.DeleteBefore
func (s *SQLiteProvisionHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM provision_history WHERE submitted_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete provision history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old provision history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteProvisionHistory) Close() error {
	return s.db.Close()
}
