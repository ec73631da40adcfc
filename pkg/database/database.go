package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/lib/pq"
)

var DebugLog func(string, ...interface{})

var ErrDisabled = errors.New("database is not enabled")

type DB struct {
	conn    *sql.DB
	enabled bool
}

type SessionRecord struct {
	SessionID        string
	StartedAt        time.Time
	FinishedAt       time.Time
	CyclesCompleted  int
	StopReason       string
	Interrupted      bool
	BaselineAccuracy float64
	FinalAccuracy    float64
	Improvement      float64
}

// New connects to Postgres, creating the database and schema on first use.
// A disabled config yields a DB whose writes are no-ops.
func New(ctx context.Context, cfg *config.Database) (*DB, error) {
	db := &DB{
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		if DebugLog != nil {
			DebugLog("database connection disabled")
		}
		return db, nil
	}

	if err := ensureDatabase(ctx, cfg); err != nil {
		return db, err
	}

	conn, err := sql.Open("postgres", connString(cfg, cfg.Name))
	if err != nil {
		return db, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return db, fmt.Errorf("failed to ping database: %w", err)
	}

	db.conn = conn
	if DebugLog != nil {
		DebugLog("database connection active (%s@%s:%d/%s)", cfg.User, cfg.Host, cfg.Port, cfg.Name)
	}

	if err := db.initSchema(ctx); err != nil {
		return db, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an open connection whose schema is already in place.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn, enabled: true}
}

func connString(cfg *config.Database, name string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, name)
}

func ensureDatabase(ctx context.Context, cfg *config.Database) error {
	postgresConn, err := sql.Open("postgres", connString(cfg, "postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer postgresConn.Close()

	if err := postgresConn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	var exists bool
	err = postgresConn.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if _, err := postgresConn.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Name)); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		if DebugLog != nil {
			DebugLog("database %s created", cfg.Name)
		}
	}
	return nil
}

func (db *DB) initSchema(ctx context.Context) error {
	if !db.IsEnabled() {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS training_sessions (
		session_id VARCHAR(64) PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		cycles_completed INTEGER NOT NULL,
		stop_reason VARCHAR(32) NOT NULL,
		interrupted BOOLEAN NOT NULL DEFAULT FALSE,
		baseline_accuracy DOUBLE PRECISION,
		final_accuracy DOUBLE PRECISION,
		improvement DOUBLE PRECISION,
		result JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS training_cycles (
		session_id VARCHAR(64) NOT NULL REFERENCES training_sessions(session_id) ON DELETE CASCADE,
		cycle_number INTEGER NOT NULL,
		questions_processed INTEGER NOT NULL,
		correct_answers INTEGER NOT NULL,
		improvements_made INTEGER NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		accuracy DOUBLE PRECISION NOT NULL,
		improvement_rate DOUBLE PRECISION NOT NULL,
		learning_efficiency DOUBLE PRECISION NOT NULL,
		started_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL,
		PRIMARY KEY (session_id, cycle_number)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON training_sessions(started_at);
	`

	_, err := db.conn.ExecContext(ctx, schema)
	return err
}

func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) IsEnabled() bool {
	return db.enabled && db.conn != nil
}

// SaveTrainingSession upserts the session row and replaces its cycle rows.
func (db *DB) SaveTrainingSession(ctx context.Context, result *types.TrainingResult) error {
	if !db.IsEnabled() {
		return nil
	}

	rec := RecordOf(result)
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal training result: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO training_sessions (session_id, started_at, finished_at, cycles_completed, stop_reason,
			interrupted, baseline_accuracy, final_accuracy, improvement, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			cycles_completed = EXCLUDED.cycles_completed,
			stop_reason = EXCLUDED.stop_reason,
			interrupted = EXCLUDED.interrupted,
			baseline_accuracy = EXCLUDED.baseline_accuracy,
			final_accuracy = EXCLUDED.final_accuracy,
			improvement = EXCLUDED.improvement,
			result = EXCLUDED.result
	`, rec.SessionID, rec.StartedAt, rec.FinishedAt, rec.CyclesCompleted, rec.StopReason,
		rec.Interrupted, rec.BaselineAccuracy, rec.FinalAccuracy, rec.Improvement, payload)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM training_cycles WHERE session_id = $1`, rec.SessionID); err != nil {
		return err
	}

	for _, c := range result.LearningProgression {
		if DebugLog != nil {
			DebugLog("inserting cycle %d of session %s", c.CycleNumber, rec.SessionID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO training_cycles (session_id, cycle_number, questions_processed, correct_answers,
				improvements_made, degraded, accuracy, improvement_rate, learning_efficiency, started_at, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, rec.SessionID, c.CycleNumber, c.QuestionsProcessed, c.CorrectAnswers, c.ImprovementsMade, c.Degraded,
			c.Metrics.Accuracy, c.Metrics.ImprovementRate, c.Metrics.LearningEfficiency, c.StartedAt, c.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save cycle %d: %w", c.CycleNumber, err)
		}
	}

	return tx.Commit()
}

// RecordOf flattens a result into the row stored in training_sessions.
func RecordOf(result *types.TrainingResult) SessionRecord {
	rec := SessionRecord{
		SessionID:       result.SessionID,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		CyclesCompleted: result.CyclesCompleted,
		StopReason:      string(result.StopReason),
		Interrupted:     result.Interrupted,
	}
	if result.Baseline != nil {
		rec.BaselineAccuracy = result.Baseline.Accuracy
	}
	if result.Final != nil {
		rec.FinalAccuracy = result.Final.Accuracy
		rec.Improvement = result.Final.Improvement
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	return rec
}

// QuerySessions returns the most recent sessions, newest first.
func (db *DB) QuerySessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if !db.IsEnabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, started_at, finished_at, cycles_completed, stop_reason, interrupted,
			COALESCE(baseline_accuracy, 0), COALESCE(final_accuracy, 0), COALESCE(improvement, 0)
		FROM training_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.SessionID, &r.StartedAt, &r.FinishedAt, &r.CyclesCompleted, &r.StopReason,
			&r.Interrupted, &r.BaselineAccuracy, &r.FinalAccuracy, &r.Improvement); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
