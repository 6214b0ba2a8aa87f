// Package storage persists control samples to a sqlite file for offline
// analysis of tuning runs. Entirely optional: the daemon only opens a
// store when TELEMETRY_DB_PATH is set.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relabs-tech/balance_robot/internal/telemetry"
)

// Store handles database operations for telemetry sessions.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the sqlite database at dbPath and initializes
// the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening telemetry database: %w", err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records the start of a logging run and returns its ID.
// config is stored verbatim for later reference.
func (s *Store) CreateSession(ctx context.Context, sensorSource, config string) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertSessionSQL, sensorSource, config)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting session ID: %w", err)
	}
	return id, nil
}

// AppendSamples writes a batch of control samples within one transaction.
func (s *Store) AppendSamples(ctx context.Context, sessionID int64, samples []telemetry.Sample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samples {
		if _, err = stmt.ExecContext(ctx, sessionID, sm.Timestamp,
			sm.ActualAngle, sm.TargetAngle, sm.Error,
			sm.PTerm, sm.ITerm, sm.DTerm, sm.Output, sm.MotorPercent); err != nil {
			return fmt.Errorf("inserting sample: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// Samples returns all samples of a session in insertion order.
func (s *Store) Samples(ctx context.Context, sessionID int64) ([]telemetry.Sample, error) {
	rows, err := s.db.QueryContext(ctx, selectSamplesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Sample
	for rows.Next() {
		var sm telemetry.Sample
		if err := rows.Scan(&sm.Timestamp, &sm.ActualAngle, &sm.TargetAngle,
			&sm.Error, &sm.PTerm, &sm.ITerm, &sm.DTerm,
			&sm.Output, &sm.MotorPercent); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return out, nil
}
