package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"queue-purger/internal/models"
)

const defaultRunLimit = 20

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS queue_purger`,
	`CREATE TABLE IF NOT EXISTS queue_purger.purge_runs (
		id              UUID PRIMARY KEY,
		trigger         TEXT NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL,
		queues_purged   INT NOT NULL,
		messages_purged BIGINT NOT NULL,
		failures        INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS queue_purger.purge_outcomes (
		run_id        UUID NOT NULL REFERENCES queue_purger.purge_runs (id) ON DELETE CASCADE,
		position      INT NOT NULL,
		queue_name    TEXT NOT NULL,
		result        TEXT NOT NULL,
		message_count INT NOT NULL,
		error         TEXT,
		PRIMARY KEY (run_id, position)
	)`,
}

// Repository stores the audit trail of purge runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository instance
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the audit tables if they do not exist yet
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordRun stores a run and its outcomes in one transaction. Outcome rows keep
// the order the queues were processed in.
func (r *Repository) RecordRun(ctx context.Context, run models.PurgeRun) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	s := run.Summary()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_purger.purge_runs
			(id, trigger, started_at, finished_at, queues_purged, messages_purged, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Trigger, s.StartedAt, s.FinishedAt, s.QueuesPurged, s.MessagesPurged, s.Failures,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for i, o := range run.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO queue_purger.purge_outcomes
				(run_id, position, queue_name, result, message_count, error)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, i, o.Queue, string(o.Result), o.Count, sql.NullString{String: o.Error, Valid: o.Error != ""},
		)
		if err != nil {
			return fmt.Errorf("insert outcome for %s: %w", o.Queue, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	log.Debug().Str("component", "repository").Str("run_id", run.ID).Int("outcomes", len(run.Outcomes)).Msg("purge run recorded")
	return nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger, started_at, finished_at, queues_purged, messages_purged, failures
		FROM queue_purger.purge_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.RunSummary{}
	for rows.Next() {
		var s models.RunSummary
		if err := rows.Scan(&s.ID, &s.Trigger, &s.StartedAt, &s.FinishedAt,
			&s.QueuesPurged, &s.MessagesPurged, &s.Failures); err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Debug().Str("component", "repository").Int("runs", len(runs)).Msg("ListRuns loaded runs")
	return runs, nil
}
