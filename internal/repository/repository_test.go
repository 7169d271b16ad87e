package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-purger/internal/models"
)

func sampleRun() models.PurgeRun {
	start := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	return models.PurgeRun{
		ID:         "4b7c1a52-9a54-4a1f-8d0f-1f4f3e2b9c10",
		Trigger:    models.TriggerCLI,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Outcomes: []models.Outcome{
			models.Purged("travel.bookings", 5),
			models.Failed("travel.admin", errors.New("queue not found")),
		},
	}
}

func TestNewRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestRepository_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("creates schema and tables", func(t *testing.T) {
		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS queue_purger`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS queue_purger.purge_runs`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS queue_purger.purge_outcomes`).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.EnsureSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at first error", func(t *testing.T) {
		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS queue_purger`).WillReturnError(sql.ErrConnDone)

		err := repo.EnsureSchema(context.Background())
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_RecordRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	run := sampleRun()

	t.Run("run and ordered outcomes in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO queue_purger.purge_runs`).
			WithArgs(run.ID, models.TriggerCLI, run.StartedAt, run.FinishedAt, 1, 5, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO queue_purger.purge_outcomes`).
			WithArgs(run.ID, 0, "travel.bookings", "purged", 5, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO queue_purger.purge_outcomes`).
			WithArgs(run.ID, 1, "travel.admin", "error", 0, "queue not found").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.RecordRun(context.Background(), run))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on outcome failure", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO queue_purger.purge_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO queue_purger.purge_outcomes`).WillReturnError(errors.New("constraint violation"))
		mock.ExpectRollback()

		err := repo.RecordRun(context.Background(), run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "travel.bookings")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin error", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

		err := repo.RecordRun(context.Background(), run)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	columns := []string{"id", "trigger", "started_at", "finished_at", "queues_purged", "messages_purged", "failures"}

	t.Run("successful list", func(t *testing.T) {
		now := time.Now().UTC()
		rows := sqlmock.NewRows(columns).
			AddRow("r2", "schedule", now, now, 2, 40, 0).
			AddRow("r1", "cli", now.Add(-time.Hour), now.Add(-time.Hour), 1, 5, 1)

		mock.ExpectQuery(`SELECT id, trigger, started_at`).WithArgs(5).WillReturnRows(rows)

		runs, err := repo.ListRuns(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "r2", runs[0].ID)
		assert.Equal(t, 40, runs[0].MessagesPurged)
		assert.Equal(t, "cli", runs[1].Trigger)
		assert.Equal(t, 1, runs[1].Failures)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("default limit", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, trigger, started_at`).WithArgs(defaultRunLimit).WillReturnRows(sqlmock.NewRows(columns))

		runs, err := repo.ListRuns(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, trigger, started_at`).WillReturnError(sql.ErrConnDone)

		_, err := repo.ListRuns(context.Background(), 10)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
