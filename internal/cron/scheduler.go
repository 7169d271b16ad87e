package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"queue-purger/internal/models"
)

// Purger runs one purge over a queue list.
type Purger interface {
	Purge(ctx context.Context, trigger string, queues []string) (models.PurgeRun, error)
}

type Scheduler struct {
	c      *cron.Cron
	purger Purger
	spec   string
	queues []string
}

func NewScheduler(p Purger, spec string, queues []string) *Scheduler {
	return &Scheduler{
		c:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{}))),
		purger: p,
		spec:   spec,
		queues: queues,
	}
}

// Start registers the purge job and starts the cron loop. Overlapping runs
// are skipped.
func (s *Scheduler) Start() error {
	if s.purger == nil {
		return errors.New("scheduler has no purger")
	}
	if _, err := s.c.AddFunc(s.spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid PURGE_SCHEDULE %q: %w", s.spec, err)
	}
	s.c.Start()
	log.Info().Str("component", "cron").Str("schedule", s.spec).Strs("queues", s.queues).Msg("purge schedule started")
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish.
func (s *Scheduler) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
}

func (s *Scheduler) runOnce() {
	logger := log.With().Str("component", "cron").Logger()

	run, err := s.purger.Purge(context.Background(), models.TriggerSchedule, s.queues)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled purge failed")
		return
	}
	for _, o := range run.Outcomes {
		switch o.Result {
		case models.ResultPurged:
			logger.Info().Str("queue", o.Queue).Int("purged", o.Count).Msg("queue purged")
		case models.ResultEmpty:
			logger.Debug().Str("queue", o.Queue).Msg("queue empty")
		default:
			logger.Warn().Str("queue", o.Queue).Str("error", o.Error).Msg("queue purge failed")
		}
	}
	summary := run.Summary()
	logger.Info().Str("run_id", run.ID).Int("messages_purged", summary.MessagesPurged).Int("failures", summary.Failures).Msg("scheduled purge completed")
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Str("component", "cron").Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Str("component", "cron").Err(err).Fields(keysAndValues).Msg(msg)
}
