package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"queue-purger/internal/models"
	"queue-purger/internal/queue"
)

// RunRecorder persists finished purge runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.PurgeRun) error
}

// QueueService runs broker operations. Operations on one service are
// serialized because they share the provider's connection.
type QueueService struct {
	mu       sync.Mutex
	provider queue.Provider
	recorder RunRecorder
	now      func() time.Time
}

func NewQueueService(p queue.Provider, r RunRecorder) *QueueService {
	return &QueueService{provider: p, recorder: r, now: time.Now}
}

// withConnection runs fn between Connect and Close. A failed connect is
// returned as is and fn never runs; otherwise Close runs exactly once.
func (s *QueueService) withConnection(ctx context.Context, fn func() error) error {
	if s.provider == nil {
		return errors.New("no queue provider configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.provider.Connect(ctx); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer func() {
		if err := s.provider.Close(); err != nil {
			log.Warn().Err(err).Str("component", "service").Msg("closing broker connection failed")
		}
	}()
	return fn()
}

// Progress receives purge events as they happen. Nil fields are skipped.
type Progress struct {
	// Connected runs once the broker connection is open, before any queue.
	Connected func()
	// Outcome runs after each queue is processed.
	Outcome func(models.Outcome)
}

// Purge empties each queue in order over a single connection. Per-queue
// failures are reported as outcomes; only a failed connect returns an error.
func (s *QueueService) Purge(ctx context.Context, trigger string, queues []string) (models.PurgeRun, error) {
	return s.PurgeWithProgress(ctx, trigger, queues, Progress{})
}

func (s *QueueService) PurgeWithProgress(ctx context.Context, trigger string, queues []string, progress Progress) (models.PurgeRun, error) {
	run := models.PurgeRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
	}
	names := normalize(queues)

	err := s.withConnection(ctx, func() error {
		if progress.Connected != nil {
			progress.Connected()
		}
		run.Outcomes = make([]models.Outcome, 0, len(names))
		for _, name := range names {
			outcome := s.purgeOne(ctx, name)
			run.Outcomes = append(run.Outcomes, outcome)
			if progress.Outcome != nil {
				progress.Outcome(outcome)
			}
		}
		return nil
	})
	if err != nil {
		return run, err
	}
	run.FinishedAt = s.now().UTC()

	s.record(ctx, run)
	return run, nil
}

func (s *QueueService) purgeOne(ctx context.Context, name string) models.Outcome {
	logger := log.With().Str("component", "service").Str("queue", name).Logger()

	if err := ctx.Err(); err != nil {
		return models.Failed(name, err)
	}
	state, err := s.provider.Inspect(name)
	if err != nil {
		logger.Warn().Err(err).Msg("inspect failed")
		return models.Failed(name, err)
	}
	if state.Messages <= 0 {
		logger.Debug().Msg("queue empty")
		return models.Empty(name)
	}
	purged, err := s.provider.PurgeQueue(name)
	if err != nil {
		logger.Warn().Err(err).Int("pending", state.Messages).Msg("purge failed")
		return models.Failed(name, err)
	}
	logger.Info().Int("purged", purged).Msg("queue purged")
	return models.Purged(name, purged)
}

func (s *QueueService) record(ctx context.Context, run models.PurgeRun) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("component", "service").Str("run_id", run.ID).Msg("recording purge run failed")
	}
}

// Status inspects each queue in order without modifying it.
func (s *QueueService) Status(ctx context.Context, queues []string) ([]models.QueueStatus, error) {
	names := normalize(queues)
	var out []models.QueueStatus

	err := s.withConnection(ctx, func() error {
		out = make([]models.QueueStatus, 0, len(names))
		for _, name := range names {
			out = append(out, s.statusOne(ctx, name))
		}
		return nil
	})
	return out, err
}

func (s *QueueService) statusOne(ctx context.Context, name string) models.QueueStatus {
	if err := ctx.Err(); err != nil {
		return models.QueueStatus{Queue: name, Error: err.Error()}
	}
	state, err := s.provider.Inspect(name)
	switch {
	case errors.Is(err, queue.ErrQueueNotFound):
		return models.QueueStatus{Queue: name}
	case err != nil:
		return models.QueueStatus{Queue: name, Error: err.Error()}
	}
	return models.QueueStatus{Queue: name, Found: true, Messages: state.Messages, Consumers: state.Consumers}
}

// Requeue moves up to limit messages from one queue to another.
func (s *QueueService) Requeue(ctx context.Context, from, to string, limit int) (int, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	switch {
	case from == "" || to == "":
		return 0, errors.New("source and target queues are required")
	case from == to:
		return 0, fmt.Errorf("source and target are the same queue %q", from)
	case limit <= 0:
		return 0, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var moved int
	err := s.withConnection(ctx, func() error {
		var err error
		moved, err = s.provider.Requeue(ctx, from, to, limit)
		return err
	})
	logger := log.With().Str("component", "service").Str("from", from).Str("to", to).Int("moved", moved).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("requeue finished")
	} else {
		logger.Info().Msg("requeue finished")
	}
	return moved, err
}

// Peek returns up to limit messages from the head of a queue without
// removing them.
func (s *QueueService) Peek(ctx context.Context, name string, limit int) ([]models.PeekedMessage, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, errors.New("queue is required")
	case limit <= 0:
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var msgs []models.PeekedMessage
	err := s.withConnection(ctx, func() error {
		var err error
		msgs, err = s.provider.Peek(ctx, name, limit)
		return err
	})
	return msgs, err
}

func normalize(queues []string) []string {
	names := lo.Map(queues, func(q string, _ int) string {
		return strings.TrimSpace(q)
	})
	return lo.Uniq(lo.Compact(names))
}
