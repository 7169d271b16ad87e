package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"queue-purger/api"
	"queue-purger/internal/cron"
	"queue-purger/internal/models"
	"queue-purger/internal/report"
	"queue-purger/internal/repository"
	"queue-purger/internal/server"
	"queue-purger/internal/service"
)

const (
	defaultRequeueFrom = "travel.bookings.dlq"
	defaultRequeueTo   = "travel.bookings"
	defaultRequeueMax  = 100
	defaultPeekMax     = 10
	defaultHistorySize = 20
)

func (a *app) purgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [queue...]",
		Short: "Purge the named queues, or the configured queues when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			queues := a.cfg.QueueNames
			if len(args) > 0 {
				queues = args
			}
			return a.purge(cmd.Context(), queues)
		},
	}
}

// purge runs one purge and prints the report. Only a failed connect is
// returned; per-queue failures are part of the report.
func (a *app) purge(ctx context.Context, queues []string) error {
	out := a.opts.Out

	repo, closeRepo, err := a.openRepository(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "cli").Msg("audit trail unavailable, purging without it")
	}
	defer closeRepo()

	report.Connecting(out)
	_, err = a.service(recorderFor(repo)).PurgeWithProgress(ctx, models.TriggerCLI, queues, service.Progress{
		Connected: func() { report.PurgeStarted(out) },
		Outcome:   func(o models.Outcome) { report.Outcome(out, o) },
	})
	if err != nil {
		return err
	}
	report.PurgeComplete(out)
	return nil
}

func (a *app) statusCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show message and consumer counts without modifying any queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				lister, err := a.opts.Lister(a.cfg)
				if err != nil {
					return err
				}
				statuses, err := lister.ListQueues()
				if err != nil {
					return err
				}
				report.Status(a.opts.Out, statuses)
				return nil
			}

			statuses, err := a.service(nil).Status(cmd.Context(), a.cfg.StatusQueues)
			if err != nil {
				return err
			}
			report.Status(a.opts.Out, statuses)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every queue of the virtual host via the management API")
	return cmd
}

func (a *app) requeueCommand() *cobra.Command {
	var (
		from  string
		to    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Move messages from a dead-letter queue back to its target queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			moved, err := a.service(nil).Requeue(cmd.Context(), from, to, limit)
			if err == nil || moved > 0 {
				report.Requeued(a.opts.Out, from, to, moved)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", defaultRequeueFrom, "queue to take messages from")
	cmd.Flags().StringVar(&to, "to", defaultRequeueTo, "queue to publish messages to")
	cmd.Flags().IntVar(&limit, "max", defaultRequeueMax, "maximum number of messages to move")
	return cmd
}

func (a *app) peekCommand() *cobra.Command {
	var (
		name  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "peek",
		Short: "Show messages at the head of a queue without removing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msgs, err := a.service(nil).Peek(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			report.Peeked(a.opts.Out, name, msgs)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "queue", defaultRequeueFrom, "queue to look at")
	cmd.Flags().IntVar(&limit, "max", defaultPeekMax, "maximum number of messages to show")
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent purge runs from the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.PostgresURI == "" {
				return errors.New("POSTGRES_URI is required for history")
			}
			repo, closeRepo, err := a.openRepository(cmd.Context())
			if err != nil {
				return fmt.Errorf("open audit trail: %w", err)
			}
			defer closeRepo()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			report.Runs(a.opts.Out, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistorySize, "number of runs to show")
	return cmd
}

func (a *app) scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Purge the configured queues on PURGE_SCHEDULE until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := a.openRepository(ctx)
			if err != nil {
				return fmt.Errorf("open audit trail: %w", err)
			}
			defer closeRepo()

			sched := cron.NewScheduler(a.service(recorderFor(repo)), a.cfg.PurgeSchedule, a.cfg.QueueNames)
			if err := sched.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			sched.Stop()
			log.Info().Str("component", "cli").Msg("purge schedule stopped")
			return nil
		},
	}
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP API on APP_HOST:APP_PORT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := a.openRepository(ctx)
			if err != nil {
				return fmt.Errorf("open audit trail: %w", err)
			}
			defer closeRepo()

			deps := api.Deps{
				Queues:       a.service(recorderFor(repo)),
				PurgeQueues:  a.cfg.QueueNames,
				StatusQueues: a.cfg.StatusQueues,
			}
			if repo != nil {
				deps.Runs = repo
			}
			return server.New(a.cfg, deps).Start(ctx)
		},
	}
}

// recorderFor avoids handing the service a typed nil repository.
func recorderFor(repo *repository.Repository) service.RunRecorder {
	if repo == nil {
		return nil
	}
	return repo
}
