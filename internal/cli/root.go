package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"queue-purger/internal/config"
	"queue-purger/internal/db"
	"queue-purger/internal/logging"
	"queue-purger/internal/queue"
	"queue-purger/internal/queue/rabbitmq"
	"queue-purger/internal/repository"
	"queue-purger/internal/service"
)

// Options carries the process dependencies so commands can run against fakes.
type Options struct {
	Lookup   config.LookupFunc
	Out      io.Writer
	Err      io.Writer
	Provider func(cfg config.Config) queue.Provider
	Lister   func(cfg config.Config) (queue.Lister, error)
}

func defaultOptions() Options {
	return Options{
		Lookup: os.LookupEnv,
		Out:    os.Stdout,
		Err:    os.Stderr,
		Provider: func(cfg config.Config) queue.Provider {
			return rabbitmq.New(cfg)
		},
		Lister: func(cfg config.Config) (queue.Lister, error) {
			return rabbitmq.NewManagement(cfg)
		},
	}
}

type app struct {
	opts Options
	cfg  config.Config
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(defaultOptions()).ExecuteContext(ctx)
}

func NewRootCommand(opts Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "purger",
		Short: "Purge RabbitMQ queues",
		Long: `purger connects to RabbitMQ and empties the configured queues
(PURGE_QUEUES, default travel.bookings,travel.admin), reporting how many
messages were removed from each. Run without arguments it purges every
configured queue once and exits.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.purge(cmd.Context(), a.cfg.QueueNames)
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	root.AddCommand(
		a.purgeCommand(),
		a.statusCommand(),
		a.requeueCommand(),
		a.peekCommand(),
		a.historyCommand(),
		a.scheduleCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadFromEnv(a.opts.Lookup)
	if err != nil {
		return err
	}
	logging.Setup(a.opts.Err, cfg.LogLevel)
	a.cfg = cfg
	return nil
}

func (a *app) service(recorder service.RunRecorder) *service.QueueService {
	return service.NewQueueService(a.opts.Provider(a.cfg), recorder)
}

// openRepository connects the audit trail when POSTGRES_URI is set. It returns
// a nil repository when auditing is disabled.
func (a *app) openRepository(ctx context.Context) (*repository.Repository, func(), error) {
	if a.cfg.PostgresURI == "" {
		return nil, func() {}, nil
	}
	database, err := db.Connect(ctx, a.cfg.PostgresURI)
	if err != nil {
		return nil, func() {}, err
	}
	repo := repository.NewRepository(database.DB)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = database.Close()
		return nil, func() {}, err
	}
	return repo, func() { _ = database.Close() }, nil
}
