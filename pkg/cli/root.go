// Package cli is the onesheet command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/auth"
	"github.com/harrisonrobin/onesheet/pkg/config"
	"github.com/harrisonrobin/onesheet/pkg/dispatch"
	"github.com/harrisonrobin/onesheet/pkg/graphql"
	"github.com/harrisonrobin/onesheet/pkg/journal"
	"github.com/harrisonrobin/onesheet/pkg/retry"
	"github.com/harrisonrobin/onesheet/pkg/session"
	"github.com/harrisonrobin/onesheet/pkg/signal"
	"github.com/harrisonrobin/onesheet/pkg/task"
	"github.com/harrisonrobin/onesheet/pkg/timesheet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errReported marks an error that was already shown to the user.
var errReported = errors.New("error already reported")

// App holds everything one invocation needs. The zero value runs against
// the real config directory and standard streams.
type App struct {
	// Dir is the config directory; empty means ~/.config/onesheet.
	Dir string
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Logger, when set, is used instead of building one from --verbose.
	Logger *zap.Logger
	Now    func() time.Time

	output  string
	verbose bool
	args    []string

	in         *bufio.Reader
	cfg        *config.Config
	bus        *signal.Bus
	store      *session.Store
	nav        *navigator
	dispatcher *dispatch.Dispatcher
	client     *graphql.Client
	auth       *auth.Service
	tasks      *task.Service
	sheet      *timesheet.Service
	journal    *journal.Journal
	ready      bool
}

// Execute runs the command line in os.Args and returns the exit code.
func Execute() int {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return (&App{}).Run(ctx, os.Args[1:])
}

// Run executes args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.defaults()
	a.args = args
	defer a.close()
	root := a.newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	a.report(err)
	return 1
}

func (a *App) defaults() {
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.in == nil {
		a.in = bufio.NewReader(a.In)
	}
}

// report shows an error from a command. Classified errors go through the
// dispatcher; anything else came from the command line itself.
func (a *App) report(err error) {
	if errors.Is(err, errReported) {
		return
	}
	if _, ok := apperr.As(err); ok && a.dispatcher != nil {
		a.dispatcher.Handle(err)
		return
	}
	fmt.Fprintf(a.Err, "error: %v\n", err)
}

func (a *App) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "onesheet",
		Short: "ONES tasks and timesheets from the command line",
		Long: `onesheet lists the ONES tasks assigned to you, changes their status and
logs working hours against them, one entry at a time or spread over a
date range with autofill.

Submitted hours can be mirrored to a Google Calendar with --mirror.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.tasksCmd(),
		a.hoursCmd(),
		a.submitCmd(),
		a.autofillCmd(),
		a.journalCmd(),
		a.calendarCmd(),
	)
	return root
}

// setup wires the services once per invocation.
func (a *App) setup() error {
	if a.ready {
		return nil
	}
	switch a.output {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q, expected table, json or yaml", a.output)
	}

	if a.Logger == nil {
		logger, err := newLogger(a.verbose)
		if err != nil {
			return err
		}
		a.Logger = logger
	}

	if a.Dir == "" {
		dir, err := config.Dir()
		if err != nil {
			return fmt.Errorf("could not find path to configuration directory: %w", err)
		}
		a.Dir = dir
	}
	cfg, err := config.LoadFrom(filepath.Join(a.Dir, config.FileName))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	a.bus = signal.NewBus()
	a.store = session.NewStore(filepath.Join(a.Dir, session.FileName), a.bus, a.Logger.Named("session"))
	if _, ok := a.store.Restore(); ok {
		a.Logger.Debug("restored session", zap.String("user_id", a.store.UserID()))
	}

	a.nav = &navigator{app: a}
	a.dispatcher = dispatch.New(
		dispatch.WriterNotifier{W: a.Err},
		a.nav,
		dispatch.NewFileLocationStore(a.Dir),
		a.Logger.Named("dispatch"),
	)

	a.auth = auth.NewService(cfg.LoginEndpoint(), a.store, a.bus,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout.Duration}),
		auth.WithRedirector(a.dispatcher),
		auth.WithLogger(a.Logger.Named("auth")),
	)

	a.client = graphql.New(cfg.GraphQLEndpoint(), a.store,
		graphql.WithTimeout(cfg.RequestTimeout.Duration),
		graphql.WithRetry(retry.New(cfg.Retry.Policy(), nil)),
		graphql.WithSignals(a.bus),
		graphql.WithLogger(a.Logger.Named("graphql")),
	)
	a.tasks = task.NewService(a.client, a.store, a.Logger.Named("task"))
	a.sheet = timesheet.NewService(a.client, a.store,
		timesheet.WithRateLimit(cfg.SubmitRate),
		timesheet.WithLogger(a.Logger.Named("timesheet")),
	)

	a.ready = true
	return nil
}

// newLogger builds a production logger on stderr. Only warnings show
// unless verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func (a *App) close() {
	if a.journal != nil {
		if err := a.journal.Save(); err != nil {
			a.Logger.Warn("could not save journal", zap.Error(err))
		}
	}
	if a.auth != nil {
		a.auth.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// requireAPI fails when the settings needed to reach ONES are missing.
func (a *App) requireAPI() error {
	if err := a.cfg.Validate(); err != nil {
		return apperr.NewBusiness(err.Error())
	}
	return nil
}

// requireLogin fails when nobody is logged in.
func (a *App) requireLogin() error {
	if err := a.requireAPI(); err != nil {
		return err
	}
	if !a.store.IsAuthenticated() {
		return apperr.NewBusiness("not logged in, run `onesheet login` first")
	}
	return nil
}

func (a *App) openJournal() (*journal.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := journal.Open(filepath.Join(a.Dir, journal.FileName))
	if err != nil {
		return nil, fmt.Errorf("could not open journal: %w", err)
	}
	a.journal = j
	return j, nil
}
