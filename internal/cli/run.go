package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quorum-sim/generals/internal/daemon"
	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/health"
	"github.com/quorum-sim/generals/internal/infra/sqlite"
	"github.com/quorum-sim/generals/internal/launcher"
	"github.com/quorum-sim/generals/internal/rpc"
)

func init() {
	runCmd.Flags().StringVar(&runHost, "host", "", "Host the generals listen on (overrides config)")
	runCmd.Flags().IntVar(&runBasePort, "base-port", 0, "Base port; general N listens on base+N (overrides config)")
	rootCmd.AddCommand(runCmd)
}

var (
	runHost     string
	runBasePort int
)

var runCmd = &cobra.Command{
	Use:   "run N",
	Short: "Start N generals and open the command shell",
	Long: `Start N generals as local processes, general 1 being the primary,
and read commands until exit or Ctrl+C. Every general is terminated on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	n, ok := parseNumber(args[0])
	if !ok || n < 1 {
		return fmt.Errorf("usage: generals run N\n\tN\tnumber of processes (N > 0)")
	}

	cfg, err := loadConfig(runHost, runBasePort)
	if err != nil {
		return err
	}

	log, closeLog, err := daemon.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	log = log.With().Str("proc", "launcher").Logger()

	// Peers read the same file with the same overrides.
	var extra []string
	if configPath != "" {
		extra = append(extra, "--config", configPath)
	}
	spawner, err := launcher.NewExecSpawner(cfg.Cluster.Host, cfg.Cluster.BasePort, extra...)
	if err != nil {
		return err
	}

	client := rpc.NewClient(cfg.CommandTimeout())
	var spinner *pterm.SpinnerPrinter
	l := launcher.New(launcher.Config{
		Book:         cfg.Book(),
		Spawner:      spawner,
		Client:       client,
		StartTimeout: cfg.StartTimeout(),
		Logger:       log,
		Progress: func(msg string) {
			if spinner != nil {
				spinner.UpdateText(msg)
			}
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinner, _ = pterm.DefaultSpinner.Start("Starting " + strconv.Itoa(n) + " generals...")
	if err := l.Start(ctx, n); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("%d generals started - primary general with id %d", n, l.Primary()))
	spinner = nil

	sh := NewShell(ShellConfig{
		Quorum:  l,
		Session: uuid.NewString(),
		Out:     os.Stdout,
		Timeout: cfg.CommandTimeout(),
		Logger:  log,
	})
	if cfg.Journal.Enabled {
		journal, err := openJournal(cfg.Journal.Dir, sh.session, n)
		if err != nil {
			log.Warn().Err(err).Msg("command journal disabled")
			pterm.Warning.Printfln("Command journal disabled: %v", err)
		} else {
			defer func() {
				if err := journal.EndSession(sh.session, time.Now()); err != nil {
					log.Warn().Err(err).Msg("end session")
				}
				journal.Close()
			}()
			sh.journal = journal
		}
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go newWatchdog(cfg, l, client, sh, log).Run(watchCtx)

	fmt.Print(Usage(""))
	replErr := runREPL(ctx, sh)
	stopWatch()

	fmt.Println("Exiting...")
	l.Shutdown()
	log.Info().Msg("all generals terminated")
	return replErr
}

// openJournal opens the journal and records the start of this session.
func openJournal(dir, session string, generals int) (*sqlite.DB, error) {
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, err
	}
	err = db.StartSession(domain.Session{ID: session, StartedAt: time.Now(), Generals: generals})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return db, nil
}

// newWatchdog probes every running general and the journal, and tells
// the user when one stops answering.
func newWatchdog(cfg daemon.Config, l *launcher.Launcher, client *rpc.Client, sh *Shell, log zerolog.Logger) *health.Checker {
	book := cfg.Book()
	return health.NewChecker(health.Config{
		Interval: cfg.WatchInterval(),
		Checks: func() []health.Check {
			var checks []health.Check
			for _, id := range l.IDs() {
				addr := book.Address(id)
				checks = append(checks, health.Check{
					Name:    "G" + strconv.Itoa(id),
					CheckFn: func(ctx context.Context) error { return client.Health(ctx, addr) },
				})
			}
			if db, ok := sh.journal.(*sqlite.DB); ok {
				checks = append(checks, health.Check{
					Name:    "journal",
					CheckFn: func(context.Context) error { return db.Ping() },
				})
			}
			return checks
		},
		OnChange: func(s health.Status) {
			// A probe racing g-kill sees the general it just stopped.
			if id, err := strconv.Atoi(strings.TrimPrefix(s.Name, "G")); err == nil && !slices.Contains(l.IDs(), id) {
				return
			}
			if s.Healthy {
				log.Info().Str("check", s.Name).Msg("health check recovered")
				sh.Notify(s.Name + " is answering again")
				return
			}
			log.Warn().Str("check", s.Name).Str("error", s.Error).Msg("health check failed")
			sh.Notify(s.Name + " stopped answering: " + s.Error)
		},
	})
}

var _ Quorum = (*launcher.Launcher)(nil)
