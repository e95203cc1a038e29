package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"marketdesk/internal/aggregator"
	"marketdesk/internal/config"
	"marketdesk/internal/hub"
	"marketdesk/internal/inbox"
	"marketdesk/internal/logger"
	"marketdesk/internal/marketplace"
	"marketdesk/internal/metrics"
	"marketdesk/internal/model"
	"marketdesk/internal/store"
	"marketdesk/internal/tui"
)

// app carries what every command needs once setup has run.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string

	cfg         *config.Config
	log         *slog.Logger
	logCloser   io.Closer
	metrics     *metrics.Registry
	stopMetrics context.CancelFunc
	client      *hub.Client
	sessions    *store.SQLiteStore
	auth        *hub.Auth
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketdesk",
		Short: "Support inbox for Ozon and Wildberries buyer chats",
		Long: `marketdesk reads and answers buyer chats from several marketplaces
through one hub. Without a subcommand it opens the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd == cmd.Root())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConsole(cmd.Context())
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	// Disable completion command
	root.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default is ~/.config/marketdesk/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides the config file)")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.chatsCmd(),
		a.historyCmd(),
		a.sendCmd(),
	)
	return root
}

// setup loads configuration and opens the hub client and session database.
// The console owns the terminal, so it logs to the configured file; other
// commands log to stderr.
func (a *app) setup(ctx context.Context, interactive bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logOpts := logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if interactive {
		logOpts.File = cfg.Log.File
	}
	l, closer, err := logger.New(logOpts)
	if err != nil {
		return err
	}
	a.log, a.logCloser = l, closer

	a.metrics = metrics.New()
	if addr := cfg.Metrics.Addr; addr != "" {
		mctx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := a.metrics.Serve(mctx, addr); err != nil {
				a.log.Error("metrics endpoint stopped", "addr", addr, "err", err)
			}
		}()
		a.log.Info("serving metrics", "addr", addr)
	}

	opts := cfg.HubOptions()
	opts.Metrics = a.metrics
	opts.Logger = a.log
	client, err := hub.New(opts)
	if err != nil {
		return err
	}
	a.client = client

	sessions, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open session database: %w", err)
	}
	a.sessions = sessions
	a.auth = hub.NewAuth(client, sessions)
	return nil
}

func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// credentials restores the saved session or explains how to get one.
func (a *app) credentials(ctx context.Context) (model.Credentials, error) {
	creds, err := a.auth.Restore(ctx, false)
	if errors.Is(err, model.ErrMissingToken) || model.IsAuth(err) {
		return model.Credentials{}, fmt.Errorf("not logged in, run `marketdesk login`: %w", err)
	}
	return creds, err
}

func (a *app) newInbox(creds model.Credentials) *inbox.Store {
	mpOpts := marketplace.Options{Logger: a.log}
	agg := aggregator.New(a.log,
		marketplace.NewOzon(a.client, mpOpts),
		marketplace.NewWildberries(a.client, mpOpts),
	).WithMetrics(a.metrics)
	return inbox.New(agg, creds, inbox.Options{
		PageSize:     a.cfg.Inbox.PageSize,
		HistoryLimit: a.cfg.Inbox.HistoryLimit,
		MaxMessages:  a.cfg.Inbox.MaxMessages,
		Logger:       a.log,
	})
}

func (a *app) runConsole(ctx context.Context) error {
	creds, err := a.credentials(ctx)
	if err != nil {
		return err
	}
	a.log.Info("console started", "hub", a.client.BaseURL(), "email", creds.Email)

	m := tui.NewAppModel(a.newInbox(creds))
	defer m.Close()
	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
