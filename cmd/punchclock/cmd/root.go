package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kbaldwin/punchclock/attendance"
	"github.com/kbaldwin/punchclock/internal/config"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/session"
	bboltstorage "github.com/kbaldwin/punchclock/storage/bbolt"
	"github.com/kbaldwin/punchclock/timesheet"
)

var (
	cfgFile string
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "punchclock",
	Short: "Punchclock tracks attendance and work timers on an Odoo server",
	Long: `Punchclock is a command-line client for Odoo's attendance and timesheet
timer features: check in and out, start and stop work timers, and keep a
locally ticking elapsed-time display synchronized with server time.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// app wires the storage backend, session manager and transport options
// once per invocation; every command goes through it.
type app struct {
	cfg      *config.Config
	store    *bboltstorage.Store
	sessions *session.Manager
	logger   *slog.Logger
	registry *prometheus.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "punchclock.db"), nil)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	clientOpts := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithMetrics(rpc.NewMetrics(registry)),
	}
	if cfg.RequestsPerSecond > 0 {
		clientOpts = append(clientOpts,
			rpc.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)))
	}

	return &app{
		cfg:   cfg,
		store: store,
		sessions: session.NewManager(store,
			session.WithLogger(logger),
			session.WithClientOptions(clientOpts...)),
		logger:   logger,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

func (a *app) attendanceService() (*attendance.Service, error) {
	client, err := a.sessions.Client()
	if err != nil {
		return nil, err
	}
	employeeID := 0
	if user, ok := a.sessions.User(); ok {
		employeeID = user.EmployeeID
	}
	return attendance.NewService(client, employeeID, a.store, a.logger), nil
}

func (a *app) timesheetService() (*timesheet.Service, error) {
	client, err := a.sessions.Client()
	if err != nil {
		return nil, err
	}
	return timesheet.NewService(client, a.store, a.logger), nil
}
