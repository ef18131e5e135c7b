package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/lockfile"
	"github.com/wardenhq/warden/internal/retention"
	"github.com/wardenhq/warden/internal/workflow"
)

var (
	serveInterval time.Duration
	serveConfig   string
	serveDryRun   bool
)

func init() {
	rootCmd.AddCommand(serveCleanupCmd)
	serveCleanupCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Pass interval (default: from config)")
	serveCleanupCmd.Flags().StringVar(&serveConfig, "config", "", "Path to retention YAML (defaults apply when absent)")
	serveCleanupCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Report what each pass would delete without deleting")
}

var serveCleanupCmd = &cobra.Command{
	Use:   "serve-cleanup",
	Short: "Run periodic cleanup until interrupted",
	Long: "Starts the cleanup scheduler. One pass runs every interval; at most\n" +
		"one pass is ever in flight. Stop with SIGINT or SIGTERM.",
	RunE: runServeCleanup,
}

func runServeCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := retention.LoadConfig(serveConfig)
	if err != nil {
		return err
	}
	interval := serveInterval
	if interval == 0 {
		interval = cfg.Interval
	}

	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return err
	}
	lock, err := lockfile.Acquire(filepath.Join(flagDataDir, "cleanup.pid"))
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := workflow.NewStore(filepath.Join(flagDataDir, "runs"))
	if err != nil {
		return err
	}
	log, err := events.Open(eventsPath())
	if err != nil {
		return err
	}
	defer log.Close()

	engine := retention.NewEngine(store, cfg)
	sched := retention.NewScheduler(engine, interval, retention.Options{DryRun: serveDryRun}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("cleanup scheduler running every %s (events: %s)\n", interval, log.Path())
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("cleanup scheduler stopped")
	return nil
}
