package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/aidigest/internal/app"
	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/notifier"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	debug   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aidigest",
		Short: "Curate and push a daily AI digest",
		Long: `aidigest collects AI news and arXiv papers, picks a non-repeating
topic of the day, asks Gemini for summaries and pushes the digest.

Examples:
  # One digest now
  aidigest run

  # Daemon on the configured cron schedule
  aidigest serve

  # Show topic rotation progress
  aidigest topic stats`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
			logger.Init(debug)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $XDG_CONFIG_HOME/aidigest/config.yaml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newRunCmd(), newServeCmd(), newTopicCmd(), newNewsCmd(), newPapersCmd(), newVersionCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !debug {
		logger.Init(true)
	}
	return cfg, nil
}

// openApp builds the pipeline. withNotifier also validates and attaches the
// configured push channel.
func openApp(ctx context.Context, withNotifier bool) (*app.App, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var opts []app.Option
	if withNotifier {
		if err := cfg.ValidateNotifier(); err != nil {
			return nil, nil, err
		}
		n, err := notifier.New(app.NotifierConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, app.WithNotifier(n))
	}

	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build and send one digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.Run(ctx)
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the digest on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, cfg, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Monitoring.Enabled {
				srv := newMonitoringServer(cfg.Monitoring.Addr, a)
				go func() {
					logger.Info("starting monitoring server", "addr", cfg.Monitoring.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("monitoring server error", "error", err)
					}
				}()
				defer srv.Shutdown(context.Background())
			}

			run := func() {
				if _, err := a.Run(ctx); err != nil {
					logger.Error("scheduled run failed", "error", err)
				}
			}

			if cfg.RunOnStart {
				logger.Info("running initial digest")
				run()
			}

			c, err := newScheduler(cfg.Schedule, run)
			if err != nil {
				return err
			}
			c.Start()
			logger.Info("digest scheduled", "schedule", cfg.Schedule)

			<-ctx.Done()
			logger.Info("shutting down")
			<-c.Stop().Done()
			return nil
		},
	}
}

// newScheduler runs job on schedule, skipping a tick while the previous
// run is still going.
func newScheduler(schedule string, job func()) (*cron.Cron, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("failed to set up cron schedule %q: %w", schedule, err)
	}
	return c, nil
}

func newTopicCmd() *cobra.Command {
	topic := &cobra.Command{
		Use:   "topic",
		Short: "Pick and record the next topic of the day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.PickTopic()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", entry.Category, entry.Topic)
			return nil
		},
	}

	topic.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show topic rotation progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.TopicStats())
		},
	})
	return topic
}

func newNewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Print the curated news items as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.CollectNews(cmd.Context()))
		},
	}
}

func newPapersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "papers",
		Short: "Print the ranked papers as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.CollectPapers(cmd.Context()))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "aidigest", version)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
