package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-email-rename/internal/batch"
	"github.com/withObsrvr/obsrvr-email-rename/internal/config"
	"github.com/withObsrvr/obsrvr-email-rename/internal/identity"
	"github.com/withObsrvr/obsrvr-email-rename/internal/logging"
	"github.com/withObsrvr/obsrvr-email-rename/internal/metrics"
	"github.com/withObsrvr/obsrvr-email-rename/internal/report"
	"github.com/withObsrvr/obsrvr-email-rename/internal/source"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

var (
	configPath string
	envFile    string
	logFormat  string
	logLevel   string

	// exitCode is set by a run that completed but had failed records.
	exitCode int

	rootCmd = &cobra.Command{
		Use:   "email-rename",
		Short: "Rename Firebase user emails from a CSV in object storage",
		Long: `email-rename reads a CSV with old_email,new_email columns from a bucket
and changes each user's email in Firebase Authentication, one record at a
time. The process exits non-zero if any record fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(cmd.Context())
			exitCode = code
			return err
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "email-rename %s (%s)\n", Version, GitSHA)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// run wires the collaborators and executes one batch. A returned error is
// run-fatal; otherwise the exit code reflects the record outcomes.
func run(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", envFile, err)
		}
	}

	cfg, err := config.Load(getenv)
	if err != nil {
		return 1, fmt.Errorf("config: %w", err)
	}

	logger := logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.RunLogger(logger, runID, cfg.Source.Bucket, cfg.Source.Key, cfg.Identity.Mode)
	slog.SetDefault(log)
	log.Info("email rename starting", "version", Version, "git_sha", GitSHA, "backend", cfg.Source.Backend)

	m := metrics.New("")
	defer pushMetrics(m, cfg, log)

	exec, err := identity.New(ctx, cfg.Identity, log)
	if err != nil {
		m.IncRunFatal("identity")
		log.Error("identity provider init failed", "error", err)
		return 1, fmt.Errorf("identity: %w", err)
	}

	open, err := source.NewOpener(source.Config{
		Backend:    cfg.Source.Backend,
		S3Endpoint: cfg.Source.S3Endpoint,
		S3Region:   cfg.Source.S3Region,
	})
	if err != nil {
		m.IncRunFatal("source")
		return 1, fmt.Errorf("source: %w", err)
	}
	fetcher, err := source.NewBlobFetcher(open)
	if err != nil {
		m.IncRunFatal("source")
		return 1, fmt.Errorf("source: %w", err)
	}
	defer fetcher.Close()

	opts := []batch.Option{batch.WithMetrics(m)}
	if cfg.Report.Key != "" {
		opts = append(opts, batch.WithPublisher(report.NewBlobPublisher(open, cfg.Source.Bucket, cfg.Report.Key)))
	}

	runner := batch.New(batch.Config{
		Mode:    cfg.Identity.Mode,
		Backend: cfg.Source.Backend,
		Version: Version,
		GitSHA:  GitSHA,
	}, fetcher, exec, opts...)

	res, err := runner.Run(ctx, source.Location{Bucket: cfg.Source.Bucket, Key: cfg.Source.Key})
	code := batch.ExitCode(res, err)
	if err != nil {
		return code, err
	}

	log.Info("email rename finished", "exit_code", code)
	return code, nil
}

// getenv lets --config take precedence over CONFIG_FILE and the log flags
// over their environment variables.
func getenv(key string) string {
	switch {
	case key == "CONFIG_FILE" && configPath != "":
		return configPath
	case key == "LOG_FORMAT" && logFormat != "":
		return logFormat
	case key == "LOG_LEVEL" && logLevel != "":
		return logLevel
	}
	return os.Getenv(key)
}

func pushMetrics(m *metrics.Metrics, cfg config.Config, log *slog.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Push(ctx, metrics.Config{
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.Job,
		Mode:           cfg.Identity.Mode,
	})
	if err != nil {
		log.Warn("failed to push metrics", "error", err)
	}
}
