// Package cmdutils builds the cobra subcommands and runs them with the
// ambient stack (logger, telemetry, status server) the subcommand asks for.
package cmdutils

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/addon-auth/internal/config"
)

const (
	healthStatusTimeout = 5 * time.Second
)

// ConfigPaths are searched in order for the config file.
var ConfigPaths = []string{
	"/etc/addon-auth",
	"$HOME/.addon-auth",
	".",
}

// BusinessFunc is the work of one subcommand.
type BusinessFunc func(context.Context, *config.Config) error

// WrapperFunc runs a BusinessFunc, see RunAsService and RunAsJob.
type WrapperFunc func(context.Context, BusinessFunc, *config.Config) error

func CobraCommand(use, short, long, buildInfo string, wrapperFunc WrapperFunc, businessFunc BusinessFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := wrapperFunc(cmd.Context(), businessFunc, cfg); err != nil {
				return fmt.Errorf("running %s: %w", use, err)
			}

			return nil
		},
	}
}

// RunAsService runs fn with telemetry and a status server.
func RunAsService(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, runOptions{telemetry: true, statusServer: true}, fn, cfg)
}

// RunAsJob runs fn with logging only.
func RunAsJob(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, runOptions{}, fn, cfg)
}

type runOptions struct {
	telemetry    bool
	statusServer bool
}

func run(ctx context.Context, opts runOptions, fn BusinessFunc, cfg *config.Config) error {
	if err := logger.InitAsDefault(cfg.Logger, cfg.Application); err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}
	slogctx.Debug(ctx, "Starting the application", slog.String("name", cfg.Application.Name))

	if opts.telemetry {
		if err := otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger); err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the telemetry")
		}
	}

	if opts.statusServer {
		go func() {
			if err := startStatusServer(ctx, cfg); err != nil {
				slogctx.Error(ctx, "Failure on the status server", "error", err)
				_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
			}
		}()
	}

	if err := fn(ctx, cfg); err != nil {
		return oops.In("main").Wrapf(err, "Failed to start the main business application")
	}

	return nil
}

func loadConfig(buildInfo string) (*config.Config, error) {
	defaultValues := map[string]any{}
	cfg := &config.Config{}

	if err := commoncfg.LoadConfig(cfg, defaultValues, ConfigPaths...); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if err := commoncfg.UpdateConfigVersion(&cfg.BaseConfig, buildInfo); err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

// startStatusServer serves liveness and a readiness that follows the
// credential database.
func startStatusServer(ctx context.Context, cfg *config.Config) error {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)

	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(
				health.WithDisabledAutostart(),
				health.WithTimeout(healthStatusTimeout),
				health.WithDatabaseChecker("pgx", connStr),
				health.WithStatusListener(statusListener),
			),
		),
	)

	if err := status.Start(ctx, &cfg.BaseConfig, liveness, readiness); err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	return nil
}

func statusListener(ctx context.Context, state health.State) {
	failing := make([]string, 0, len(state.CheckState))
	for name, check := range state.CheckState {
		if check.Result != nil {
			failing = append(failing, name)
		}
	}

	slogctx.Info(ctx, "readiness status changed", "status", state.Status, "failing_checks", failing)
}
