// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/varjak-dev/potokend/internal/browser"
	"github.com/varjak-dev/potokend/internal/config"
	"github.com/varjak-dev/potokend/internal/observability"
	"github.com/varjak-dev/potokend/internal/observer"
	"github.com/varjak-dev/potokend/internal/server"
	"github.com/varjak-dev/potokend/internal/token"
	"github.com/varjak-dev/potokend/internal/updater"
)

// newServeCmd creates and configures the `serve` command, the daemon mode.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the refresh loop and serves the credential over the local HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override values from the config file and
			// environment variables.
			if err := viper.BindPFlag("updater.interval", cmd.Flags().Lookup("interval")); err != nil {
				return err
			}
			if err := viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flag overrides are bound.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}

			d, err := buildDaemon(cfg, logger)
			if err != nil {
				return err
			}
			defer d.close(logger)

			logger.Info("Starting refresh daemon",
				zap.Duration("interval", cfg.Updater.Interval),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.Bool("api_enabled", cfg.Server.Enabled),
				zap.Bool("redis_mirror", cfg.Redis.Enabled))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return d.updater.Run(gctx)
			})
			if cfg.Server.Enabled {
				api := server.New(logger, d.updater)
				g.Go(func() error {
					return api.Run(gctx, cfg.Server.Addr)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Daemon stopped")
			return ctx.Err()
		},
	}

	serveCmd.Flags().Duration("interval", 0, "refresh interval (e.g. 30m, 1h)")
	serveCmd.Flags().String("addr", "", "HTTP API listen address")
	serveCmd.Flags().Bool("headless", true, "run the browser headless")

	return serveCmd
}

// daemon bundles the long-lived components a command assembles.
type daemon struct {
	updater *updater.Updater
	mirror  *token.RedisMirror
}

// buildDaemon wires the store, observer, browser launcher and update
// controller from the resolved configuration.
func buildDaemon(cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	d := &daemon{}

	var sinks []token.Sink
	if cfg.Redis.Enabled {
		d.mirror = token.NewRedisMirror(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Key, cfg.Redis.TTL)
		sinks = append(sinks, d.mirror)
	}

	store := token.NewStore(logger, sinks...)
	obs := observer.New(logger, token.NewExtractor(logger), store)

	launcher := &chromeLauncher{
		cfg: browser.Config{
			Headless:       cfg.Browser.Headless,
			ExecutablePath: cfg.Browser.ExecutablePath,
			ProfileDir:     cfg.Browser.ProfileDir,
			Args:           cfg.Browser.Args,
		},
		logger: logger,
	}

	updaterCfg := updater.DefaultConfig()
	updaterCfg.Interval = cfg.Updater.Interval

	d.updater = updater.New(updaterCfg, logger, launcher, obs, store)
	return d, nil
}

func (d *daemon) close(logger *zap.Logger) {
	if d.mirror != nil {
		if err := d.mirror.Close(); err != nil {
			logger.Warn("failed to close redis mirror", zap.Error(err))
		}
	}
}

// chromeLauncher adapts the browser package to the updater's Launcher
// interface, starting one fresh Chrome process per attempt.
type chromeLauncher struct {
	cfg    browser.Config
	logger *zap.Logger
}

func (l *chromeLauncher) Launch(ctx context.Context) (updater.Tab, error) {
	return browser.Launch(ctx, l.cfg, l.logger)
}
