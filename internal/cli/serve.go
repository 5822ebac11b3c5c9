package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opencfg/internal/config"
	"opencfg/internal/diagnostics"
	"opencfg/internal/logging"
	"opencfg/internal/server"
)

const shutdownGrace = 10 * time.Second

func newServeCommand() *cobra.Command {
	var host string
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configuration HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := engineOptions(cmd)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			metrics := server.NewMetrics(registry)
			logger := logging.New(cmd.ErrOrStderr(), logging.LevelInfo, logging.FormatText)
			opts = append(opts, config.WithLogger(logger), config.WithInstrumentation(metrics))

			engine, err := config.NewEngine(opts...)
			if err != nil {
				return err
			}
			applyLogSettings(logger, engine.Current())

			aggregator := diagnostics.NewAggregator(engine, diagnostics.WithLogger(logger))

			serverCfg := server.ConfigFromEffective(engine.Current())
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}
			srv := server.New(engine, aggregator, serverCfg, logger, registry)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			group, ctx := errgroup.WithContext(ctx)
			group.Go(srv.Start)
			group.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if watch {
				watcher, err := config.NewWatcher(engine, config.WithWatcherLogger(logger))
				if err != nil {
					return err
				}
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			// Re-apply logger settings on hot changes so logging.level
			// and logging.format take effect live.
			events, cancelSub := engine.Subscribe()
			defer cancelSub()
			group.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case event, ok := <-events:
						if !ok {
							return nil
						}
						if event.Kind == config.EventHotChange {
							applyLogSettings(logger, engine.Current())
						}
					}
				}
			})

			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen address")
	cmd.Flags().IntVar(&port, "port", 3000, "listen port")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload when the user config file changes")
	return cmd
}

func applyLogSettings(logger *logging.StdLogger, cfg *config.EffectiveConfig) {
	logger.SetLevel(logging.ParseLevel(cfg.String("logging.level")))
	logger.SetFormat(logging.Format(cfg.String("logging.format")))
}
