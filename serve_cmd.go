package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/telcprep/sprachcache/internal/logging"
	"github.com/telcprep/sprachcache/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cache over HTTP",
	Long:  paragraph("\nRun the HTTP API used by the web app, with periodic eviction of stale entries."),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		srv := server.New(server.Config{
			Addr:        cfg.Server.Addr,
			CORSOrigins: cfg.Server.CORSOrigins,
			ReadTimeout: cfg.Server.ReadTimeout,
		}, server.Deps{
			Store:       a.store,
			Speech:      a.speech,
			Content:     a.content,
			Maintenance: a.maintenance,
			Logger:      logging.New("http"),
		})

		if viper.ConfigFileUsed() != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				level := viper.GetString("log_level")
				if err := logging.SetLevel(level); err != nil {
					log.Warn("Ignoring log level from changed config", "file", e.Name, "error", err)
					return
				}
				log.Info("Reloaded log level", "file", e.Name, "level", level)
			})
			viper.WatchConfig()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			a.maintenance.Start(gctx)
			<-gctx.Done()
			a.maintenance.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
		return g.Wait()
	},
}
