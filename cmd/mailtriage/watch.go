package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuqing-ac/mailtriage/internal/metrics"
	"github.com/yuqing-ac/mailtriage/internal/pipeline"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process unread mail on an interval",
	Long: `Run the pipeline continuously: one tick immediately, then one per
interval until SIGINT/SIGTERM. When watch.listen is configured the process
also serves /healthz, /metrics and /stats.

Examples:
  mailtriage watch
  mailtriage watch --interval 5m`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "tick interval (overrides config)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	interval := app.cfg.Watch.Interval.Duration()
	if watchInterval > 0 {
		interval = watchInterval
	}
	watcher, err := pipeline.NewWatcher(app.orch, interval, app.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	watcher.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		watcher.Stop()
		return nil
	})

	if addr := app.cfg.Watch.Listen; addr != "" {
		e := newHTTPServer(app)
		g.Go(func() error {
			app.logger.Info("http server listening", zap.String("addr", addr))
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func newHTTPServer(app *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/stats", func(c echo.Context) error {
		stats, err := app.store.Stats(c.Request().Context(), 0)
		if err != nil {
			app.logger.Error("stats query failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "stats unavailable")
		}
		return c.JSON(http.StatusOK, stats)
	})
	return e
}
