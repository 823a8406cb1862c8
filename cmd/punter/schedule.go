package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newScheduleCmd(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the workflow on the configured cron schedule until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.schedule(cmd.Context(), runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "Also run once immediately")
	return cmd
}

func (a *app) schedule(ctx context.Context, runNow bool) error {
	b, err := a.newBot()
	if err != nil {
		return err
	}
	prober := a.newProber()
	wf := a.newWorkflow(b, prober)

	gatherers := prometheus.Gatherers{b.Metrics.Registry}
	if prober != nil {
		gatherers = append(gatherers, prober.Metrics.Registry)
	}

	g, gctx := errgroup.WithContext(ctx)

	job := func() {
		summary, err := wf.Run(gctx)
		if err != nil {
			a.logger.Error("scheduled run failed", slog.String("run_id", summary.RunID), slog.Any("error", err))
			return
		}
		a.logger.Info("scheduled run complete",
			slog.String("run_id", summary.RunID),
			slog.Int("runners", summary.Stats.Rows),
			slog.Bool("notified", summary.Notified),
		)
	}

	cronLogger := cronLog{logger: a.logger.With(slog.String("component", "cron"))}
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(cronLogger),
	)
	// One chain instance so the immediate run and the scheduled ones share
	// the still-running guard.
	wrapped := cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(job))
	id, err := c.AddJob(a.cfg.Schedule, wrapped)
	if err != nil {
		return fmt.Errorf("add schedule %q: %w", a.cfg.Schedule, err)
	}
	c.Start()
	a.logger.Info("scheduler started",
		slog.String("schedule", a.cfg.Schedule),
		slog.Time("next_run", c.Entry(id).Next),
	)
	if runNow {
		g.Go(func() error {
			wrapped.Run()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received, waiting for the running job to finish")
		<-c.Stop().Done()
		return nil
	})

	if addr := a.listenAddr(); addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("metrics server enabled", slog.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// cronLog adapts slog to cron.Logger.
type cronLog struct {
	logger *slog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
