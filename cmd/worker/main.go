// The worker binary runs the recurring-task consumer, the reminder
// scheduler and the durable timer loop against PostgreSQL and the Redis
// Streams event log.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/rueidis"
	"golang.org/x/sync/errgroup"

	"github.com/taskpulse/taskpulse/internal/application/consumer"
	"github.com/taskpulse/taskpulse/internal/application/deadletter"
	"github.com/taskpulse/taskpulse/internal/application/reminder"
	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/infrastructure/persistence/postgres"
	"github.com/taskpulse/taskpulse/internal/notify"
	"github.com/taskpulse/taskpulse/internal/observability"
	"github.com/taskpulse/taskpulse/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Root context for all normal operations; cancels on SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	otelCfg := observability.Config{
		Enabled:   cfg.Observability.OTelEnabled,
		Collector: cfg.Observability.OTelCollector,
	}

	lp, logger, err := observability.InitLogger(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer shutdownProvider(lp.Shutdown, "logger provider")
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer shutdownProvider(tp.Shutdown, "tracer provider")

	mp, err := observability.InitMeterProvider(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer shutdownProvider(mp.Shutdown, "meter provider")

	slog.InfoContext(ctx, "starting taskpulse worker")

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Redis.Address},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	var logOpts []eventlog.RedisOption
	if cfg.Redis.Partitions > 0 {
		logOpts = append(logOpts, eventlog.WithPartitions(cfg.Redis.Partitions))
	}
	log := eventlog.NewRedis(redisClient, logOpts...)

	fired := reminder.NewFiredHandler(store, log, notify.LogDispatcher{})

	var timerOpts []scheduler.DurableOption
	if cfg.Scheduler.Tick > 0 {
		timerOpts = append(timerOpts, scheduler.WithTick(cfg.Scheduler.Tick))
	}
	timers, err := scheduler.OpenDurable(cfg.Scheduler.TimerDBPath, fired.OnFire, timerOpts...)
	if err != nil {
		return fmt.Errorf("failed to open timer store: %w", err)
	}
	defer timers.Close()

	reminders := reminder.NewScheduler(store, timers, store)

	var consumerOpts []consumer.Option
	if cfg.Consumer.MaxRetries > 0 {
		consumerOpts = append(consumerOpts, consumer.WithRetryConfig(consumer.RetryConfig{
			MaxRetries: cfg.Consumer.MaxRetries,
			BaseDelay:  cfg.Consumer.BaseDelay,
			MaxDelay:   cfg.Consumer.MaxDelay,
		}))
	}
	recurring := consumer.New(store, store, log, consumerOpts...)

	backlog := deadletter.NewMonitor(store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recurring.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx, log) })
	g.Go(func() error { return timers.Run(gctx) })
	g.Go(func() error { return backlog.Run(gctx) })

	slog.InfoContext(ctx, "worker running",
		"redis", cfg.Redis.Address,
		"timer_db", cfg.Scheduler.TimerDBPath)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	slog.Info("worker shut down gracefully")
	return nil
}

// shutdownProvider flushes an observability provider with a timeout so an
// unreachable collector cannot hang process exit.
func shutdownProvider(shutdown func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shutdown "+name, "error", err)
	}
}
