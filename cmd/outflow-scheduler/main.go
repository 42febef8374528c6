package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/outflowhq/outflow/pkg/cmd"
	"github.com/outflowhq/outflow/pkg/log"
	"github.com/outflowhq/outflow/pkg/otelhelper"
	"github.com/outflowhq/outflow/pkg/recurrence"
	"github.com/outflowhq/outflow/pkg/scheduler"
)

func main() {
	command := &cli.Command{
		Name:                  "outflow-scheduler",
		Usage:                 "Start the Outflow schedule manager service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for fleet-safe firing claims (memory claimer if unset)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "tick-interval",
				Usage:   "Seconds between due-schedule scans",
				Value:   30,
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "outflow-scheduler")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					log.WithModule("outflow-scheduler").ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = fmt.Sprintf("scheduler-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("outflow-scheduler").With("scheduler_id", schedulerID)

			logger.InfoContext(ctx, "Initializing Outflow Scheduler")

			persistence, err := cmd.NewPersistence(ctx, command.String("database-url"), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "outflow-scheduler", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			claimer, err := newClaimer(command.String("redis-url"))
			if err != nil {
				return err
			}

			manager := scheduler.NewManager(
				persistence,
				recurrence.NewCalculator(nil),
				claimer,
				eventBus,
				logger,
				time.Duration(command.Int("tick-interval"))*time.Second,
			)

			NewDaemon(schedulerID, manager, logger).Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// newClaimer picks the firing claimer: redis when a URL is configured,
// otherwise the in-process claimer for single-instance runs.
func newClaimer(redisURL string) (scheduler.Claimer, error) {
	if redisURL == "" {
		return scheduler.NewMemoryClaimer(), nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return scheduler.NewRedisClaimer(redis.NewClient(options), 0), nil
}
