package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/outflowhq/outflow/pkg/cmd"
	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/gateway"
	"github.com/outflowhq/outflow/pkg/log"
	"github.com/outflowhq/outflow/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "outflow-dispatcher",
		Usage:                 "Start the Outflow dispatcher service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("DISPATCHER_ID"),
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
				Name:     "gateway-url",
				Usage:    "Base URL of the messaging gateway",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
			},
			&cli.IntFlag{
				Name:    "max-workers",
				Usage:   "Default worker pool size per execution",
				Value:   5,
				Sources: cli.EnvVars("MAX_WORKERS"),
			},
			&cli.IntFlag{
				Name:    "send-timeout",
				Usage:   "Seconds before an in-flight send is abandoned",
				Value:   30,
				Sources: cli.EnvVars("SEND_TIMEOUT"),
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

			tracerProvider, err := otelhelper.InitTracer(ctx, "outflow-dispatcher")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					log.WithModule("outflow-dispatcher").ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("outflow-dispatcher").With("dispatcher_id", dispatcherID)

			logger.InfoContext(ctx, "Initializing Outflow Dispatcher")

			persistence, err := cmd.NewPersistence(ctx, command.String("database-url"), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "outflow-dispatcher", logger)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)
			gatewayClient := gateway.NewClient(command.String("gateway-url"), logger)

			dispatcher := dispatch.NewDispatcher(
				persistence,
				registry,
				gatewayClient,
				gatewayClient,
				eventBus,
				logger,
				dispatch.Config{
					DefaultMaxWorkers: command.Int("max-workers"),
					SendTimeout:       time.Duration(command.Int("send-timeout")) * time.Second,
				},
			)

			NewWorker(dispatcherID, eventBus, dispatcher, logger).Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
