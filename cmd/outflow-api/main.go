package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/outflowhq/outflow/pkg/cmd"
	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/gateway"
	"github.com/outflowhq/outflow/pkg/log"
	"github.com/outflowhq/outflow/pkg/otelhelper"
	"github.com/outflowhq/outflow/pkg/recurrence"
	"github.com/outflowhq/outflow/pkg/scheduler"
)

const defaultPort = 8081

func main() {
	command := &cli.Command{
		Name:                  "outflow-api",
		Usage:                 "Manage flows, automations, and schedules over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Usage:    "Base URL of the messaging gateway",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
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
			logger := log.WithModule("outflow-api")

			logger.InfoContext(ctx, "Initializing Outflow API")

			tracerProvider, err := otelhelper.InitTracer(ctx, "outflow-api")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, command.String("database-url"), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "outflow-api", logger)
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
				persistence, registry, gatewayClient, gatewayClient, eventBus, logger, dispatch.Config{})

			calculator := recurrence.NewCalculator(nil)

			// The API only recomputes cached occurrences; the scheduler
			// binary owns the tick loop, so a memory claimer is enough.
			manager := scheduler.NewManager(
				persistence, calculator, scheduler.NewMemoryClaimer(), eventBus, logger, 0)

			api := NewAPI(logger, persistence, registry, dispatcher, manager, calculator)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
