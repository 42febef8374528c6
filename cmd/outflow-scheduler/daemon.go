// Package main provides the Outflow scheduler daemon. It runs the
// schedule manager tick loop and publishes due events for dispatchers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/outflowhq/outflow/pkg/scheduler"
)

type Daemon struct {
	id      string
	manager *scheduler.Manager
	logger  *slog.Logger
}

func NewDaemon(id string, manager *scheduler.Manager, logger *slog.Logger) *Daemon {
	return &Daemon{
		id:      id,
		manager: manager,
		logger:  logger.With("module", "scheduler_daemon"),
	}
}

// Start runs the tick loop until the context is cancelled or a shutdown
// signal arrives.
func (d *Daemon) Start(ctx context.Context) {
	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.Info("Starting scheduler daemon")

	d.handleSignals(cancel)

	if err := d.manager.Start(dCtx); err != nil {
		d.logger.Error("Failed to start schedule manager", "error", err)

		return
	}

	<-dCtx.Done()

	d.logger.Info("Scheduler daemon context cancelled, stopping")

	if err := d.manager.Stop(context.WithoutCancel(dCtx)); err != nil {
		d.logger.Error("Failed to stop schedule manager", "error", err)
	}
}

func (d *Daemon) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		d.logger.Info("Received signal", "signal", sig)

		cancel()
	}()
}
