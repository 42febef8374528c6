// Package main provides the Outflow dispatcher daemon. It consumes due
// events from the bus and fans automation runs out to their audiences.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/events"
)

type Worker struct {
	id         string
	eventBus   eventbus.EventBus
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewWorker(id string, eventBus eventbus.EventBus, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Worker {
	return &Worker{
		id:         id,
		eventBus:   eventBus,
		dispatcher: dispatcher,
		logger:     logger.With("module", "dispatch_worker"),
	}
}

// Start subscribes to due events and blocks until the context is
// cancelled or a shutdown signal arrives.
func (w *Worker) Start(ctx context.Context) {
	wCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.Info("Starting dispatch worker")

	w.handleSignals(cancel)

	if err := w.eventBus.Handle(events.ScheduleDueEvent, w.handleScheduleDue); err != nil {
		w.logger.Error("Failed to register due event handler", "error", err)

		return
	}

	if err := w.eventBus.Subscribe(wCtx); err != nil {
		w.logger.Error("Failed to subscribe to event bus", "error", err)

		return
	}

	w.logger.Info("Subscribed to due events, waiting")

	<-wCtx.Done()

	w.logger.Info("Dispatch worker context cancelled, stopping")
}

func (w *Worker) handleScheduleDue(ctx context.Context, event any) error {
	due, ok := event.(*events.ScheduleDue)
	if ok {
		w.logger.Info("Received due event",
			"schedule_id", due.ScheduleID,
			"automation_id", due.AutomationID,
			"due_at", due.DueAt)
	}

	return w.dispatcher.HandleScheduleDue(ctx, event)
}

func (w *Worker) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		w.logger.Info("Received signal", "signal", sig)

		cancel()
	}()
}
