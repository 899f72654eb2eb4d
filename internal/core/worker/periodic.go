package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/metrics"
)

// Task is one run of a recurring operation.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Periodic runs a task at a fixed interval until its context is cancelled.
type Periodic struct {
	kind     domain.TaskKind
	interval time.Duration
	task     Task
}

// NewPeriodic creates a new Periodic worker.
func NewPeriodic(kind domain.TaskKind, interval time.Duration, task Task) *Periodic {
	return &Periodic{
		kind:     kind,
		interval: max(interval, time.Second),
		task:     task,
	}
}

func (p *Periodic) Kind() domain.TaskKind {
	return p.kind
}

// Start runs the task once immediately and then on every tick. It returns nil once
// ctx is cancelled, or the error of a run that found the ledger corrupt. No further
// runs happen after such an error.
func (p *Periodic) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.runOnce(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// runOnce returns only fatal errors.
func (p *Periodic) runOnce(ctx context.Context) error {
	start := time.Now()
	err := p.task.Run(ctx)
	metrics.TaskDuration.WithLabelValues(string(p.kind)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.TaskRuns.WithLabelValues(string(p.kind), "ok").Inc()
	case errors.Is(err, domain.ErrTaskInProgress):
		metrics.TaskRuns.WithLabelValues(string(p.kind), "busy").Inc()
		slog.Debug("Task still running, skipping tick", "task", p.kind)
	case errors.Is(err, ledger.ErrInvariantViolated):
		metrics.TaskRuns.WithLabelValues(string(p.kind), "fatal").Inc()
		slog.Error("Ledger invariant violated, stopping task", "task", p.kind, "error", err)
		return err
	case ctx.Err() != nil:
		// shutting down
	default:
		metrics.TaskRuns.WithLabelValues(string(p.kind), "error").Inc()
		slog.Error("Task failed", "task", p.kind, "error", err)
	}
	return nil
}
