package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/infra/rpc/provider"
)

// LedgerView is the part of the ledger state the monitor reads.
type LedgerView interface {
	Summary() ledger.Summary
	LastScrapedBlock() amount.BlockNumber
	LastObservedBlock() (amount.BlockNumber, bool)
}

// ProviderHealth reports the health of every configured provider.
type ProviderHealth interface {
	Health() map[string]provider.HealthStatus
}

// RangeCounter counts the block ranges providers still disagree on.
type RangeCounter interface {
	Count(ctx context.Context) (int, error)
}

// Pinger is an external dependency the minter needs, such as its database.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds configure when the minter is reported degraded or critical.
type Thresholds struct {
	DegradedLag       uint64
	CriticalLag       uint64
	CriticalUnflushed int
}

var DefaultThresholds = Thresholds{
	DegradedLag:       100,
	CriticalLag:       1000,
	CriticalUnflushed: 1000,
}

const checkInterval = 10 * time.Second

// Monitor aggregates the health of the ledger and its providers.
type Monitor struct {
	ledger     LedgerView
	providers  ProviderHealth
	ranges     RangeCounter
	thresholds Thresholds
	deps       map[string]Pinger
	now        func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *NetworkHealth
}

// NewMonitor creates a health monitor. ranges may be nil.
func NewMonitor(state LedgerView, providers ProviderHealth, ranges RangeCounter, thresholds Thresholds) *Monitor {
	return &Monitor{
		ledger:     state,
		providers:  providers,
		ranges:     ranges,
		thresholds: thresholds,
		deps:       make(map[string]Pinger),
		now:        time.Now,
	}
}

// AddDependency registers a dependency checked on every health evaluation.
func (m *Monitor) AddDependency(name string, dep Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = dep
}

// CheckHealth evaluates the current health. Results are cached for a few seconds.
func (m *Monitor) CheckHealth(ctx context.Context) NetworkHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	sum := m.ledger.Summary()
	h := NetworkHealth{
		Network:           sum.Network,
		Status:            StatusHealthy,
		LastScrapedBlock:  sum.LastScrapedBlock,
		LastObservedBlock: sum.LastObservedBlock,
		Pending:           sum.Pending,
		Minted:            sum.Minted,
		Invalid:           sum.Invalid,
		Quarantined:       sum.Quarantined,
		SkippedBlocks:     sum.SkippedBlocks,
		UnflushedEvents:   sum.UnflushedEvents,
		ActiveTasks:       sum.ActiveTasks,
		Providers:         m.providers.Health(),
	}

	if observed, ok := m.ledger.LastObservedBlock(); ok {
		if lag, ok := observed.CheckedSub(m.ledger.LastScrapedBlock()); ok {
			h.BlockLag, _ = lag.Uint64()
		}
	}

	if m.ranges != nil {
		n, err := m.ranges.Count(ctx)
		if err != nil {
			slog.Warn("Failed to count inconsistent ranges", "error", err)
		}
		h.InconsistentRanges = n
	}

	if len(m.deps) > 0 {
		h.Dependencies = make(map[string]string, len(m.deps))
		for name, dep := range m.deps {
			if err := dep.Health(ctx); err != nil {
				h.Dependencies[name] = err.Error()
			} else {
				h.Dependencies[name] = "ok"
			}
		}
	}

	m.evaluate(&h)

	m.lastCheck = m.now()
	m.lastReport = &h
	return h
}

func (m *Monitor) evaluate(h *NetworkHealth) {
	mark := func(status SystemStatus, reason string) {
		h.Status = worse(h.Status, status)
		h.Reasons = append(h.Reasons, reason)
	}

	available := 0
	for name, p := range h.Providers {
		if p.Available {
			available++
		} else {
			mark(StatusDegraded, fmt.Sprintf("provider %s unavailable", name))
		}
	}
	if available == 0 {
		mark(StatusCritical, "no provider available")
	}

	switch {
	case h.BlockLag > m.thresholds.CriticalLag:
		mark(StatusCritical, fmt.Sprintf("scrape lag of %d blocks", h.BlockLag))
	case h.BlockLag > m.thresholds.DegradedLag:
		mark(StatusDegraded, fmt.Sprintf("scrape lag of %d blocks", h.BlockLag))
	}

	if h.UnflushedEvents > m.thresholds.CriticalUnflushed {
		mark(StatusCritical, fmt.Sprintf("%d audit events not flushed", h.UnflushedEvents))
	}
	if h.Quarantined > 0 {
		mark(StatusDegraded, fmt.Sprintf("%d quarantined deposits", h.Quarantined))
	}
	for name, status := range h.Dependencies {
		if status != "ok" {
			mark(StatusDegraded, fmt.Sprintf("%s unreachable", name))
		}
	}
	if h.InconsistentRanges > 0 {
		mark(StatusDegraded, fmt.Sprintf("%d inconsistent block ranges", h.InconsistentRanges))
	}
}
