// Package mint submits pending deposits to the destination ledger.
package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/metrics"
)

// Minter implements the Mint task.
type Minter struct {
	state   *ledger.State
	dest    Ledger
	audit   ledger.AuditAppender
	network string
	log     *slog.Logger
}

func New(state *ledger.State, dest Ledger, audit ledger.AuditAppender) *Minter {
	network := state.Config().Network
	return &Minter{
		state:   state,
		dest:    dest,
		audit:   audit,
		network: string(network.Code()),
		log:     slog.Default().With("task", domain.TaskMint, "network", network.String()),
	}
}

// Run mints every pending deposit in source order. A deposit whose mint failed
// temporarily stays pending for the next run; one whose outcome is unknown is
// quarantined so that it is never minted twice.
//
// The journal is persisted before the first mint and after every mint attempt
// that changed the ledger, so a restart never replays a minted deposit as pending.
// A failed flush stops the run.
func (m *Minter) Run(ctx context.Context) error {
	release, ok := m.state.AcquireTask(domain.TaskMint)
	if !ok {
		return domain.ErrTaskInProgress
	}
	defer release()

	if err := m.flush(ctx); err != nil {
		return err
	}
	return m.mintPending(ctx)
}

func (m *Minter) flush(ctx context.Context) error {
	n, err := m.state.Flush(ctx, m.audit)
	if err != nil {
		m.log.Error("Failed to flush audit journal", "error", err)
	}
	metrics.AuditEventsFlushed.Add(float64(n))
	metrics.UnflushedAuditEvents.Set(float64(len(m.state.Unflushed())))
	return err
}

// persist flushes the commit that followed a mint call, ignoring cancellation.
func (m *Minter) persist(ctx context.Context, source domain.EventSource) error {
	if err := m.flush(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to persist %s, stopping run: %w", source, err)
	}
	return nil
}

func (m *Minter) mintPending(ctx context.Context) error {
	pending := m.state.Pending()
	if len(pending) == 0 {
		return nil
	}

	var minted, failed int
	symbol := m.dest.TokenSymbol()
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx, err := m.dest.Mint(ctx, Request{To: ev.Principal, Amount: ev.Value, Memo: ev.Source})
		if err != nil {
			failed++
			outcome := OutcomeOf(err)
			metrics.MintFailures.WithLabelValues(m.network, outcome.String()).Inc()
			if outcome == OutcomeTemporary {
				m.log.Warn("Failed to mint deposit, will retry", "source", ev.Source.String(), "error", err)
				continue
			}
			m.log.Error("Mint outcome unknown, quarantining deposit", "source", ev.Source.String(), "error", err)
			if err := m.quarantine(ctx, ev.Source); err != nil {
				return err
			}
			continue
		}

		rec, err := m.state.FinalizeMint(ev.Source, idx, symbol)
		if err != nil {
			failed++
			m.log.Error("Minted deposit could not be recorded, quarantining",
				"source", ev.Source.String(),
				"mint_index", idx,
				"error", err,
			)
			if qErr := m.quarantine(ctx, ev.Source); qErr != nil {
				return fmt.Errorf("failed to record mint %s of %s: %w", idx, ev.Source, errors.Join(err, qErr))
			}
			continue
		}
		if err := m.persist(ctx, ev.Source); err != nil {
			return err
		}
		minted++
		metrics.Deposits.WithLabelValues(m.network, "minted").Inc()
		m.log.Info("Minted deposit",
			"source", rec.Deposit.Source.String(),
			"principal", rec.Deposit.Principal.String(),
			"value", rec.Deposit.Value,
			"mint_index", rec.MintIndex,
			"token", rec.TokenSymbol,
		)
	}

	m.log.Info("Mint run finished", "minted", minted, "failed", failed)
	return nil
}

func (m *Minter) quarantine(ctx context.Context, source domain.EventSource) error {
	if err := m.state.Quarantine(source); err != nil {
		return fmt.Errorf("failed to quarantine %s: %w", source, err)
	}
	metrics.Deposits.WithLabelValues(m.network, "quarantined").Inc()
	return m.persist(ctx, source)
}
