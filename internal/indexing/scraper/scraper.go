// Package scraper turns deposit logs of the helper contract into ledger entries.
//
// A run fetches the block at the configured tag, then walks the scrape cursor up
// to it in ranges of at most MaxBlockSpread blocks. Each range is fetched from all
// providers through eth_getLogs; the cursor only moves past a range once every
// log in it was committed to the ledger.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/indexing/decoder"
	"github.com/vietddude/minter/internal/indexing/metrics"
	"github.com/vietddude/minter/internal/infra/chain"
	"github.com/vietddude/minter/internal/infra/chain/evm"
)

// DefaultMaxBlockSpread is the largest range requested in one eth_getLogs call.
const DefaultMaxBlockSpread = 500

// RangeRecorder keeps track of ranges the providers disagreed on.
type RangeRecorder interface {
	RecordInconsistent(ctx context.Context, start, end uint64, answers map[string]string) error
	ResolveThrough(ctx context.Context, block uint64) error
}

// Config holds the scraper settings.
type Config struct {
	MaxBlockSpread uint64
}

// Scraper implements the Scrape task.
type Scraper struct {
	cfg     Config
	state   *ledger.State
	fetcher chain.Fetcher
	audit   ledger.AuditAppender
	ranges  RangeRecorder
	network string
	log     *slog.Logger
}

// New creates a scraper. ranges may be nil.
func New(
	cfg Config,
	state *ledger.State,
	fetcher chain.Fetcher,
	audit ledger.AuditAppender,
	ranges RangeRecorder,
) *Scraper {
	if cfg.MaxBlockSpread == 0 {
		cfg.MaxBlockSpread = DefaultMaxBlockSpread
	}
	network := state.Config().Network
	return &Scraper{
		cfg:     cfg,
		state:   state,
		fetcher: fetcher,
		audit:   audit,
		ranges:  ranges,
		network: string(network.Code()),
		log:     slog.Default().With("task", domain.TaskScrape, "network", network.String()),
	}
}

// Run scrapes from the cursor up to the block at the configured tag.
func (s *Scraper) Run(ctx context.Context) error {
	release, ok := s.state.AcquireTask(domain.TaskScrape)
	if !ok {
		return domain.ErrTaskInProgress
	}
	defer release()

	err := s.run(ctx)
	if flushErr := s.flush(ctx); err == nil {
		err = flushErr
	}
	return err
}

func (s *Scraper) run(ctx context.Context) error {
	cfg := s.state.Config()
	if cfg.HelperContract == nil {
		s.log.Warn("No helper contract configured, skipping scrape")
		return nil
	}

	block, err := s.fetcher.GetBlockByNumber(ctx, cfg.BlockTag).Unwrap()
	if err != nil {
		return fmt.Errorf("failed to fetch %s block: %w", cfg.BlockTag, err)
	}
	s.state.UpdateLastObservedBlock(block.Number)
	if n, ok := block.Number.Uint64(); ok {
		metrics.LastObservedBlock.WithLabelValues(s.network).Set(float64(n))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to, ok := s.nextRange(block.Number)
		if !ok {
			return nil
		}
		if skipped, found := s.state.NextSkippedBlock(from); found && !to.Lt(skipped) {
			if skipped == from {
				if err := s.state.AdvanceScrapedBlock(from); err != nil {
					return err
				}
				continue
			}
			to, _ = skipped.CheckedDecrement()
		}
		if err := s.scrapeRange(ctx, *cfg.HelperContract, from, to); err != nil {
			return err
		}
	}
}

// nextRange returns the range after the cursor, capped by spread and by target.
// Run further cuts it short of the next skipped block.
func (s *Scraper) nextRange(target amount.BlockNumber) (from, to amount.BlockNumber, ok bool) {
	last := s.state.LastScrapedBlock()
	if !last.Lt(target) {
		return from, to, false
	}
	from, _ = last.CheckedIncrement()
	to, fits := last.CheckedAdd(amount.NewBlockNumber(s.cfg.MaxBlockSpread))
	if !fits || target.Lt(to) {
		to = target
	}
	return from, to, true
}

// scrapeRange commits the logs of [from, to] and advances the cursor to the end
// of the committed range, which may be shorter than requested when the providers
// reject the response size.
func (s *Scraper) scrapeRange(ctx context.Context, contract common.Address, from, to amount.BlockNumber) error {
	for {
		outcome := s.fetcher.GetLogs(ctx, chain.GetLogsArgs{
			FromBlock: domain.NumberTag(from),
			ToBlock:   domain.NumberTag(to),
			Addresses: []common.Address{contract},
			Topics:    [][]common.Hash{{decoder.DepositTopic}},
		})
		entries, err := outcome.Unwrap()
		if err == nil {
			return s.commitRange(ctx, from, to, entries)
		}

		if evm.ResponseTooLarge(outcome) {
			if from == to {
				return s.skipBlock(from)
			}
			diff, _ := to.CheckedSub(from)
			to, _ = from.CheckedAdd(diff.Halve())
			s.log.Info("Response too large, halving block range", "from", from, "to", to)
			continue
		}

		var inconsistent *consensus.InconsistentError
		if errors.As(err, &inconsistent) {
			s.recordInconsistent(ctx, from, to, inconsistent)
		}
		return fmt.Errorf("failed to get logs for blocks %s..%s: %w", from, to, err)
	}
}

// commitRange decodes every entry before touching the ledger, then commits the
// range in one step. A pending entry leaves the ledger untouched.
func (s *Scraper) commitRange(ctx context.Context, from, to amount.BlockNumber, entries []decoder.LogEntry) error {
	var (
		deposits []domain.DepositEvent
		rejected []ledger.Rejection
	)
	for _, entry := range entries {
		ev, err := decoder.Decode(entry)

		var invalid *decoder.InvalidEventSourceError
		switch {
		case err == nil:
			deposits = append(deposits, ev)
		case errors.As(err, &invalid):
			rejected = append(rejected, ledger.Rejection{Source: invalid.Source, Reason: invalid.Err.Error()})
		case errors.Is(err, decoder.ErrPendingLogEntry):
			return fmt.Errorf("blocks %s..%s: %w", from, to, err)
		default:
			return fmt.Errorf("blocks %s..%s: failed to decode log entry: %w", from, to, err)
		}
	}

	commit, err := s.state.CommitRange(to, deposits, rejected)
	if err != nil {
		return fmt.Errorf("failed to commit blocks %s..%s: %w", from, to, err)
	}

	for _, ev := range commit.Accepted {
		metrics.Deposits.WithLabelValues(s.network, "accepted").Inc()
		s.log.Info("Accepted deposit",
			"source", ev.Source.String(),
			"from", ev.From.Hex(),
			"value", ev.Value,
			"principal", ev.Principal.String(),
		)
	}
	for _, r := range commit.Rejected {
		metrics.Deposits.WithLabelValues(s.network, "invalid").Inc()
		s.log.Warn("Rejected invalid deposit", "source", r.Source.String(), "reason", r.Reason)
	}

	span, _ := to.CheckedSub(from)
	if n, ok := span.Uint64(); ok {
		metrics.BlocksScraped.WithLabelValues(s.network).Add(float64(n + 1))
	}
	if n, ok := to.Uint64(); ok {
		metrics.LastScrapedBlock.WithLabelValues(s.network).Set(float64(n))
		if s.ranges != nil {
			if err := s.ranges.ResolveThrough(ctx, n); err != nil {
				s.log.Warn("Failed to clear resolved inconsistent ranges", "error", err)
			}
		}
	}
	s.log.Debug("Scraped block range", "from", from, "to", to, "logs", len(entries))
	return nil
}

func (s *Scraper) skipBlock(b amount.BlockNumber) error {
	s.log.Error("Block logs are too large even alone, skipping block", "block", b)
	if s.state.RecordSkippedBlock(b) {
		metrics.SkippedBlocks.WithLabelValues(s.network).Inc()
	}
	return s.state.AdvanceScrapedBlock(b)
}

func (s *Scraper) recordInconsistent(
	ctx context.Context,
	from, to amount.BlockNumber,
	inconsistent *consensus.InconsistentError,
) {
	if s.ranges == nil {
		return
	}
	start, okStart := from.Uint64()
	end, okEnd := to.Uint64()
	if !okStart || !okEnd {
		return
	}
	answers := make(map[string]string, len(inconsistent.Providers))
	for i, p := range inconsistent.Providers {
		answers[p] = inconsistent.Answers[i]
	}
	if err := s.ranges.RecordInconsistent(ctx, start, end, answers); err != nil {
		s.log.Warn("Failed to record inconsistent range", "from", from, "to", to, "error", err)
	}
}

func (s *Scraper) flush(ctx context.Context) error {
	n, err := s.state.Flush(ctx, s.audit)
	if err != nil {
		s.log.Error("Failed to flush audit journal", "error", err)
	}
	metrics.AuditEventsFlushed.Add(float64(n))
	metrics.UnflushedAuditEvents.Set(float64(len(s.state.Unflushed())))
	return err
}
