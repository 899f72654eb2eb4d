package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/minter/internal/core/config"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/core/worker"
	"github.com/vietddude/minter/internal/indexing/fee"
	"github.com/vietddude/minter/internal/indexing/health"
	"github.com/vietddude/minter/internal/indexing/metrics"
	"github.com/vietddude/minter/internal/indexing/mint"
	"github.com/vietddude/minter/internal/indexing/scraper"
	"github.com/vietddude/minter/internal/infra/chain/evm"
	redisclient "github.com/vietddude/minter/internal/infra/redis"
	"github.com/vietddude/minter/internal/infra/rpc/provider"
	"github.com/vietddude/minter/internal/infra/storage"
	"github.com/vietddude/minter/internal/infra/storage/postgres"
)

const defaultLeaseTTL = 30 * time.Second

// Minter is the main application struct that manages the minter lifecycle.
type Minter struct {
	cfg          *config.AppConfig
	state        *ledger.State
	audit        storage.AuditLog
	db           *postgres.DB
	redisClient  *redisclient.Client
	owner        string
	networkCode  string
	providers    []provider.Provider
	workers      []*worker.Periodic
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	failed   chan struct{}
	failOnce sync.Once
	failErr  error
}

// NewMinter creates a new Minter instance with all dependencies initialized.
func NewMinter(ctx context.Context, cfg *config.AppConfig) (*Minter, error) {
	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		return nil, err
	}
	network := ledgerCfg.Network
	code := string(network.Code())

	// 1. Storage and state
	audit, db, err := OpenAuditLog(ctx, cfg, network)
	if err != nil {
		return nil, err
	}
	state, err := LoadState(ctx, cfg, audit)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	// 2. Providers
	providers := make([]provider.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, provider.NewHTTPProvider(provider.HTTPConfig{
			Name:      p.Name,
			URL:       p.URL,
			Network:   code,
			Timeout:   p.Timeout,
			RateLimit: p.RateLimit,
			Burst:     p.Burst,
		}))
	}
	client, err := evm.NewClient(network, providers, evm.Options{})
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	// 3. Redis coordination
	var redisClient *redisclient.Client
	var ranges scraper.RangeRecorder
	var rangeCounter health.RangeCounter
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			_ = audit.Close()
			return nil, err
		}
		recorder := redisclient.NewRangeRecorder(redisClient, code)
		ranges, rangeCounter = recorder, recorder
	} else {
		slog.Warn("Redis not configured, running without an ownership lease")
	}

	// 4. Tasks
	dest := mint.NewMemoryLedger(cfg.Minter.TokenSymbol)
	slog.Warn("Minting to the in-process ledger", "token", dest.TokenSymbol())

	workers := []*worker.Periodic{
		worker.NewPeriodic(domain.TaskScrape, cfg.Minter.ScrapeInterval,
			scraper.New(scraper.Config{MaxBlockSpread: cfg.Minter.MaxBlockSpread}, state, client, audit, ranges)),
		worker.NewPeriodic(domain.TaskMint, cfg.Minter.MintInterval,
			mint.New(state, dest, audit)),
		worker.NewPeriodic(domain.TaskRefreshFeeEstimate, cfg.Minter.FeeRefreshInterval,
			fee.NewRefresher(state, client)),
	}

	// 5. Health
	healthMon := health.NewMonitor(state, client, rangeCounter, health.DefaultThresholds)
	if db != nil {
		healthMon.AddDependency("postgres", db)
	}
	if redisClient != nil {
		healthMon.AddDependency("redis", redisClient)
	}

	return &Minter{
		cfg:          cfg,
		state:        state,
		audit:        audit,
		db:           db,
		redisClient:  redisClient,
		owner:        uuid.NewString(),
		networkCode:  code,
		providers:    providers,
		workers:      workers,
		healthMon:    healthMon,
		healthServer: health.NewServer(healthMon, cfg.Server.Port),
		log:          slog.Default().With("network", network.String()),
		failed:       make(chan struct{}),
	}, nil
}

// State returns the ledger state driven by this minter.
func (m *Minter) State() *ledger.State {
	return m.state
}

func (m *Minter) leaseTTL() time.Duration {
	if m.cfg.Redis.LeaseTTL > 0 {
		return m.cfg.Redis.LeaseTTL
	}
	return defaultLeaseTTL
}

// Start takes the ownership lease and starts every task. It returns once the
// tasks are running.
func (m *Minter) Start(ctx context.Context) error {
	if m.redisClient != nil {
		if err := m.redisClient.AcquireOwnership(ctx, m.networkCode, m.owner, m.leaseTTL()); err != nil {
			if errors.Is(err, redisclient.ErrNotOwner) {
				holder, _ := m.redisClient.CurrentOwner(ctx, m.networkCode)
				return fmt.Errorf("failed to acquire minter lease, held by %q: %w", holder, err)
			}
			return fmt.Errorf("failed to acquire minter lease: %w", err)
		}
		m.log.Info("Acquired minter lease", "owner", m.owner, "ttl", m.leaseTTL())
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	// Start Health Server
	go func() {
		if err := m.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if m.db != nil {
		m.db.StartMetricsCollector(runCtx)
	}

	if m.redisClient != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.keepLease(runCtx, cancel)
		}()
	}

	for _, w := range m.workers {
		m.log.Info("Starting task", "task", w.Kind())
		m.wg.Add(1)
		go func(p *worker.Periodic) {
			defer m.wg.Done()
			if err := p.Start(runCtx); err != nil {
				m.fail(err)
			}
		}(w)
	}

	metrics.UnflushedAuditEvents.Set(float64(len(m.state.Unflushed())))
	return nil
}

// fail stops every task after a fatal error. Only the first error is kept.
func (m *Minter) fail(err error) {
	m.failOnce.Do(func() {
		m.failErr = err
		m.log.Error("Fatal task error, stopping all tasks", "error", err)
		m.cancel()
		close(m.failed)
	})
}

// Failed is closed when a task stopped the minter with a fatal error.
func (m *Minter) Failed() <-chan struct{} {
	return m.failed
}

// Err returns the fatal error once Failed is closed.
func (m *Minter) Err() error {
	select {
	case <-m.failed:
		return m.failErr
	default:
		return nil
	}
}

// keepLease refreshes the ownership lease and stops every task once it is lost.
func (m *Minter) keepLease(ctx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(m.leaseTTL() / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.redisClient.RefreshOwnership(ctx, m.networkCode, m.owner, m.leaseTTL())
			switch {
			case err == nil:
			case errors.Is(err, redisclient.ErrNotOwner):
				m.log.Error("Lost minter lease, stopping tasks", "owner", m.owner)
				stop()
				return
			default:
				m.log.Warn("Failed to refresh minter lease", "error", err)
			}
		}
	}
}

// Stop stops every task, flushes the journal and releases the lease.
func (m *Minter) Stop(ctx context.Context) error {
	m.log.Info("Stopping minter...")

	if m.cancel != nil {
		m.cancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("Timed out waiting for tasks to stop")
	}

	var errs []error
	if _, err := m.state.Flush(ctx, m.audit); err != nil {
		errs = append(errs, fmt.Errorf("final flush failed: %w", err))
	}

	if m.redisClient != nil {
		if err := m.redisClient.ReleaseOwnership(ctx, m.networkCode, m.owner); err != nil {
			m.log.Warn("Failed to release minter lease", "error", err)
		}
		if err := m.redisClient.Close(); err != nil {
			m.log.Warn("Failed to close Redis", "error", err)
		}
	}

	for _, p := range m.providers {
		_ = p.Close()
	}
	if err := m.audit.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.healthServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
