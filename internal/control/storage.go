package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/minter/internal/core/config"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/infra/storage"
	badgerstore "github.com/vietddude/minter/internal/infra/storage/badger"
	"github.com/vietddude/minter/internal/infra/storage/memory"
	"github.com/vietddude/minter/internal/infra/storage/postgres"
)

// OpenAuditLog opens the audit log selected by the storage section. The returned
// DB is non-nil for postgres storage; closing the audit log closes it.
func OpenAuditLog(ctx context.Context, cfg *config.AppConfig, network domain.Network) (storage.AuditLog, *postgres.DB, error) {
	switch storage.Kind(cfg.Storage.Kind) {
	case storage.KindPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL audit log")
		return postgres.NewAuditRepo(db, network), db, nil

	case storage.KindBadger:
		log, err := badgerstore.Open(cfg.Badger, network)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Badger audit log", "path", cfg.Badger.Path, "in_memory", cfg.Badger.InMemory)
		return log, nil, nil

	default:
		slog.Warn("Using in-memory audit log, state will not survive a restart")
		return memory.NewAuditLog(), nil, nil
	}
}

// LoadState rebuilds the ledger state from the audit log.
func LoadState(ctx context.Context, cfg *config.AppConfig, audit storage.AuditLog) (*ledger.State, error) {
	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		return nil, err
	}
	events, err := audit.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	state, err := ledger.Replay(ledgerCfg, events)
	if err != nil {
		return nil, err
	}
	slog.Info("Replayed audit log",
		"events", len(events),
		"last_scraped_block", state.LastScrapedBlock(),
		"pending", len(state.Pending()),
	)
	return state, nil
}
