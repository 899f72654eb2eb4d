package config

import (
	"time"

	redisclient "github.com/vietddude/minter/internal/infra/redis"
	badgerstore "github.com/vietddude/minter/internal/infra/storage/badger"
	"github.com/vietddude/minter/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Network   NetworkConfig      `yaml:"network"`
	Minter    MinterConfig       `yaml:"minter"`
	Providers []ProviderConfig   `yaml:"providers"`
	Storage   StorageConfig      `yaml:"storage"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Badger    badgerstore.Config `yaml:"badger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// NetworkConfig selects the source chain.
type NetworkConfig struct {
	ChainID uint64 `yaml:"chain_id"`
}

// MinterConfig holds the settings the ledger state is initialised with, plus task scheduling.
type MinterConfig struct {
	HelperContract    string `yaml:"helper_contract"`
	LedgerID          string `yaml:"ledger_id"`
	EcdsaKeyName      string `yaml:"ecdsa_key_name"`
	TokenSymbol       string `yaml:"token_symbol"`
	MinimumWithdrawal string `yaml:"minimum_withdrawal"` // decimal wei
	BlockTag          string `yaml:"block_tag"`
	FirstScrapedBlock uint64 `yaml:"first_scraped_block"`
	MaxBlockSpread    uint64 `yaml:"max_block_spread"`

	ScrapeInterval     time.Duration `yaml:"scrape_interval"`
	MintInterval       time.Duration `yaml:"mint_interval"`
	FeeRefreshInterval time.Duration `yaml:"fee_refresh_interval"`
}

// ProviderConfig holds settings for a JSON-RPC provider.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `yaml:"burst"`
}

// StorageConfig selects where the audit log is persisted.
type StorageConfig struct {
	Kind string `yaml:"kind"` // memory, postgres, badger
}
