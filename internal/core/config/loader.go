package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/core/principal"
	"github.com/vietddude/minter/internal/infra/storage"
)

const (
	defaultPort          = 8080
	defaultTaskInterval  = time.Minute
	defaultTokenSymbol   = "ckPOL"
	defaultBlockTag      = "finalized"
	defaultLogLevel      = "info"
	defaultStorageKind   = storage.KindMemory
	defaultProviderBurst = 1
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Network.ChainID == 0 {
		c.Network.ChainID = domain.NetworkPolygonAmoy.ChainID()
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = string(defaultStorageKind)
	}

	m := &c.Minter
	if m.TokenSymbol == "" {
		m.TokenSymbol = defaultTokenSymbol
	}
	if m.BlockTag == "" {
		m.BlockTag = defaultBlockTag
	}
	if m.MinimumWithdrawal == "" {
		m.MinimumWithdrawal = "0"
	}
	for _, d := range []*time.Duration{&m.ScrapeInterval, &m.MintInterval, &m.FeeRefreshInterval} {
		if *d == 0 {
			*d = defaultTaskInterval
		}
	}

	for i := range c.Providers {
		if c.Providers[i].Burst == 0 {
			c.Providers[i].Burst = defaultProviderBurst
		}
	}
}

// Validate checks the configuration for values the minter cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if _, err := c.LedgerConfig(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" || p.URL == "" {
			errs = append(errs, fmt.Errorf("provider %d: name and url are required", i))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("provider %q configured twice", p.Name))
		}
		seen[p.Name] = true
		if p.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("provider %q: rate_limit must not be negative", p.Name))
		}
	}

	switch storage.Kind(c.Storage.Kind) {
	case storage.KindMemory:
	case storage.KindPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres storage"))
		}
	case storage.KindBadger:
		if c.Badger.Path == "" && !c.Badger.InMemory {
			errs = append(errs, errors.New("badger.path is required for badger storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage kind %q", c.Storage.Kind))
	}

	return errors.Join(errs...)
}

// LedgerConfig converts the minter section into the ledger's initial configuration.
func (c *AppConfig) LedgerConfig() (ledger.Config, error) {
	network, err := domain.NetworkFromChainID(c.Network.ChainID)
	if err != nil {
		return ledger.Config{}, err
	}
	m := c.Minter

	cfg := ledger.Config{
		Network:           network,
		EcdsaKeyName:      m.EcdsaKeyName,
		FirstScrapedBlock: amount.NewBlockNumber(m.FirstScrapedBlock),
	}

	if m.HelperContract != "" {
		if !common.IsHexAddress(m.HelperContract) {
			return ledger.Config{}, fmt.Errorf("minter.helper_contract %q is not an address", m.HelperContract)
		}
		addr := common.HexToAddress(m.HelperContract)
		cfg.HelperContract = &addr
	}

	if m.LedgerID != "" {
		if cfg.LedgerID, err = principal.FromText(m.LedgerID); err != nil {
			return ledger.Config{}, fmt.Errorf("minter.ledger_id: %w", err)
		}
	}

	if cfg.MinimumWithdrawal, err = amount.FromDecimal[amount.ValueTag](m.MinimumWithdrawal); err != nil {
		return ledger.Config{}, fmt.Errorf("minter.minimum_withdrawal: %w", err)
	}

	if cfg.BlockTag, err = domain.ParseBlockTag(m.BlockTag); err != nil {
		return ledger.Config{}, fmt.Errorf("minter.block_tag: %w", err)
	}

	return cfg, nil
}
