package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the aggregator's full configuration.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Contracts   ContractsConfig   `yaml:"contracts"`
	Planner     PlannerConfig     `yaml:"planner"`
	OrderSource OrderSourceConfig `yaml:"order_source"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// ChainConfig selects the network. Without rpc_url everything runs on the local ledger.
type ChainConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	ChainID    int64  `yaml:"chain_id"`
	PrivateKey string `yaml:"-"` // PRIVATE_KEY only
}

// Local reports whether no RPC endpoint is configured.
func (c ChainConfig) Local() bool {
	return c.RPCURL == ""
}

// ContractsConfig holds the deployed addresses (hex).
type ContractsConfig struct {
	Router        string                  `yaml:"router"`
	ApprovalProxy string                  `yaml:"approval_proxy"`
	PermitProxy   string                  `yaml:"permit_proxy"`
	WETH          string                  `yaml:"weth"`
	SwapAdapters  map[string]string       `yaml:"swap_adapters"` // provider → adapter
	Quoters       map[string]string       `yaml:"quoters"`       // provider → quoter
	Modules       map[string]ModuleConfig `yaml:"modules"`       // protocol → module
}

// ModuleConfig describes a deployed module.
type ModuleConfig struct {
	Address                string   `yaml:"address"`
	Currencies             []string `yaml:"currencies"` // empty = any
	GasPerOrder            uint64   `yaml:"gas_per_order"`
	SupportsOffers         bool     `yaml:"supports_offers"`
	RequiresTakerSignature bool     `yaml:"requires_taker_signature"`
}

// PlannerConfig bounds how orders are packed.
type PlannerConfig struct {
	MaxGasPerTx       uint64   `yaml:"max_gas_per_tx"`
	MaxPayloadBytes   int      `yaml:"max_payload_bytes"`
	SlippageBps       uint16   `yaml:"slippage_bps"`
	PermitTokens      []string `yaml:"permit_tokens"`
	PermitTTLSeconds  int      `yaml:"permit_ttl_seconds"`
	QuoteCacheSeconds int      `yaml:"quote_cache_seconds"`
}

// OrderSourceConfig points at the order API.
type OrderSourceConfig struct {
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"-"` // ORDER_SOURCE_API_KEY only
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig sets the log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and, if present, the .env file.
// Values from .env override the matching YAML keys.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PermitTTL returns how long a permit stays valid.
func (c *Config) PermitTTL() time.Duration {
	return time.Duration(c.Planner.PermitTTLSeconds) * time.Second
}

// QuoteCacheTTL returns how long a swap quote is reused.
func (c *Config) QuoteCacheTTL() time.Duration {
	return time.Duration(c.Planner.QuoteCacheSeconds) * time.Second
}

// Validate checks the addresses. The local ledger deploys its contracts at
// startup, so they are only required with rpc_url.
func (c *Config) Validate() error {
	var errs error
	check := func(field, v string, required bool) {
		if v == "" {
			if required {
				errs = multierr.Append(errs, fmt.Errorf("%s is required with chain.rpc_url", field))
			}
			return
		}
		if !common.IsHexAddress(v) {
			errs = multierr.Append(errs, fmt.Errorf("%s: invalid address %q", field, v))
		}
	}

	remote := !c.Chain.Local()
	check("contracts.router", c.Contracts.Router, remote)
	check("contracts.approval_proxy", c.Contracts.ApprovalProxy, remote)
	check("contracts.permit_proxy", c.Contracts.PermitProxy, remote)
	check("contracts.weth", c.Contracts.WETH, remote)
	for p, a := range c.Contracts.SwapAdapters {
		check("contracts.swap_adapters."+p, a, true)
	}
	for p, a := range c.Contracts.Quoters {
		check("contracts.quoters."+p, a, true)
	}
	for name, m := range c.Contracts.Modules {
		check("contracts.modules."+name+".address", m.Address, true)
		for _, cur := range m.Currencies {
			check("contracts.modules."+name+".currencies", cur, true)
		}
	}
	if remote && len(c.Contracts.Modules) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("contracts.modules: at least one module is required with chain.rpc_url"))
	}
	for _, t := range c.Planner.PermitTokens {
		check("planner.permit_tokens", t, true)
	}
	if c.Planner.SlippageBps >= 10_000 {
		errs = multierr.Append(errs, fmt.Errorf("planner.slippage_bps: %d is not below 10000", c.Planner.SlippageBps))
	}
	return errs
}

// applyEnvOverrides overrides values with environment variables when set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Chain.ChainID = id
	}
	cfg.Chain.PrivateKey = os.Getenv("PRIVATE_KEY")
	cfg.OrderSource.APIKey = os.Getenv("ORDER_SOURCE_API_KEY")
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	return nil
}

// setDefaults fills in required values left empty.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID <= 0 {
		cfg.Chain.ChainID = 1
	}
	if cfg.Planner.MaxGasPerTx == 0 {
		cfg.Planner.MaxGasPerTx = 12_000_000
	}
	if cfg.Planner.MaxPayloadBytes <= 0 {
		cfg.Planner.MaxPayloadBytes = 120_000
	}
	if cfg.Planner.SlippageBps == 0 {
		cfg.Planner.SlippageBps = 50 // 0.5%
	}
	if cfg.Planner.PermitTTLSeconds <= 0 {
		cfg.Planner.PermitTTLSeconds = 1800
	}
	if cfg.Planner.QuoteCacheSeconds <= 0 {
		cfg.Planner.QuoteCacheSeconds = 15
	}
	if cfg.OrderSource.RatePerSec <= 0 {
		cfg.OrderSource.RatePerSec = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "nftagg.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
