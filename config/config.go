package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/candyarb/dex/uniswap"
	"github.com/michaelpento.lv/candyarb/orchestrator"
	"github.com/michaelpento.lv/candyarb/types"
	"github.com/michaelpento.lv/candyarb/utils"
	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

const defaultConfigName = ".candyarb.json"

type Config struct {
	// Chain access
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`

	// Contracts, as hex addresses
	Contracts ContractsConfig `json:"contracts" yaml:"contracts"`

	// Trading parameters
	FeeV1          types.FeeSchedule `json:"fee_v1" yaml:"fee_v1"`
	FeeV2          types.FeeSchedule `json:"fee_v2" yaml:"fee_v2"`
	DeadlineWindow uint64            `json:"deadline_window" yaml:"deadline_window"`
	SlippageBps    uint32            `json:"slippage_bps" yaml:"slippage_bps"`
	Shape          string            `json:"shape" yaml:"shape"`
	MinProfitWei   string            `json:"min_profit_wei" yaml:"min_profit_wei"`
	MaxRetries     int               `json:"max_retries" yaml:"max_retries"`

	// Node access
	RPCRateLimit      RateLimitConfig      `json:"rpc_rate_limit" yaml:"rpc_rate_limit"`
	CircuitBreaker    CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	MetadataCacheSize int                  `json:"metadata_cache_size" yaml:"metadata_cache_size"`

	// Gas pricing for net profit estimates
	Gas GasConfig `json:"gas" yaml:"gas"`

	JournalPath string    `json:"journal_path" yaml:"journal_path"`
	Log         LogConfig `json:"log" yaml:"log"`
	Debug       bool      `json:"debug" yaml:"debug"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

// LogConfig selects how the global logger is built
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file" yaml:"file"`
}

type ContractsConfig struct {
	V1Exchange string `json:"v1_exchange" yaml:"v1_exchange"`
	V2Pair     string `json:"v2_pair" yaml:"v2_pair"`
	Token      string `json:"token" yaml:"token"`
	WETH       string `json:"weth" yaml:"weth"`
	Account    string `json:"account" yaml:"account"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

type CircuitBreakerConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	ErrorThreshold uint32        `json:"error_threshold" yaml:"error_threshold"`
	CooldownPeriod time.Duration `json:"cooldown_period" yaml:"cooldown_period"`
}

type GasConfig struct {
	PriceGwei   string `json:"price_gwei" yaml:"price_gwei"`
	DirectUnits uint64 `json:"direct_units" yaml:"direct_units"`
	BorrowUnits uint64 `json:"borrow_units" yaml:"borrow_units"`
}

func (c *Config) Validate() error {
	var problems []string

	if err := c.FeeV1.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("fee_v1: %v", err))
	}
	if err := c.FeeV2.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("fee_v2: %v", err))
	}
	if c.DeadlineWindow == 0 {
		problems = append(problems, "deadline_window must be positive")
	}
	if c.SlippageBps >= 10000 {
		problems = append(problems, "slippage_bps must be below 10000")
	}
	if _, err := orchestrator.ParseShapePolicy(c.Shape); err != nil {
		problems = append(problems, fmt.Sprintf("shape %q is not auto, direct or borrow", c.Shape))
	}
	if _, err := c.MinProfit(); err != nil {
		problems = append(problems, fmt.Sprintf("min_profit_wei: %v", err))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must not be negative")
	}
	if err := c.Contracts.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.RPCRateLimit.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("rpc rate limit: %v", err))
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("circuit breaker: %v", err))
	}
	if err := c.Log.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("log: %v", err))
	}

	if len(problems) > 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(strings.Join(problems, "; ")))
	}
	return nil
}

// Validate checks the level and format names
func (l LogConfig) Validate() error {
	if l.Level != "" {
		if _, err := zapcore.ParseLevel(l.Level); err != nil {
			return fmt.Errorf("level %q is not debug, info, warn or error", l.Level)
		}
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("format %q is not json or console", l.Format)
	}
}

// Options converts the config into logger options. debug forces the debug level.
func (l LogConfig) Options(debug bool) utils.LogOptions {
	opts := utils.LogOptions{Level: l.Level, Format: l.Format}
	if debug {
		opts.Level = "debug"
	}
	if l.File != "" {
		opts.Outputs = []string{"stderr", l.File}
	}
	return opts
}

// Validate checks that every configured address is well formed. Empty
// addresses are allowed; commands that need one check for it themselves.
func (c *ContractsConfig) Validate() error {
	var problems []string
	for name, addr := range map[string]string{
		"v1_exchange": c.V1Exchange,
		"v2_pair":     c.V2Pair,
		"token":       c.Token,
		"weth":        c.WETH,
		"account":     c.Account,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			problems = append(problems, fmt.Sprintf("%s %q is not an address", name, addr))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	return nil
}

func (c *CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ErrorThreshold == 0 {
		return fmt.Errorf("error threshold must be positive")
	}
	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive")
	}
	return nil
}

// MinProfit parses MinProfitWei; empty means zero
func (c *Config) MinProfit() (*uint256.Int, error) {
	if c.MinProfitWei == "" {
		return uint256.NewInt(0), nil
	}
	return uint256.FromDecimal(c.MinProfitWei)
}

// Settings converts the trading parameters for the orchestrator
func (c *Config) Settings() (orchestrator.Settings, error) {
	shape, err := orchestrator.ParseShapePolicy(c.Shape)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	minProfit, err := c.MinProfit()
	if err != nil {
		return orchestrator.Settings{}, apperror.Newf(apperror.CodeConfigurationError, "min_profit_wei: %v", err)
	}
	s := orchestrator.Settings{
		FeeV1:          c.FeeV1,
		FeeV2:          c.FeeV2,
		SlippageBps:    c.SlippageBps,
		DeadlineWindow: c.DeadlineWindow,
		Shape:          shape,
		MinProfit:      minProfit,
	}
	return s, s.Validate()
}

// CallerConfig converts the node access limits for the RPC adapter
func (c *Config) CallerConfig() uniswap.CallerConfig {
	cfg := uniswap.CallerConfig{
		RequestsPerSecond: c.RPCRateLimit.RequestsPerSecond,
		Burst:             c.RPCRateLimit.BurstSize,
		BreakerName:       "rpc",
	}
	if c.CircuitBreaker.Enabled {
		cfg.BreakerFailures = c.CircuitBreaker.ErrorThreshold
		cfg.BreakerTimeout = c.CircuitBreaker.CooldownPeriod
	}
	return cfg
}

// Address parses one of the configured contract addresses
func Address(name, hex string) (common.Address, error) {
	if hex == "" {
		return common.Address{}, apperror.Newf(apperror.CodeConfigurationError, "%s address is not configured", name)
	}
	if !common.IsHexAddress(hex) {
		return common.Address{}, apperror.Newf(apperror.CodeConfigurationError, "%s %q is not an address", name, hex)
	}
	return common.HexToAddress(hex), nil
}

func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigName), nil
}

// LoadConfig reads cfgFile (YAML by extension, JSON otherwise), applies
// CANDYARB_* environment overrides and validates the result. A missing file
// yields the defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfgFile = path
	}

	config := DefaultConfig()
	data, err := os.ReadFile(cfgFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		if err := decode(cfgFile, data, config); err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(cfgFile), apperror.WithCause(err))
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(config.Log.Options(config.Debug))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	config.Logger = logger
	return config, nil
}

func decode(path string, data []byte, into *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("failed to decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, into); err != nil {
			return fmt.Errorf("failed to decode json config: %w", err)
		}
	}
	return nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		cfgFile = path
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(cfgFile, data, 0o600)
}

// DefaultConfig trades mainnet DAI between its V1 exchange and V2 pair
func DefaultConfig() *Config {
	return &Config{
		RPCEndpoint: "http://localhost:8545",
		Contracts: ContractsConfig{
			V1Exchange: "0x2a1530C4C41db0B0b2bB646CB5Eb1A67b7158667",
			V2Pair:     "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11",
			Token:      "0x6B175474E89094C44Da98b954EedeAC495271d0F",
			WETH:       uniswap.MainnetWETH.Hex(),
		},
		FeeV1:          types.DefaultFee,
		FeeV2:          types.DefaultFee,
		DeadlineWindow: 300,
		SlippageBps:    50,
		Shape:          string(orchestrator.ShapeAuto),
		MinProfitWei:   "0",
		MaxRetries:     3,
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         5,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        true,
			ErrorThreshold: 5,
			CooldownPeriod: 30 * time.Second,
		},
		MetadataCacheSize: 128,
		Gas: GasConfig{
			PriceGwei:   "20",
			DirectUnits: 250000,
			BorrowUnits: 180000,
		},
		JournalPath: "candyarb.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Logger: zap.NewNop(),
	}
}
