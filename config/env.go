package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/michaelpento.lv/candyarb/utils/apperror"
)

// Environment variables
const (
	EnvRPCEndpoint  = "CANDYARB_RPC_ENDPOINT"
	EnvAccount      = "CANDYARB_ACCOUNT"
	EnvV1Exchange   = "CANDYARB_V1_EXCHANGE"
	EnvV2Pair       = "CANDYARB_V2_PAIR"
	EnvToken        = "CANDYARB_TOKEN"
	EnvWETH         = "CANDYARB_WETH"
	EnvShape        = "CANDYARB_SHAPE"
	EnvSlippageBps  = "CANDYARB_SLIPPAGE_BPS"
	EnvDeadline     = "CANDYARB_DEADLINE_WINDOW"
	EnvMinProfitWei = "CANDYARB_MIN_PROFIT_WEI"
	EnvMaxRetries   = "CANDYARB_MAX_RETRIES"
	EnvJournalPath  = "CANDYARB_JOURNAL"
	EnvGasPriceGwei = "CANDYARB_GAS_PRICE_GWEI"
	EnvLogLevel     = "CANDYARB_LOG_LEVEL"
	EnvLogFormat    = "CANDYARB_LOG_FORMAT"
)

// LoadEnv loads environment variables from .env files. A missing file is not an error.
func LoadEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func applyEnv(c *Config) error {
	overrides := map[string]*string{
		EnvRPCEndpoint:  &c.RPCEndpoint,
		EnvAccount:      &c.Contracts.Account,
		EnvV1Exchange:   &c.Contracts.V1Exchange,
		EnvV2Pair:       &c.Contracts.V2Pair,
		EnvToken:        &c.Contracts.Token,
		EnvWETH:         &c.Contracts.WETH,
		EnvShape:        &c.Shape,
		EnvMinProfitWei: &c.MinProfitWei,
		EnvJournalPath:  &c.JournalPath,
		EnvGasPriceGwei: &c.Gas.PriceGwei,
		EnvLogLevel:     &c.Log.Level,
		EnvLogFormat:    &c.Log.Format,
	}
	for key, field := range overrides {
		*field = GetEnvWithDefault(key, *field)
	}

	if v := os.Getenv(EnvSlippageBps); v != "" {
		bps, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return envError(EnvSlippageBps, err)
		}
		c.SlippageBps = uint32(bps)
	}
	if v := os.Getenv(EnvDeadline); v != "" {
		window, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError(EnvDeadline, err)
		}
		c.DeadlineWindow = window
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvMaxRetries, err)
		}
		c.MaxRetries = retries
	}
	return nil
}

func envError(key string, err error) error {
	return apperror.New(apperror.CodeConfigurationError, apperror.WithContext(key), apperror.WithCause(err))
}
