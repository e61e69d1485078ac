package config

import (
	"fmt"
	"strings"

	"ammEngine/internal/model"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime settings loaded from flags, env, or config file.
type Config struct {
	PGDSN          string
	JournalPath    string
	LogLevel       string
	SupportedCoins []string
	MinSlippage    string
	MaxSlippage    string
	MinLiquidity   string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("journal", "./data/snapshots.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("min-slippage", "0")
	v.SetDefault("max-slippage", "0.5")
	v.SetDefault("min-liquidity", "1")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PGDSN:          v.GetString("pg-dsn"),
		JournalPath:    v.GetString("journal"),
		LogLevel:       v.GetString("log-level"),
		SupportedCoins: v.GetStringSlice("coins"),
		MinSlippage:    v.GetString("min-slippage"),
		MaxSlippage:    v.GetString("max-slippage"),
		MinLiquidity:   v.GetString("min-liquidity"),
	}

	return cfg, nil
}

// Limits parses the configured validation bounds. Unparseable values fail the
// load rather than silently defaulting.
func (c Config) Limits() (model.Limits, error) {
	minSlippage, err := decimal.NewFromString(c.MinSlippage)
	if err != nil {
		return model.Limits{}, fmt.Errorf("parse min-slippage: %w", err)
	}
	maxSlippage, err := decimal.NewFromString(c.MaxSlippage)
	if err != nil {
		return model.Limits{}, fmt.Errorf("parse max-slippage: %w", err)
	}
	minLiquidity, err := decimal.NewFromString(c.MinLiquidity)
	if err != nil {
		return model.Limits{}, fmt.Errorf("parse min-liquidity: %w", err)
	}
	return model.Limits{
		MinSlippage:          minSlippage,
		MaxSlippage:          maxSlippage,
		MinPositionLiquidity: minLiquidity,
	}, nil
}

// Coins builds the supported-coin set. An empty list accepts every symbol.
func (c Config) Coins() model.CoinSet {
	if len(c.SupportedCoins) == 0 {
		return nil
	}
	return model.NewCoinSet(c.SupportedCoins...)
}
