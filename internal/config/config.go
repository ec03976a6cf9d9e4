package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env       string `mapstructure:"VST_ENV"`
	HTTPAddr  string `mapstructure:"VST_HTTP_ADDR"`
	PublicURL string `mapstructure:"VST_PUBLIC_ORIGIN"`

	Chain    ChainConfig    `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Quotes   QuoteConfig    `mapstructure:",squash"`
	Jobs     JobsConfig     `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type ChainConfig struct {
	RPCURL  string `mapstructure:"VST_RPC_URL"`
	Network string `mapstructure:"VST_NETWORK"`

	PoolAddress       string `mapstructure:"VST_POOL_ADDRESS"`
	BuyBondAddress    string `mapstructure:"VST_BUY_BOND_ADDRESS"`
	SellBondAddress   string `mapstructure:"VST_SELL_BOND_ADDRESS"`
	TokenAddress      string `mapstructure:"VST_TOKEN_ADDRESS"`
	CollateralAddress string `mapstructure:"VST_COLLATERAL_ADDRESS"`

	TokenDecimals      int `mapstructure:"VST_TOKEN_DECIMALS"`
	CollateralDecimals int `mapstructure:"VST_COLLATERAL_DECIMALS"`
}

type CacheConfig struct {
	RedisAddr string `mapstructure:"VST_REDIS_ADDR"`
}

type QuoteConfig struct {
	RatesTTL time.Duration `mapstructure:"VST_RATES_TTL"`
	Debounce time.Duration `mapstructure:"VST_QUOTE_DEBOUNCE"`
}

type JobsConfig struct {
	VestingTick  time.Duration `mapstructure:"VST_VESTING_TICK"`
	ChainRefresh time.Duration `mapstructure:"VST_CHAIN_REFRESH"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"VST_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"VST_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("VST_ENV", "dev")
	viper.SetDefault("VST_HTTP_ADDR", ":8080")
	viper.SetDefault("VST_PUBLIC_ORIGIN", "http://localhost:3000")
	viper.SetDefault("VST_NETWORK", "localnet")
	viper.SetDefault("VST_RPC_URL", "http://localhost:8545")
	viper.SetDefault("VST_REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("VST_TOKEN_DECIMALS", 9)
	viper.SetDefault("VST_COLLATERAL_DECIMALS", 8)
	viper.SetDefault("VST_RATES_TTL", "5m")
	viper.SetDefault("VST_QUOTE_DEBOUNCE", "500ms")
	viper.SetDefault("VST_VESTING_TICK", "1s")
	viper.SetDefault("VST_CHAIN_REFRESH", "15s")
	viper.SetDefault("VST_RATE_LIMIT_RPM", 120)
	viper.SetDefault("VST_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	if origins := viper.GetString("VST_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("VST_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("VST_RPC_URL is required")
	}
	switch c.Chain.Network {
	case "localnet", "testnet", "mainnet":
	default:
		return fmt.Errorf("invalid VST_NETWORK %q (must be localnet, testnet, or mainnet)", c.Chain.Network)
	}

	addrs := map[string]string{
		"VST_POOL_ADDRESS":       c.Chain.PoolAddress,
		"VST_BUY_BOND_ADDRESS":   c.Chain.BuyBondAddress,
		"VST_SELL_BOND_ADDRESS":  c.Chain.SellBondAddress,
		"VST_TOKEN_ADDRESS":      c.Chain.TokenAddress,
		"VST_COLLATERAL_ADDRESS": c.Chain.CollateralAddress,
	}
	for name, addr := range addrs {
		if addr == "" {
			return fmt.Errorf("%s is required", name)
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}

	if c.Chain.TokenDecimals <= 0 || c.Chain.TokenDecimals > 36 {
		return fmt.Errorf("VST_TOKEN_DECIMALS out of range: %d", c.Chain.TokenDecimals)
	}
	if c.Chain.CollateralDecimals <= 0 || c.Chain.CollateralDecimals > 36 {
		return fmt.Errorf("VST_COLLATERAL_DECIMALS out of range: %d", c.Chain.CollateralDecimals)
	}
	if c.Quotes.Debounce < 0 {
		return fmt.Errorf("VST_QUOTE_DEBOUNCE must not be negative")
	}
	if c.Jobs.VestingTick <= 0 {
		return fmt.Errorf("VST_VESTING_TICK must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// Address accessors; validation guarantees these parse.

func (c *ChainConfig) Pool() common.Address       { return common.HexToAddress(c.PoolAddress) }
func (c *ChainConfig) BuyBond() common.Address    { return common.HexToAddress(c.BuyBondAddress) }
func (c *ChainConfig) SellBond() common.Address   { return common.HexToAddress(c.SellBondAddress) }
func (c *ChainConfig) Token() common.Address      { return common.HexToAddress(c.TokenAddress) }
func (c *ChainConfig) Collateral() common.Address { return common.HexToAddress(c.CollateralAddress) }
