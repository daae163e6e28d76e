package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the root runtime configuration for the synthvault daemon.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Engine  Engine  `toml:"engine"`
	Assets  []Asset `toml:"assets"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Listen string `toml:"Listen"`
}

// Storage selects the key-value backend. An empty path runs in memory.
type Storage struct {
	Path string `toml:"Path"`
}

// Engine carries the risk parameters applied at construction.
type Engine struct {
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
}

// Asset describes one approved collateral asset and its oracle feed.
type Asset struct {
	Symbol   string `toml:"Symbol"`
	Token    string `toml:"Token"`
	Feed     string `toml:"Feed"`
	Decimals uint8  `toml:"Decimals"`
	// PriceSeed optionally seeds the static oracle feed at startup, expressed
	// in the feed's native decimals.
	PriceSeed string `toml:"PriceSeed"`
}

// Default returns the configuration applied when fields are left unset.
func Default() Config {
	return Config{
		Server: Server{Listen: "127.0.0.1:8681"},
		Engine: Engine{
			LiquidationThresholdBps: 5_000,
			LiquidationBonusBps:     1_000,
		},
	}
}

// Load reads a TOML configuration file, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Engine.LiquidationThresholdBps == 0 {
		c.Engine.LiquidationThresholdBps = defaults.Engine.LiquidationThresholdBps
	}
	if c.Engine.LiquidationBonusBps == 0 {
		c.Engine.LiquidationBonusBps = defaults.Engine.LiquidationBonusBps
	}
}

// Validate rejects configurations the engine could not be constructed from.
func (c *Config) Validate() error {
	if c.Engine.LiquidationThresholdBps == 0 || c.Engine.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("config: LiquidationThresholdBps must be in (0, 10000], got %d", c.Engine.LiquidationThresholdBps)
	}
	if c.Engine.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("config: LiquidationBonusBps must be below 10000, got %d", c.Engine.LiquidationBonusBps)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset is required")
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("config: asset %d missing Symbol", i)
		}
		token, err := parseAddress(asset.Token)
		if err != nil {
			return fmt.Errorf("config: asset %s: invalid Token: %w", asset.Symbol, err)
		}
		if _, dup := seen[token]; dup {
			return fmt.Errorf("config: asset %s: duplicate Token %s", asset.Symbol, asset.Token)
		}
		seen[token] = struct{}{}
		if _, err := parseAddress(asset.Feed); err != nil {
			return fmt.Errorf("config: asset %s: invalid Feed: %w", asset.Symbol, err)
		}
		if asset.Decimals == 0 || asset.Decimals > 18 {
			return fmt.Errorf("config: asset %s: Decimals must be in [1, 18], got %d", asset.Symbol, asset.Decimals)
		}
		if strings.TrimSpace(asset.PriceSeed) != "" {
			if _, err := asset.ParsedPriceSeed(); err != nil {
				return fmt.Errorf("config: asset %s: %w", asset.Symbol, err)
			}
		}
	}
	return nil
}

// TokenAddress returns the parsed collateral token identity.
func (a Asset) TokenAddress() common.Address {
	addr, _ := parseAddress(a.Token)
	return addr
}

// FeedAddress returns the parsed oracle feed identity.
func (a Asset) FeedAddress() common.Address {
	addr, _ := parseAddress(a.Feed)
	return addr
}

// ParsedPriceSeed parses the optional startup price.
func (a Asset) ParsedPriceSeed() (*big.Int, error) {
	trimmed := strings.TrimSpace(a.PriceSeed)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid PriceSeed %q", a.PriceSeed)
	}
	return value, nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}
