package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stablecore/crypto"
)

// CollateralConfig is one genesis collateral entry. Scaled values are decimal
// strings so 1e18-precision parameters survive the TOML round trip.
type CollateralConfig struct {
	Symbol             string `toml:"Symbol"`
	Decimals           uint8  `toml:"Decimals"`
	Active             bool   `toml:"Active"`
	MinRange           string `toml:"MinRange"`
	MaxRange           string `toml:"MaxRange"`
	MCRFactor          string `toml:"MCRFactor"`
	BaseFee            string `toml:"BaseFee"`
	MaxFee             string `toml:"MaxFee"`
	MinNetDebt         string `toml:"MinNetDebt"`
	MintCap            string `toml:"MintCap"`
	LiquidationPenalty string `toml:"LiquidationPenalty"`
	OracleMaxAgeSec    int64  `toml:"OracleMaxAgeSeconds"`
	OracleDecimals     uint8  `toml:"OracleDecimals"`
}

// LogFileConfig selects the optional rotating log sink.
type LogFileConfig struct {
	Path       string `toml:"Path"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type Config struct {
	RPCAddress        string             `toml:"RPCAddress"`
	MetricsAddress    string             `toml:"MetricsAddress"`
	DataDir           string             `toml:"DataDir"`
	NetworkName       string             `toml:"NetworkName"`
	Environment       string             `toml:"Environment"`
	OwnerKeystorePath string             `toml:"OwnerKeystorePath"`
	StableSymbol      string             `toml:"StableSymbol"`
	Treasury          string             `toml:"Treasury"`
	RedemptionFee     string             `toml:"RedemptionFee"`
	RateLimitPerMin   float64            `toml:"RateLimitPerMinute"`
	RateLimitBurst    int                `toml:"RateLimitBurst"`
	LogFile           LogFileConfig      `toml:"LogFile"`
	Collateral        []CollateralConfig `toml:"Collateral"`
}

// Load loads the configuration from the given path, creating a default file
// with a fresh owner keystore on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = "127.0.0.1:9645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "stablecore-local"
	}
	if strings.TrimSpace(c.StableSymbol) == "" {
		c.StableSymbol = "STABLE"
	}
	if strings.TrimSpace(c.RedemptionFee) == "" {
		c.RedemptionFee = "0"
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 600
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	for i := range c.Collateral {
		if c.Collateral[i].Decimals == 0 {
			c.Collateral[i].Decimals = 18
		}
		if c.Collateral[i].OracleDecimals == 0 {
			c.Collateral[i].OracleDecimals = 18
		}
		if c.Collateral[i].OracleMaxAgeSec <= 0 {
			c.Collateral[i].OracleMaxAgeSec = 120
		}
	}
}

// Validate rejects malformed scaled values before the daemon touches state.
func (c *Config) Validate() error {
	if _, err := ParseAmount(c.RedemptionFee); err != nil {
		return fmt.Errorf("config: RedemptionFee: %w", err)
	}
	if trimmed := strings.TrimSpace(c.Treasury); trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return fmt.Errorf("config: Treasury: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for _, entry := range c.Collateral {
		symbol := strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: collateral entry missing Symbol")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate collateral %s", symbol)
		}
		seen[symbol] = struct{}{}
		for field, value := range map[string]string{
			"MinRange": entry.MinRange, "MaxRange": entry.MaxRange,
			"MCRFactor": entry.MCRFactor, "BaseFee": entry.BaseFee,
			"MaxFee": entry.MaxFee, "MinNetDebt": entry.MinNetDebt,
			"MintCap": entry.MintCap, "LiquidationPenalty": entry.LiquidationPenalty,
		} {
			if _, err := ParseAmount(value); err != nil {
				return fmt.Errorf("config: collateral %s %s: %w", symbol, field, err)
			}
		}
	}
	return nil
}

// ParseAmount decodes a non-negative decimal string; empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	return parsed, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "owner-keystore.json")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		OwnerKeystorePath: defaultKeystorePath(path),
	}
	cfg.applyDefaults()

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(cfg.OwnerKeystorePath, key, ""); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
