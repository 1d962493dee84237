package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node-level configuration for the engine daemon.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	InstanceID       uint64 `toml:"InstanceID"`
	NetworkName      string `toml:"NetworkName"`
	Environment      string `toml:"Environment"`
	FeeWallet        string `toml:"FeeWallet"`
	BlockTimeSeconds uint64 `toml:"BlockTimeSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./earlybird-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "earlybird-local"
	}
	if cfg.BlockTimeSeconds == 0 {
		cfg.BlockTimeSeconds = 2
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.InstanceID == 0 {
		return fmt.Errorf("config: InstanceID must be set to this chain instance's id")
	}
	if wallet := strings.TrimSpace(c.FeeWallet); wallet != "" {
		trimmed := strings.TrimPrefix(wallet, "0x")
		if len(trimmed) != 40 {
			return fmt.Errorf("config: FeeWallet must be a 20-byte hex address")
		}
	}
	return nil
}

// FeeWalletAddress decodes the configured fee wallet. An empty setting yields
// the zero address; fees then accumulate nowhere until an operator sets one.
func (c *Config) FeeWalletAddress() ([20]byte, error) {
	var addr [20]byte
	wallet := strings.TrimSpace(c.FeeWallet)
	if wallet == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(wallet, "0x"))
	if err != nil || len(raw) != 20 {
		return addr, fmt.Errorf("config: FeeWallet must be a 20-byte hex address")
	}
	copy(addr[:], raw)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{InstanceID: 1}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
