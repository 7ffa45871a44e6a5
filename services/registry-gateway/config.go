package registrygateway

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config describes the runtime configuration for the registry gateway.
type Config struct {
	ListenAddress      string            `toml:"ListenAddress"`
	DatabasePath       string            `toml:"DatabasePath"`
	DNSServer          string            `toml:"DNSServer"`
	ReviewSchemaID     string            `toml:"ReviewSchemaID"`
	RPCGateway         string            `toml:"RPCGateway"`
	RPCOverrides       map[string]string `toml:"RPCOverrides"`
	RateLimitPerSecond float64           `toml:"RateLimitPerSecond"`
	RateLimitBurst     int               `toml:"RateLimitBurst"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:      ":8096",
		DatabasePath:       "registry-gateway.db",
		ReviewSchemaID:     "",
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
	}
}

// LoadConfig reads the TOML configuration at path. A missing file yields the
// defaults; unknown keys are reported as an error so typos surface early.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8096"
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	return cfg, nil
}

// EndpointOverrides converts the string-keyed TOML override table into the
// chain-id map the prober expects.
func (c *Config) EndpointOverrides() (map[uint64]string, error) {
	overrides := make(map[uint64]string, len(c.RPCOverrides))
	for key, endpoint := range c.RPCOverrides {
		chainID, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in RPCOverrides", key)
		}
		overrides[chainID] = endpoint
	}
	return overrides, nil
}
