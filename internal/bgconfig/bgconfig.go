// Package bgconfig loads pipeline configuration from a YAML file merged with
// BITCOINGRAPH_-prefixed environment variables, the way
// orbas1-Synnergy/synnergy-network/pkg/config loads node configuration with
// viper.
package bgconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NodeConfig describes how to reach the Bitcoin full node RPC interface.
type NodeConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	RPCUser    string `mapstructure:"rpc_user"`
	RPCPass    string `mapstructure:"rpc_pass"`
	Transport  string `mapstructure:"transport"`   // "rpc" or "rest"
	TimeoutMS  int    `mapstructure:"timeout_ms"`
	RetryCount int    `mapstructure:"retry_count"`
	RetryWaitS int    `mapstructure:"retry_wait_seconds"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// DumpConfig describes the dump writer's output conventions.
type DumpConfig struct {
	Delimiter          string `mapstructure:"delimiter"`
	PlainHeader        bool   `mapstructure:"plain_header"`
	SeparateHeaderFile bool   `mapstructure:"separate_header_file"`
	DedupTransactions  bool   `mapstructure:"dedup_transactions"`
}

// EntityConfig describes entity-resolution defaults.
type EntityConfig struct {
	IncludeUnspentSingletons bool `mapstructure:"include_unspent_singletons"`
	SQLiteAudit              bool `mapstructure:"sqlite_audit"`
}

// Config is the unified pipeline configuration.
type Config struct {
	Node    NodeConfig   `mapstructure:"node"`
	Dump    DumpConfig   `mapstructure:"dump"`
	Entity  EntityConfig `mapstructure:"entity"`
	Logging struct {
		Level string `mapstructure:"level"`
		Dev   bool   `mapstructure:"dev"`
	} `mapstructure:"logging"`
}

// Default returns the configuration baseline applied before any file or
// environment override.
func Default() Config {
	var c Config
	c.Node = NodeConfig{
		Host:       "127.0.0.1",
		Port:       8332,
		Transport:  "rpc",
		TimeoutMS:  30000,
		RetryCount: 5,
		RetryWaitS: 10,
		PoolSize:   1,
	}
	c.Dump = DumpConfig{
		Delimiter:          ",",
		PlainHeader:        false,
		SeparateHeaderFile: true,
		DedupTransactions:  true,
	}
	c.Entity = EntityConfig{
		IncludeUnspentSingletons: false,
		SQLiteAudit:              false,
	}
	c.Logging.Level = "info"
	return c
}

// Load reads configFile (if non-empty) and merges BITCOINGRAPH_-prefixed
// environment variables over it, falling back to Default() for anything
// unset.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	cfg := Default()

	v.SetEnvPrefix("BITCOINGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only consults keys viper already knows, so every setting is
	// bound to its environment variable explicitly.
	for _, key := range []string{
		"node.host", "node.port", "node.rpc_user", "node.rpc_pass", "node.transport",
		"node.timeout_ms", "node.retry_count", "node.retry_wait_seconds", "node.pool_size",
		"dump.delimiter", "dump.plain_header", "dump.separate_header_file", "dump.dedup_transactions",
		"entity.include_unspent_singletons", "entity.sqlite_audit", "logging.level", "logging.dev",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bgconfig: bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("bgconfig: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("bgconfig: unmarshal config: %w", err)
	}
	return &cfg, nil
}
