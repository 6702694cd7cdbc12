package config

// Package config provides a reusable loader for duniter-node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"duniter-core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a duniter-node process. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Node struct {
		Currency string `mapstructure:"currency" json:"currency"`
		DataDir  string `mapstructure:"data_dir" json:"data_dir"`
		PubKey   string `mapstructure:"pubkey" json:"pubkey"`
		SeedPath string `mapstructure:"seed_path" json:"seed_path"`
	} `mapstructure:"node" json:"node"`

	WS2P struct {
		ListenAddr           string   `mapstructure:"listen_addr" json:"listen_addr"`
		Port                 int      `mapstructure:"port" json:"port"`
		OutgoingQuota        int      `mapstructure:"outgoing_quota" json:"outgoing_quota"`
		IncomingQuota        int      `mapstructure:"incoming_quota" json:"incoming_quota"`
		PreferredEndpoints   []string `mapstructure:"preferred_endpoints" json:"preferred_endpoints"`
		SpamLimit            int      `mapstructure:"spam_limit" json:"spam_limit"`
		SpamIntervalInMillis int      `mapstructure:"spam_interval_ms" json:"spam_interval_ms"`
	} `mapstructure:"ws2p" json:"ws2p"`

	Sync struct {
		ChunkSize        int `mapstructure:"chunk_size" json:"chunk_size"`
		MaxBlocksRequest int `mapstructure:"max_blocks_request" json:"max_blocks_request"`
	} `mapstructure:"sync" json:"sync"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is not an error

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up DUNITER_* overrides from the shell/.env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DUNITER_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DUNITER_ENV", ""))
}
