// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SCIM_SYNC_GITHUB_SCIM_TOKEN.
const EnvPrefix = "SCIM_SYNC"

// NewConfig loads the TOML configuration file, an optional .env file next to
// it and environment overrides, then applies defaults and validation.
func NewConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, v := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, v)
			}
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")

	v.SetDefault("google.customer", "my_customer")

	v.SetDefault("sync.mode", "ou")
	v.SetDefault("sync.delete_suspended", false)
	v.SetDefault("sync.create_teams", true)
	v.SetDefault("sync.flatten_hierarchy", true)
	v.SetDefault("sync.include_suspended", true)
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"logging.file",
		"google.service_account_file",
		"google.subject_email",
		"google.customer",
		"github.scim_url",
		"github.scim_token",
		"github.emu_username_suffix",
		"sync.mode",
		"sync.delete_suspended",
		"sync.create_teams",
		"sync.flatten_hierarchy",
		"sync.include_suspended",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
