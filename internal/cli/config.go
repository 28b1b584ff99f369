package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr          string `yaml:"listen_addr"           mapstructure:"listen_addr"`
	PolicyBackend       string `yaml:"policy_backend"        mapstructure:"policy_backend"` // "memory" or "redis"
	RedisAddr           string `yaml:"redis_addr"            mapstructure:"redis_addr"`
	FGAEndpoint         string `yaml:"fga_endpoint"          mapstructure:"fga_endpoint"`
	RevalidationSeconds int    `yaml:"revalidation_seconds"  mapstructure:"revalidation_seconds"`
	KeyDir              string `yaml:"key_dir"               mapstructure:"key_dir"`
}

func ensureDir(p string) error { return os.MkdirAll(p, 0o755) }

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gatehouse"), nil
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("listen_addr", ":8089")
	v.SetDefault("policy_backend", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("fga_endpoint", "")
	v.SetDefault("revalidation_seconds", 300)
	v.SetDefault("key_dir", "")

	// Env overrides: GATEHOUSE_LISTEN_ADDR, GATEHOUSE_POLICY_BACKEND, etc.
	v.SetEnvPrefix("GATEHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read file if it exists, otherwise return defaults without error
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func saveConfig(path string, c *Config) error {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("listen_addr", c.ListenAddr)
	v.Set("policy_backend", c.PolicyBackend)
	v.Set("redis_addr", c.RedisAddr)
	v.Set("fga_endpoint", c.FGAEndpoint)
	v.Set("revalidation_seconds", c.RevalidationSeconds)
	v.Set("key_dir", c.KeyDir)

	if err := v.WriteConfigAs(path); err != nil {
		return err
	}

	// Restrict perms to owner
	_ = os.Chmod(path, 0o600)
	return nil
}
