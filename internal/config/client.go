package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig drives cmd/client.
type ClientConfig struct {
	APIURL    string        `mapstructure:"api_url"`
	SocketURL string        `mapstructure:"socket_url"`
	Email     string        `mapstructure:"email"`
	LogLevel  string        `mapstructure:"log_level"`
	Feed      FeedSettings  `mapstructure:"feed"`
	Grace     time.Duration `mapstructure:"revoke_grace"`
	StatePath string        `mapstructure:"state_path"`
	// Retention bounds how long processed notification ids are kept.
	Retention time.Duration   `mapstructure:"retention"`
	Keyring   KeyringSettings `mapstructure:"keyring"`
}

type FeedSettings struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type KeyringSettings struct {
	Service string `mapstructure:"service"`
	FileDir string `mapstructure:"file_dir"`
}

// DefaultClientConfigPath is ~/.config/taskeer/client.yaml.
func DefaultClientConfigPath() string {
	dir := configDir()
	return filepath.Join(dir, "client.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskeer")
}

// LoadClient reads the yaml file at path, overlaid by TASKEER_* environment
// variables. A missing file yields the defaults.
func LoadClient(path string) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:3001")
	v.SetDefault("socket_url", "")
	v.SetDefault("email", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("feed.poll_interval", 30*time.Second)
	v.SetDefault("feed.probe_interval", 10*time.Second)
	v.SetDefault("revoke_grace", 2*time.Second)
	v.SetDefault("state_path", filepath.Join(configDir(), "state.db"))
	v.SetDefault("retention", 30*24*time.Hour)
	v.SetDefault("keyring.service", "taskeer")
	v.SetDefault("keyring.file_dir", filepath.Join(configDir(), "credentials"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = cfg.APIURL
	}
	return cfg, nil
}
