// Package config loads and persists engram's configuration.
// Precedence: environment > config file > defaults.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Version   string          `mapstructure:"version" yaml:"version"`
	OwnerID   string          `mapstructure:"owner_id" yaml:"owner_id"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Cloud     CloudConfig     `mapstructure:"cloud" yaml:"cloud"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug|info|warn|error
	Format string `mapstructure:"format" yaml:"format"` // console|json
	File   string `mapstructure:"file" yaml:"file"`     // empty = stderr
}

// StorageConfig holds local sqlite settings.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // sqlite file, "" = default
}

// CloudConfig holds the managed Postgres/pgvector connection settings.
// Disabled or DSN-less configurations run local-only.
type CloudConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	DSN     string        `mapstructure:"dsn" yaml:"dsn"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EmbeddingConfig holds the local embedding server settings.
type EmbeddingConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Dimensions  int           `mapstructure:"dimensions" yaml:"dimensions"`
	CacheSize   int           `mapstructure:"cache_size" yaml:"cache_size"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SearchConfig holds hybrid search tuning knobs.
type SearchConfig struct {
	MaxItems          int           `mapstructure:"max_items" yaml:"max_items"`
	LocalMinResults   int           `mapstructure:"local_min_results" yaml:"local_min_results"`
	DefaultLimit      int           `mapstructure:"default_limit" yaml:"default_limit"`
	SemanticThreshold float64       `mapstructure:"semantic_threshold" yaml:"semantic_threshold"`
	PersistDebounce   time.Duration `mapstructure:"persist_debounce" yaml:"persist_debounce"`
	ResyncDelay       time.Duration `mapstructure:"resync_delay" yaml:"resync_delay"`
	ResyncLimit       int           `mapstructure:"resync_limit" yaml:"resync_limit"`
	ContextFacts      int           `mapstructure:"context_facts" yaml:"context_facts"`
	ContextMessages   int           `mapstructure:"context_messages" yaml:"context_messages"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the config file at path (or only env + defaults when path
// is empty) and makes the result the process-wide config.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("ENGRAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expanded

		viper.SetConfigFile(expanded)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file falls through to defaults; a malformed one
			// is a hard error.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			if !os.IsNotExist(err) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the process-wide config, nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Set updates a config value and persists it when a file path is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current settings back to the config file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	// 0600: the file may carry the cloud DSN with credentials.
	return os.WriteFile(configPath, data, 0600)
}

// Reset clears the process-wide state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
