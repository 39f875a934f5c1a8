package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default for every configuration key.
func SetDefaults() {
	viper.SetDefault("owner_id", "default")

	// Server
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8187)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage
	viper.SetDefault("storage.path", "")

	// Cloud store
	viper.SetDefault("cloud.enabled", false)
	viper.SetDefault("cloud.dsn", "")
	viper.SetDefault("cloud.timeout", 3*time.Second)

	// Embedding server
	viper.SetDefault("embedding.endpoint", "http://127.0.0.1:8080")
	viper.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedding.dimensions", 384)
	viper.SetDefault("embedding.cache_size", 1000)
	viper.SetDefault("embedding.concurrency", 5)
	viper.SetDefault("embedding.timeout", 10*time.Second)

	// Search
	viper.SetDefault("search.max_items", 5000)
	viper.SetDefault("search.local_min_results", 5)
	viper.SetDefault("search.default_limit", 20)
	viper.SetDefault("search.semantic_threshold", 0.6)
	viper.SetDefault("search.persist_debounce", 300*time.Millisecond)
	viper.SetDefault("search.resync_delay", 5*time.Second)
	viper.SetDefault("search.resync_limit", 2000)
	viper.SetDefault("search.context_facts", 5)
	viper.SetDefault("search.context_messages", 10)
}
