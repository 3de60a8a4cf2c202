package config

// Config is the root configuration structure for gitpulse.
// Serialised to ~/.gitpulse/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	GitHub   GitHubConfig   `mapstructure:"github"   json:"github"`
	Indexer  IndexerConfig  `mapstructure:"indexer"  json:"indexer"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  json:"metrics"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// GitHubConfig holds credentials and endpoint settings for the upstream
// provider instance.
type GitHubConfig struct {
	// Host allows enterprise GitHub (e.g. github.mycompany.com).
	Host string `mapstructure:"host" json:"host"`
	// OAuthAppSecret is the app client secret used as the last-resort
	// credential for public repositories.
	OAuthAppSecret string `mapstructure:"oauth_app_secret" json:"oauth_app_secret"`
	// EnforceScopes gates strict token-scope validation before use.
	EnforceScopes bool `mapstructure:"enforce_scopes" json:"enforce_scopes"`
}

// IndexerConfig controls the indexing engine.
type IndexerConfig struct {
	// Service selects the commit ingestion path: "api" (default) or "git_local".
	Service string `mapstructure:"service" json:"service"`
	// Workers is the number of parallel dispatcher goroutines.
	Workers int `mapstructure:"workers" json:"workers"`
	// TmpDir is where local-clone scratch directories are created.
	TmpDir string `mapstructure:"tmp_dir" json:"tmp_dir"`
	// RateThresholds overrides the per-entity core-remaining floor below
	// which a run defers instead of starting.
	RateThresholds map[string]int `mapstructure:"rate_thresholds" json:"rate_thresholds"`
	// BatchSizeDays overrides the per-entity backfill window width.
	BatchSizeDays map[string]int `mapstructure:"batch_size_days" json:"batch_size_days"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	// Port is the localhost port /metrics is served on; 0 disables it.
	Port int `mapstructure:"port" json:"port"`
}
