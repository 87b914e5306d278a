// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides, e.g. HARVESTER_FETCH_CONCURRENCY=4.
const EnvPrefix = "HARVESTER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Analyze AnalyzeConfig `mapstructure:"analyze"`
	Export  ExportConfig  `mapstructure:"export"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs index pagination.
type CrawlConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	StartDate        string        `mapstructure:"start_date"`
	OldestDate       string        `mapstructure:"oldest_date"`
	CacheEnabled     bool          `mapstructure:"cache_enabled"`
	CacheDir         string        `mapstructure:"cache_dir"`
	UnavailableDelay time.Duration `mapstructure:"unavailable_delay"`
	UserAgent        string        `mapstructure:"user_agent"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// FetchConfig governs per-thread archive retrieval.
type FetchConfig struct {
	OutputDir         string        `mapstructure:"output_dir"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffUnit       time.Duration `mapstructure:"backoff_unit"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	MaxTitleLength    int           `mapstructure:"max_title_length"`
	TitleHashSuffix   bool          `mapstructure:"title_hash_suffix"`
	RecoveryPasses    int           `mapstructure:"recovery_passes"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	// JournalName is the JSON-lines run journal inside OutputDir; empty disables it.
	JournalName       string        `mapstructure:"journal_name"`
}

// AnalyzeConfig governs the archive walk and aggregation.
type AnalyzeConfig struct {
	InputDir         string   `mapstructure:"input_dir"`
	ArchiveExt       string   `mapstructure:"archive_ext"`
	BoundaryMarker   string   `mapstructure:"boundary_marker"`
	FilteredSenders  []string `mapstructure:"filtered_senders"`
	ParseConcurrency int      `mapstructure:"parse_concurrency"`
	FileLimit        int      `mapstructure:"file_limit"`
	ThreadKey        string   `mapstructure:"thread_key"`
	TopCount         int      `mapstructure:"top_count"`
	ReportPath       string   `mapstructure:"report_path"`
}

// ExportConfig selects where tabular rows are flushed.
type ExportConfig struct {
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig controls the standalone metrics listener used during fetch.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Export formats understood by the analyze command.
const (
	ExportNone     = "none"
	ExportCSV      = "csv"
	ExportSQLite   = "sqlite"
	ExportPostgres = "postgres"
)

// Thread key strategies.
const (
	ThreadKeySubject   = "subject"
	ThreadKeyComposite = "composite"
)

// SearchPaths are scanned for harvester.{yaml,json,toml} when no config file
// is given explicitly.
var SearchPaths = []string{".", "$HOME/.harvester", "/etc/harvester"}

// Load builds a Config from disk/environment using a fresh Viper instance.
func Load(path string) (Config, error) {
	v := viper.New()
	return LoadFrom(v, path)
}

// LoadFrom builds a Config from v, which may already carry bound CLI flags.
// An empty path searches SearchPaths; finding nothing there is not an error.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("harvester")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawl.base_url", "")
	v.SetDefault("crawl.start_date", "")
	v.SetDefault("crawl.oldest_date", "")
	v.SetDefault("crawl.cache_enabled", true)
	v.SetDefault("crawl.cache_dir", ".")
	v.SetDefault("crawl.unavailable_delay", "10s")
	v.SetDefault("crawl.user_agent", "lore-harvester/1.0 (+https://github.com/JakeFAU/lore-harvester)")
	v.SetDefault("crawl.request_timeout", "30s")

	v.SetDefault("fetch.output_dir", "b4_threads")
	v.SetDefault("fetch.concurrency", 10)
	v.SetDefault("fetch.max_retries", 4)
	v.SetDefault("fetch.backoff_unit", "1s")
	v.SetDefault("fetch.connect_timeout", "10s")
	v.SetDefault("fetch.read_timeout", "60s")
	v.SetDefault("fetch.max_title_length", 200)
	v.SetDefault("fetch.title_hash_suffix", false)
	v.SetDefault("fetch.recovery_passes", 3)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.journal_name", "fetch-journal.jsonl")

	v.SetDefault("analyze.input_dir", "b4_threads")
	v.SetDefault("analyze.archive_ext", ".mbx")
	v.SetDefault("analyze.boundary_marker", "From mboxrd@z")
	v.SetDefault("analyze.filtered_senders", []string{"syzbot", "patchwork-bot"})
	v.SetDefault("analyze.parse_concurrency", 4)
	v.SetDefault("analyze.file_limit", 0)
	v.SetDefault("analyze.thread_key", ThreadKeySubject)
	v.SetDefault("analyze.top_count", 10)
	v.SetDefault("analyze.report_path", "")

	v.SetDefault("export.format", ExportNone)
	v.SetDefault("export.path", "")
	v.SetDefault("export.dsn", "")
	v.SetDefault("export.table", "thread_rows")

	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.listen_addr", "")
}

// ValidateFetch enforces the values the fetch command depends on.
func (c Config) ValidateFetch() error {
	if strings.TrimSpace(c.Crawl.BaseURL) == "" {
		return fmt.Errorf("crawl.base_url must be set")
	}
	if strings.TrimSpace(c.Crawl.OldestDate) == "" {
		return fmt.Errorf("crawl.oldest_date must be set")
	}
	if c.Crawl.CacheEnabled && c.Crawl.CacheDir == "" {
		return fmt.Errorf("crawl.cache_dir must be set when the cache is enabled")
	}
	if c.Crawl.UnavailableDelay < 0 {
		return fmt.Errorf("crawl.unavailable_delay must be >= 0")
	}
	if c.Crawl.RequestTimeout <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0")
	}
	if c.Fetch.OutputDir == "" {
		return fmt.Errorf("fetch.output_dir must be set")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.ConnectTimeout <= 0 || c.Fetch.ReadTimeout <= 0 {
		return fmt.Errorf("fetch.connect_timeout and fetch.read_timeout must be > 0")
	}
	if c.Fetch.MaxTitleLength <= 0 {
		return fmt.Errorf("fetch.max_title_length must be > 0")
	}
	if c.Fetch.RecoveryPasses < 0 {
		return fmt.Errorf("fetch.recovery_passes must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be >= 0")
	}
	return nil
}

// ValidateAnalyze enforces the values the analyze and serve commands depend on.
func (c Config) ValidateAnalyze() error {
	if c.Analyze.InputDir == "" {
		return fmt.Errorf("analyze.input_dir must be set")
	}
	if c.Analyze.BoundaryMarker == "" {
		return fmt.Errorf("analyze.boundary_marker must be set")
	}
	if c.Analyze.ParseConcurrency <= 0 {
		return fmt.Errorf("analyze.parse_concurrency must be > 0")
	}
	switch c.Analyze.ThreadKey {
	case ThreadKeySubject, ThreadKeyComposite:
	default:
		return fmt.Errorf("analyze.thread_key must be %q or %q", ThreadKeySubject, ThreadKeyComposite)
	}
	switch c.Export.Format {
	case ExportNone, "":
	case ExportCSV, ExportSQLite:
		if c.Export.Path == "" {
			return fmt.Errorf("export.path must be set for %s export", c.Export.Format)
		}
	case ExportPostgres:
		if c.Export.DSN == "" {
			return fmt.Errorf("export.dsn must be set for postgres export")
		}
	default:
		return fmt.Errorf("unknown export.format %q", c.Export.Format)
	}
	return nil
}

// ValidateServer enforces the read API settings.
func (c Config) ValidateServer() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return c.ValidateAnalyze()
}
