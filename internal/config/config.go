// Package config loads newsagg configuration from file, environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
	"github.com/JakeFAU/realtime-news-aggregator/internal/output"
	"github.com/JakeFAU/realtime-news-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-news-aggregator/internal/retry"
	"github.com/JakeFAU/realtime-news-aggregator/internal/validate"
)

const envPrefix = "NEWSAGG"

// DefaultUserAgent is sent with every request unless fetch.user_agent overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Output backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config is the root configuration structure.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Validation ValidationConfig `mapstructure:"validation"`
	Output     OutputConfig     `mapstructure:"output"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Sources    []news.Source    `mapstructure:"sources"`
}

// LoggingConfig selects the zap encoder and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig controls downloads, retries, and the worker pool.
type FetchConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxWorkers        int           `mapstructure:"max_workers"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxItemsPerSource int           `mapstructure:"max_items_per_source"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	PerHostRPS        float64       `mapstructure:"per_host_rps"`
	PerHostBurst      int           `mapstructure:"per_host_burst"`
}

// BatchConfig controls the merged output.
type BatchConfig struct {
	MaxTotal            int `mapstructure:"max_total"`
	TimezoneOffsetHours int `mapstructure:"timezone_offset_hours"`
}

// ValidationConfig holds the global acceptance thresholds.
type ValidationConfig struct {
	MinTitleLength int      `mapstructure:"min_title_length"`
	MaxTitleLength int      `mapstructure:"max_title_length"`
	Blocklist      []string `mapstructure:"blocklist"`
}

// OutputConfig selects where the artifacts are written.
type OutputConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	Prefix      string `mapstructure:"prefix"`
	JSONName    string `mapstructure:"json_name"`
	SummaryName string `mapstructure:"summary_name"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
}

// PostgresConfig configures the optional record store. An empty DSN disables it.
type PostgresConfig struct {
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	BatchTable string `mapstructure:"batch_table"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// PubSubConfig configures the optional completion notice. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig configures the optional Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushGatewayURL string `mapstructure:"push_gateway_url"`
	Job            string `mapstructure:"job"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// Load reads configuration from the optional file path and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.request_timeout", 10*time.Second)
	v.SetDefault("fetch.max_workers", 3)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_delay", time.Second)
	v.SetDefault("fetch.max_items_per_source", 15)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.per_host_rps", 0.0)
	v.SetDefault("fetch.per_host_burst", 1)

	v.SetDefault("batch.max_total", 0)
	v.SetDefault("batch.timezone_offset_hours", 8)

	v.SetDefault("validation.min_title_length", 12)
	v.SetDefault("validation.max_title_length", 200)
	v.SetDefault("validation.blocklist", []string{})

	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.prefix", "")
	v.SetDefault("output.json_name", output.DefaultJSONName)
	v.SetDefault("output.summary_name", output.DefaultSummaryName)
	v.SetDefault("output.gcs_bucket", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "news_records")
	v.SetDefault("postgres.batch_table", "news_batches")
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("metrics.push_gateway_url", "")
	v.SetDefault("metrics.job", "newsagg")

	v.SetDefault("schedule.cron", "*/30 * * * *")
}

// Validate performs sanity checks on the loaded configuration.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, reason string) {
		if !ok {
			errs = append(errs, &news.ConfigurationError{Field: field, Reason: reason})
		}
	}

	check(c.Fetch.RequestTimeout > 0, "fetch.request_timeout", "must be > 0")
	check(c.Fetch.MaxWorkers > 0, "fetch.max_workers", "must be > 0")
	check(c.Fetch.MaxRetries >= 0, "fetch.max_retries", "must be >= 0")
	check(c.Fetch.RetryDelay >= 0, "fetch.retry_delay", "must be >= 0")
	check(c.Fetch.MaxItemsPerSource > 0, "fetch.max_items_per_source", "must be > 0")
	check(c.Fetch.PerHostRPS >= 0, "fetch.per_host_rps", "must be >= 0")
	check(c.Batch.MaxTotal >= 0, "batch.max_total", "must be >= 0")
	check(c.Batch.TimezoneOffsetHours >= -12 && c.Batch.TimezoneOffsetHours <= 14,
		"batch.timezone_offset_hours", "must be between -12 and 14")
	check(c.Validation.MinTitleLength >= 0, "validation.min_title_length", "must be >= 0")
	check(c.Validation.MaxTitleLength == 0 || c.Validation.MaxTitleLength >= c.Validation.MinTitleLength,
		"validation.max_title_length", "must be 0 or >= validation.min_title_length")

	switch c.Output.Backend {
	case BackendLocal:
		check(strings.TrimSpace(c.Output.Dir) != "", "output.dir", "is required for the local backend")
	case BackendGCS:
		check(strings.TrimSpace(c.Output.GCSBucket) != "", "output.gcs_bucket", "is required for the gcs backend")
	case BackendMemory:
	default:
		check(false, "output.backend", fmt.Sprintf("unknown backend %q", c.Output.Backend))
	}
	check(strings.TrimSpace(c.Output.JSONName) != "", "output.json_name", "must be set")
	check(c.PubSub.Topic == "" || c.PubSub.ProjectID != "", "pubsub.project_id", "is required when pubsub.topic is set")
	check(strings.TrimSpace(c.Schedule.Cron) != "", "schedule.cron", "must be set")

	if err := news.ValidateRoster(c.Sources); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RetryPolicy converts the fetch section into a retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: c.Fetch.MaxRetries, Delay: c.Fetch.RetryDelay}
}

// Rules converts the validation section into acceptance rules.
func (c *Config) Rules() validate.Rules {
	return validate.Rules{
		MinTitleLength: c.Validation.MinTitleLength,
		MaxTitleLength: c.Validation.MaxTitleLength,
		Blocklist:      c.Validation.Blocklist,
	}
}

// RateLimit converts the per-host settings into limiter config.
func (c *Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{DefaultRPS: c.Fetch.PerHostRPS, DefaultBurst: c.Fetch.PerHostBurst}
}

// Writer converts the output section into writer config.
func (c *Config) Writer() output.Config {
	return output.Config{
		Prefix:      c.Output.Prefix,
		JSONName:    c.Output.JSONName,
		SummaryName: c.Output.SummaryName,
		Location:    output.Zone(c.Batch.TimezoneOffsetHours),
	}
}

// DefaultSources is the built-in roster, in output order.
func DefaultSources() []news.Source {
	return []news.Source{
		{
			ID:          "Unwire.hk",
			Category:    news.CategoryTech,
			Mode:        news.ModeMarkup,
			URL:         "https://unwire.hk/",
			DomainCheck: "unwire.hk",
			URLPattern:  "/20",
		},
		{
			ID:            "NewMobileLife",
			Category:      news.CategoryTech,
			Mode:          news.ModeMarkup,
			URL:           "https://www.newmobilelife.com/",
			FallbackURL:   "https://www.newmobilelife.com/最新文章/",
			DomainCheck:   "newmobilelife.com/20",
			ExcludeTitles: []string{"Read More", "更多"},
		},
		{
			ID:         "HolidaySmart",
			Category:   news.CategoryTravel,
			Mode:       news.ModeMarkup,
			URL:        "https://holidaysmart.io/hk",
			BaseURL:    "https://holidaysmart.io",
			URLPattern: "/hk/article/",
			ExcludeTitles: []string{
				"HolidaySmart 假期日常", "HolidaySmart", "更多", "詳情",
				"了解更多", "查看更多", "Read More",
			},
		},
		{
			ID:            "MeetHK",
			Category:      news.CategoryTravel,
			Mode:          news.ModeFeed,
			URL:           "https://www.meethk.com/feed/",
			TopicalFilter: []string{"flight", "機票", "航空"},
		},
	}
}
