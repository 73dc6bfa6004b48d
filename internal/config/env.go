package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., ENRICHMENT_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.diffsum
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/diffsum.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT: pretty, plain, json (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of keys accepted on mutating API
	// requests. Empty leaves the API open.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// CORSAllowedOrigins is a comma-separated list of browser origins.
	// Env: CORS_ALLOWED_ORIGINS
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`

	// AllowLocalRepos lets API requests summarize repositories on the
	// server's disk.
	// Env: ALLOW_LOCAL_REPOS (default: false)
	AllowLocalRepos bool `envconfig:"ALLOW_LOCAL_REPOS" default:"false"`

	// EnrichmentEndpoint configures the text generation service.
	EnrichmentEndpoint EndpointEnv `envconfig:"ENRICHMENT_ENDPOINT"`

	// Language is the language commit messages are written in.
	// Env: LANGUAGE (default: English)
	Language string `envconfig:"LANGUAGE" default:"English"`

	// TemplateID selects the aggregation prompt.
	// Env: TEMPLATE_ID (default: conventional)
	TemplateID string `envconfig:"TEMPLATE_ID" default:"conventional"`

	// TemplateFile is a YAML file whose templates override the built-in ones.
	// Env: TEMPLATE_FILE
	TemplateFile string `envconfig:"TEMPLATE_FILE"`

	// LayeredModeEnabled allows large changes to use the layered pipeline.
	// Env: LAYERED_MODE_ENABLED (default: true)
	LayeredModeEnabled bool `envconfig:"LAYERED_MODE_ENABLED" default:"true"`

	// Audit configures the conversation audit log.
	Audit AuditEnv `envconfig:"AUDIT"`

	// BudgetDefaultSafeLimit is the safe request size for unknown models.
	// Env: BUDGET_DEFAULT_SAFE_LIMIT (default: 3200)
	BudgetDefaultSafeLimit int `envconfig:"BUDGET_DEFAULT_SAFE_LIMIT" default:"3200"`

	// PipelineParallelism is how many units are summarized at once.
	// Env: PIPELINE_PARALLELISM (default: 1)
	PipelineParallelism int `envconfig:"PIPELINE_PARALLELISM" default:"1"`

	// Cache configures the response cache.
	Cache CacheEnv `envconfig:"CACHE"`

	// DebugPrompts logs every prompt at debug level.
	// Env: DEBUG_PROMPTS (default: false)
	DebugPrompts bool `envconfig:"DEBUG_PROMPTS" default:"false"`

	// Reporting configures progress reporting.
	Reporting ReportingEnv `envconfig:"REPORTING"`
}

// EndpointEnv holds environment configuration for a generation endpoint.
type EndpointEnv struct {
	// Provider is the backend kind (openai or anthropic).
	// Env: *_PROVIDER (default: openai)
	Provider string `envconfig:"PROVIDER" default:"openai"`

	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries. Zero disables retrying.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`

	// MaxTokens is the model's context window. Zero looks it up by model name.
	// Env: *_MAX_TOKENS (default: 0)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"0"`
}

// AuditEnv holds environment configuration for the audit log.
type AuditEnv struct {
	// MaxRecords is the retention bound.
	// Env: AUDIT_MAX_RECORDS (default: 1000)
	MaxRecords int `envconfig:"MAX_RECORDS" default:"1000"`

	// PruneIntervalSeconds is how often a server sweeps the log.
	// Env: AUDIT_PRUNE_INTERVAL_SECONDS (default: 3600)
	PruneIntervalSeconds float64 `envconfig:"PRUNE_INTERVAL_SECONDS" default:"3600"`
}

// CacheEnv holds environment configuration for the response cache.
type CacheEnv struct {
	// Enabled controls whether caching is enabled.
	// Env: CACHE_ENABLED (default: true)
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Dir is the cache directory.
	// Env: CACHE_DIR
	// Default: {data_dir}/cache
	Dir string `envconfig:"DIR"`
}

// ReportingEnv holds environment configuration for reporting.
type ReportingEnv struct {
	// LogTimeInterval is the minimum interval between progress logs in seconds.
	// Env: REPORTING_LOG_TIME_INTERVAL (default: 1)
	LogTimeInterval float64 `envconfig:"LOG_TIME_INTERVAL" default:"1"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}

	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseList(e.APIKeys)))
	}
	if e.CORSAllowedOrigins != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseList(e.CORSAllowedOrigins)))
	}
	cfg = applyOption(cfg, WithAllowLocalRepos(e.AllowLocalRepos))

	if e.EnrichmentEndpoint.IsConfigured() {
		cfg = applyOption(cfg, WithEnrichmentEndpoint(e.EnrichmentEndpoint.ToEndpoint()))
	}

	cfg = cfg.Apply(
		WithLanguage(e.Language),
		WithTemplateID(e.TemplateID),
		WithTemplateFile(e.TemplateFile),
		WithLayeredModeEnabled(e.LayeredModeEnabled),
		WithAuditMaxRecords(e.Audit.MaxRecords),
		WithAuditPruneInterval(seconds(e.Audit.PruneIntervalSeconds)),
		WithBudgetSafeLimit(e.BudgetDefaultSafeLimit),
		WithPipelineParallelism(e.PipelineParallelism),
		WithCacheEnabled(e.Cache.Enabled),
		WithDebugPrompts(e.DebugPrompts),
		WithReportingInterval(seconds(e.Reporting.LogTimeInterval)),
	)
	if e.Cache.Dir != "" {
		cfg = applyOption(cfg, WithCacheDir(e.Cache.Dir))
	}

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
		WithMaxTokens(e.MaxTokens),
	}

	if e.Provider != "" {
		opts = append(opts, WithProvider(e.Provider))
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}

	return NewEndpointWithOptions(opts...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	case "plain":
		return LogFormatPlain
	default:
		return LogFormatPretty
	}
}
