// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultHost                  = "0.0.0.0"
	DefaultPort                  = 8080
	DefaultLogLevel              = "INFO"
	DefaultLanguage              = "English"
	DefaultTemplateID            = "conventional"
	DefaultAuditMaxRecords       = 1000
	DefaultAuditPruneInterval    = time.Hour
	DefaultBudgetSafeLimit       = 3200
	DefaultPipelineParallelism   = 1
	DefaultEndpointProvider      = "openai"
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0
	DefaultReportingInterval     = time.Second
	DefaultCacheSubdir           = "cache"
	DefaultDBFile                = "diffsum.db"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatPlain  LogFormat = "plain"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures a text generation endpoint.
type Endpoint struct {
	provider      string
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	maxTokens     int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		provider:      DefaultEndpointProvider,
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
	}
}

// Provider returns the backend kind, "openai" or "anthropic".
func (e Endpoint) Provider() string { return e.provider }

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxTokens returns the declared context window of the model, or zero when
// it should be looked up by model name.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// IsConfigured returns true if the endpoint has required configuration.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithProvider sets the backend kind.
func WithProvider(kind string) EndpointOption {
	return func(e *Endpoint) { e.provider = strings.ToLower(kind) }
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxTokens sets the declared context window.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// ModelConfig is the read-only model and language selection of a run.
type ModelConfig struct {
	selectedModel      string
	selectedLanguage   string
	layeredModeEnabled bool
}

// NewModelConfig creates a ModelConfig. An empty language selects
// DefaultLanguage.
func NewModelConfig(model, language string, layered bool) ModelConfig {
	if language == "" {
		language = DefaultLanguage
	}
	return ModelConfig{
		selectedModel:      model,
		selectedLanguage:   language,
		layeredModeEnabled: layered,
	}
}

// SelectedModel returns the model identifier.
func (m ModelConfig) SelectedModel() string { return m.selectedModel }

// SelectedLanguage returns the language commit messages are written in.
func (m ModelConfig) SelectedLanguage() string { return m.selectedLanguage }

// LayeredModeEnabled reports whether large changes go through the layered
// pipeline instead of a single request.
func (m ModelConfig) LayeredModeEnabled() bool { return m.layeredModeEnabled }

// Toggles holds process-wide debug switches. It is passed as a handle to
// the components that read it; the zero value has every switch off.
type Toggles struct {
	debugPrompts atomic.Bool
}

// NewToggles creates Toggles with the given initial state.
func NewToggles(debugPrompts bool) *Toggles {
	t := &Toggles{}
	t.debugPrompts.Store(debugPrompts)
	return t
}

// DebugPrompts reports whether full prompts are logged.
func (t *Toggles) DebugPrompts() bool {
	if t == nil {
		return false
	}
	return t.debugPrompts.Load()
}

// SetDebugPrompts turns prompt logging on or off.
func (t *Toggles) SetDebugPrompts(on bool) {
	t.debugPrompts.Store(on)
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host                string
	port                int
	dataDir             string
	dbURL               string
	logLevel            string
	logFormat           LogFormat
	enrichmentEndpoint  *Endpoint
	language            string
	templateID          string
	templateFile        string
	layeredModeEnabled  bool
	auditMaxRecords     int
	auditPruneInterval  time.Duration
	budgetSafeLimit     int
	pipelineParallelism int
	cacheDir            string
	cacheEnabled        bool
	debugPrompts        bool
	reportingInterval   time.Duration
	apiKeys             []string
	corsOrigins         []string
	allowLocalRepos     bool
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diffsum"
	}
	return filepath.Join(home, ".diffsum")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:                DefaultHost,
		port:                DefaultPort,
		dataDir:             dataDir,
		dbURL:               "sqlite:///" + filepath.Join(dataDir, DefaultDBFile),
		logLevel:            DefaultLogLevel,
		logFormat:           LogFormatPretty,
		language:            DefaultLanguage,
		templateID:          DefaultTemplateID,
		layeredModeEnabled:  true,
		auditMaxRecords:     DefaultAuditMaxRecords,
		auditPruneInterval:  DefaultAuditPruneInterval,
		budgetSafeLimit:     DefaultBudgetSafeLimit,
		pipelineParallelism: DefaultPipelineParallelism,
		cacheEnabled:        true,
		reportingInterval:   DefaultReportingInterval,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// EnrichmentEndpoint returns the generation endpoint config, or nil.
func (c AppConfig) EnrichmentEndpoint() *Endpoint { return c.enrichmentEndpoint }

// Language returns the commit message language.
func (c AppConfig) Language() string { return c.language }

// TemplateID returns the aggregation template id.
func (c AppConfig) TemplateID() string { return c.templateID }

// TemplateFile returns the path of a YAML file overriding the built-in
// templates, or "".
func (c AppConfig) TemplateFile() string { return c.templateFile }

// LayeredModeEnabled reports whether the layered pipeline may be used.
func (c AppConfig) LayeredModeEnabled() bool { return c.layeredModeEnabled }

// AuditMaxRecords returns the audit retention bound.
func (c AppConfig) AuditMaxRecords() int { return c.auditMaxRecords }

// AuditPruneInterval returns how often a server sweeps the audit log.
func (c AppConfig) AuditPruneInterval() time.Duration { return c.auditPruneInterval }

// BudgetSafeLimit returns the safe request size for models of unknown
// capacity.
func (c AppConfig) BudgetSafeLimit() int { return c.budgetSafeLimit }

// PipelineParallelism returns how many units are summarized concurrently.
func (c AppConfig) PipelineParallelism() int { return c.pipelineParallelism }

// CacheEnabled reports whether generation responses are cached.
func (c AppConfig) CacheEnabled() bool { return c.cacheEnabled }

// CacheDir returns the response cache directory.
func (c AppConfig) CacheDir() string {
	if c.cacheDir != "" {
		return c.cacheDir
	}
	return filepath.Join(c.dataDir, DefaultCacheSubdir)
}

// DebugPrompts reports whether full prompts are logged at startup.
func (c AppConfig) DebugPrompts() bool { return c.debugPrompts }

// ReportingInterval returns the minimum time between progress reports of
// one session.
func (c AppConfig) ReportingInterval() time.Duration { return c.reportingInterval }

// APIKeys returns the keys accepted on mutating API requests.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// CORSOrigins returns the browser origins allowed to call the API.
func (c AppConfig) CORSOrigins() []string {
	origins := make([]string, len(c.corsOrigins))
	copy(origins, c.corsOrigins)
	return origins
}

// AllowLocalRepos reports whether API requests may name repositories on the
// server's disk.
func (c AppConfig) AllowLocalRepos() bool { return c.allowLocalRepos }

// ModelConfig returns the model and language selection.
func (c AppConfig) ModelConfig() ModelConfig {
	model := ""
	if c.enrichmentEndpoint != nil {
		model = c.enrichmentEndpoint.Model()
	}
	return NewModelConfig(model, c.language, c.layeredModeEnabled)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func (c AppConfig) EnsureCacheDir() error {
	return os.MkdirAll(c.CacheDir(), 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		// Update default DB URL when data dir changes
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, DefaultDBFile) {
			c.dbURL = "sqlite:///" + filepath.Join(dir, DefaultDBFile)
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEnrichmentEndpoint sets the generation endpoint.
func WithEnrichmentEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.enrichmentEndpoint = &e }
}

// WithLanguage sets the commit message language.
func WithLanguage(language string) AppConfigOption {
	return func(c *AppConfig) {
		if language != "" {
			c.language = language
		}
	}
}

// WithTemplateID sets the aggregation template.
func WithTemplateID(id string) AppConfigOption {
	return func(c *AppConfig) {
		if id != "" {
			c.templateID = id
		}
	}
}

// WithTemplateFile sets the template override file.
func WithTemplateFile(path string) AppConfigOption {
	return func(c *AppConfig) { c.templateFile = path }
}

// WithLayeredModeEnabled enables or disables the layered pipeline.
func WithLayeredModeEnabled(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.layeredModeEnabled = enabled }
}

// WithAuditMaxRecords sets the audit retention bound. Zero or less keeps
// every record.
func WithAuditMaxRecords(n int) AppConfigOption {
	return func(c *AppConfig) { c.auditMaxRecords = n }
}

// WithAuditPruneInterval sets the audit sweep interval.
func WithAuditPruneInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.auditPruneInterval = d }
}

// WithBudgetSafeLimit sets the safe limit for models of unknown capacity.
func WithBudgetSafeLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.budgetSafeLimit = n
		}
	}
}

// WithPipelineParallelism sets the unit summarization concurrency.
func WithPipelineParallelism(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.pipelineParallelism = n
		}
	}
}

// WithCacheDir sets the response cache directory.
func WithCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.cacheDir = dir }
}

// WithCacheEnabled enables or disables the response cache.
func WithCacheEnabled(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.cacheEnabled = enabled }
}

// WithDebugPrompts sets the initial prompt logging state.
func WithDebugPrompts(on bool) AppConfigOption {
	return func(c *AppConfig) { c.debugPrompts = on }
}

// WithReportingInterval sets the progress report interval.
func WithReportingInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d >= 0 {
			c.reportingInterval = d
		}
	}
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// WithAllowLocalRepos lets API requests read repositories on the server.
func WithAllowLocalRepos(allow bool) AppConfigOption {
	return func(c *AppConfig) { c.allowLocalRepos = allow }
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
// This copies all fields from the receiver and then applies the options,
// making it safe to use when adding new fields to AppConfig.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are never included.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("enrichment_provider", c.endpointProvider()),
		slog.String("enrichment_base_url", c.endpointBaseURL()),
		slog.String("enrichment_model", c.endpointModel()),
		slog.String("language", c.language),
		slog.String("template_id", c.templateID),
		slog.Bool("layered_mode_enabled", c.layeredModeEnabled),
		slog.Int("audit_max_records", c.auditMaxRecords),
		slog.Int("pipeline_parallelism", c.pipelineParallelism),
		slog.Bool("cache_enabled", c.cacheEnabled),
		slog.Int("api_keys", len(c.apiKeys)),
		slog.Any("cors_origins", c.corsOrigins),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

func (c AppConfig) endpointProvider() string {
	if c.enrichmentEndpoint == nil {
		return "(not configured)"
	}
	return c.enrichmentEndpoint.Provider()
}

func (c AppConfig) endpointBaseURL() string {
	if c.enrichmentEndpoint == nil {
		return "(not configured)"
	}
	return c.enrichmentEndpoint.BaseURL()
}

func (c AppConfig) endpointModel() string {
	if c.enrichmentEndpoint == nil {
		return "(not configured)"
	}
	return c.enrichmentEndpoint.Model()
}
