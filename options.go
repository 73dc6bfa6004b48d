package diffsum

import (
	"io"
	"log/slog"
	"time"

	"github.com/helixml/diffsum/infrastructure/cache"
	"github.com/helixml/diffsum/infrastructure/provider"
	"github.com/helixml/diffsum/internal/config"
)

// databaseType identifies the database.
type databaseType int

const (
	databaseUnset databaseType = iota
	databaseSQLite
	databasePostgres
	databaseURL
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	database        databaseType
	dbPath          string
	dbDSN           string
	dataDir         string
	textProvider    provider.TextGenerator
	readOnly        bool
	endpoint        *config.Endpoint
	logger          *slog.Logger
	model           string
	language        string
	templateID      string
	templateFile    string
	layered         bool
	auditMaxRecords int
	pruneInterval   time.Duration
	safeLimit       int
	capacities      map[string]int
	parallelism     int
	cache           cache.Cache
	cacheDir        string
	toggles         *config.Toggles
	closers         []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:         config.DefaultDataDir(),
		language:        config.DefaultLanguage,
		templateID:      config.DefaultTemplateID,
		layered:         true,
		auditMaxRecords: config.DefaultAuditMaxRecords,
		safeLimit:       config.DefaultBudgetSafeLimit,
		parallelism:     config.DefaultPipelineParallelism,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite stores the audit log in the SQLite database at path.
// Use ":memory:" for a throwaway log.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.database = databaseSQLite
		c.dbPath = path
	}
}

// WithPostgres stores the audit log in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.database = databasePostgres
		c.dbDSN = dsn
	}
}

// WithDatabaseURL stores the audit log at a sqlite:// or postgres:// URL.
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.database = databaseURL
		c.dbDSN = url
	}
}

// WithTextProvider sets a custom text generation provider.
func WithTextProvider(p provider.TextGenerator) Option {
	return func(c *clientConfig) {
		c.textProvider = p
	}
}

// WithoutProvider opens the client for estimates and audit queries only.
// Summarize and Run return ErrNoProvider.
func WithoutProvider() Option {
	return func(c *clientConfig) {
		c.readOnly = true
	}
}

// WithEndpoint builds the text generation provider from an endpoint
// configuration. WithTextProvider takes precedence.
func WithEndpoint(e config.Endpoint) Option {
	return func(c *clientConfig) {
		c.endpoint = &e
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithDataDir sets the data directory for the database and response cache.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithModel sets the model name sent to the backend and used for capacity
// lookup. Defaults to the endpoint's model.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithLanguage sets the language commit messages are written in.
func WithLanguage(language string) Option {
	return func(c *clientConfig) {
		if language != "" {
			c.language = language
		}
	}
}

// WithTemplateID selects the default aggregation template.
func WithTemplateID(id string) Option {
	return func(c *clientConfig) {
		if id != "" {
			c.templateID = id
		}
	}
}

// WithTemplateFile loads templates from a YAML file on top of the built-in ones.
func WithTemplateFile(path string) Option {
	return func(c *clientConfig) {
		c.templateFile = path
	}
}

// WithLayeredMode enables or disables the layered pipeline. When disabled,
// every change is summarized in a single request.
func WithLayeredMode(enabled bool) Option {
	return func(c *clientConfig) {
		c.layered = enabled
	}
}

// WithAuditMaxRecords bounds the audit log. Values <= 0 disable retention.
func WithAuditMaxRecords(n int) Option {
	return func(c *clientConfig) {
		c.auditMaxRecords = n
	}
}

// WithAuditPruneInterval starts a background sweep of the audit log.
// Zero disables it.
func WithAuditPruneInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.pruneInterval = d
	}
}

// WithBudgetSafeLimit sets the request size used for models of unknown
// capacity. Values <= 0 are ignored.
func WithBudgetSafeLimit(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.safeLimit = n
		}
	}
}

// WithModelCapacities replaces the built-in model capacity table.
func WithModelCapacities(capacities map[string]int) Option {
	return func(c *clientConfig) {
		c.capacities = capacities
	}
}

// WithParallelism sets how many units are summarized concurrently.
// Defaults to 1. Values <= 0 are ignored.
func WithParallelism(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithCache sets the response cache.
func WithCache(rc cache.Cache) Option {
	return func(c *clientConfig) {
		c.cache = rc
	}
}

// WithCacheDir enables the on-disk response cache in dir.
func WithCacheDir(dir string) Option {
	return func(c *clientConfig) {
		c.cacheDir = dir
	}
}

// WithToggles shares runtime debug toggles with the client.
func WithToggles(t *config.Toggles) Option {
	return func(c *clientConfig) {
		c.toggles = t
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}

// WithAppConfig applies every setting of an AppConfig loaded from the
// environment. Options given after it override individual settings.
func WithAppConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.database = databaseURL
		c.dbDSN = cfg.DBURL()
		c.dataDir = cfg.DataDir()
		if e := cfg.EnrichmentEndpoint(); e != nil {
			c.endpoint = e
		}
		c.language = cfg.Language()
		c.templateID = cfg.TemplateID()
		c.templateFile = cfg.TemplateFile()
		c.layered = cfg.LayeredModeEnabled()
		c.auditMaxRecords = cfg.AuditMaxRecords()
		c.safeLimit = cfg.BudgetSafeLimit()
		c.parallelism = cfg.PipelineParallelism()
		if cfg.CacheEnabled() {
			c.cacheDir = cfg.CacheDir()
		}
		if c.toggles == nil {
			c.toggles = config.NewToggles(cfg.DebugPrompts())
		} else {
			c.toggles.SetDebugPrompts(cfg.DebugPrompts())
		}
	}
}
