// Package diffsum writes commit messages for changes of any size.
//
// Small changes go to the generation backend in one request. Changes that
// would not fit the model's context window are summarized file by file and
// the per-file summaries are then combined into one message. Every backend
// exchange is kept in a bounded audit log.
//
// Basic usage:
//
//	client, err := diffsum.New(
//	    diffsum.WithSQLite(".diffsum/diffsum.db"),
//	    diffsum.WithEndpoint(endpoint),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	out, err := client.Summarize(ctx, diffsum.SummarizeRequest{Units: units}, nil)
//	if err != nil {
//	    fmt.Println(diffsum.Fallback(units))
//	    return
//	}
//	fmt.Println(out.Message)
package diffsum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/budget"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/cache"
	"github.com/helixml/diffsum/infrastructure/enricher"
	"github.com/helixml/diffsum/infrastructure/persistence"
	"github.com/helixml/diffsum/infrastructure/provider"
	"github.com/helixml/diffsum/infrastructure/template"
	"github.com/helixml/diffsum/internal/config"
	"github.com/helixml/diffsum/internal/database"
	"github.com/helixml/diffsum/internal/log"
)

// Client is the main entry point for the diffsum library.
//
// Access the layered pipeline and the audit log via struct fields:
//
//	client.Pipeline.Run(ctx, req, observer)
//	client.Audit.Recent(ctx, 20)
type Client struct {
	Pipeline *service.Pipeline
	Audit    *service.AuditLog

	db         database.Database
	summarizer *enricher.Summarizer
	templates  *template.YAMLProvider
	sweeper    *service.RetentionSweeper
	toggles    *config.Toggles
	closers    []io.Closer

	logger      *slog.Logger
	dataDir     string
	model       string
	declaredMax int
	language    string
	templateID  string
	layered     bool
	readOnly    bool
	closed      atomic.Bool
	mu          sync.Mutex
}

// New creates a new Client with the given options.
// When an audit prune interval is set, the retention sweep starts
// immediately.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.Default().Slog()
	}

	textProvider, declaredMax, err := buildTextProvider(cfg)
	if err != nil {
		return nil, err
	}

	_, readOnly := textProvider.(unavailableGenerator)

	model := cfg.model
	if model == "" && cfg.endpoint != nil {
		model = cfg.endpoint.Model()
	}

	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	dbURL, err := buildDatabaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, dbURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.AutoMigrate(ctx, db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	templates, err := template.NewDefaultProvider(cfg.templateFile)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("load templates: %w", err), errClose)
	}

	responseCache, err := buildCache(cfg)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("response cache: %w", err), errClose)
	}

	toggles := cfg.toggles
	if toggles == nil {
		toggles = config.NewToggles(false)
	}

	summarizer, err := enricher.NewSummarizer(textProvider, templates, logger,
		enricher.WithCache(responseCache),
		enricher.WithPromptDebugger(toggles),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	auditLog, err := service.NewAuditLog(persistence.NewAuditStore(db), cfg.auditMaxRecords, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pipelineOpts := []service.PipelineOption{
		service.WithParallelism(cfg.parallelism),
		service.WithGate(budget.NewGate(cfg.safeLimit)),
	}
	if cfg.capacities != nil {
		pipelineOpts = append(pipelineOpts, service.WithCapacityTable(budget.NewCapacityTable(cfg.capacities)))
	}
	p, err := service.NewPipeline(summarizer, auditLog, logger, pipelineOpts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sweeper := service.NewRetentionSweeper(auditLog, cfg.pruneInterval, logger)
	sweeper.Start(ctx)

	client := &Client{
		Pipeline:    p,
		Audit:       auditLog,
		db:          db,
		summarizer:  summarizer,
		templates:   templates,
		sweeper:     sweeper,
		toggles:     toggles,
		closers:     cfg.closers,
		logger:      logger,
		dataDir:     dataDir,
		model:       model,
		declaredMax: declaredMax,
		language:    cfg.language,
		templateID:  cfg.templateID,
		layered:     cfg.layered,
		readOnly:    readOnly,
	}

	logger.Debug("diffsum client ready",
		slog.String("model", model),
		slog.Int("declared_max", declaredMax),
		slog.Bool("layered", cfg.layered),
		slog.Int("parallelism", cfg.parallelism),
	)

	return client, nil
}

// Close stops background work and releases the database.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweeper.Stop()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Debug("diffsum client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// DataDir returns the prepared data directory.
func (c *Client) DataDir() string {
	return c.dataDir
}

// Templates lists the available aggregation templates.
func (c *Client) Templates() []template.Info {
	return c.templates.Templates()
}

// DebugPrompts reports whether full prompts are being logged.
func (c *Client) DebugPrompts() bool {
	return c.toggles.DebugPrompts()
}

// SetDebugPrompts turns verbose prompt logging on or off at runtime.
func (c *Client) SetDebugPrompts(on bool) {
	c.toggles.SetDebugPrompts(on)
}

// ShouldUseLayered reports whether diffText would exceed the safe budget of
// a model with the given capacity.
func (c *Client) ShouldUseLayered(diffText string, declaredMax int, known bool) bool {
	return c.Pipeline.ShouldUseLayered(diffText, declaredMax, known)
}

// ShouldUseLayeredForModel applies the budget gate using the model's
// capacity from the built-in table.
func (c *Client) ShouldUseLayeredForModel(diffText, model string) bool {
	return c.Pipeline.ShouldUseLayeredForModel(diffText, model)
}

// Estimate sizes diffText against model, or the configured model when
// model is empty. The endpoint's declared context window applies to the
// configured model only.
func (c *Client) Estimate(diffText, model string) service.BudgetCheck {
	declared := 0
	if model == "" || model == c.model {
		model = c.model
		declared = c.declaredMax
	}
	return c.Pipeline.CheckBudget(diffText, model, declared)
}

// Run executes the layered pipeline directly.
func (c *Client) Run(ctx context.Context, req service.RunRequest, observer pipeline.Observer) (pipeline.Result, error) {
	if c.closed.Load() {
		return pipeline.Result{}, ErrClientClosed
	}
	if c.readOnly {
		return pipeline.Result{}, ErrNoProvider
	}
	return c.Pipeline.Run(ctx, c.withDefaults(req), observer)
}

// AuditRecords returns the audit records of one session in write order.
func (c *Client) AuditRecords(ctx context.Context, sessionID string) ([]audit.Record, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.Pipeline.AuditRecords(ctx, sessionID)
}

func (c *Client) withDefaults(req service.RunRequest) service.RunRequest {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Language == "" {
		req.Language = c.language
	}
	if req.TemplateID == "" {
		req.TemplateID = c.templateID
	}
	return req
}

// Fallback returns the deterministic commit message for units, for use
// when summarization fails.
func Fallback(units []change.Unit) string {
	return pipeline.FallbackMessage(change.CountStats(units))
}

// buildTextProvider returns the configured provider and the context window
// the endpoint declares, if any.
func buildTextProvider(cfg *clientConfig) (provider.TextGenerator, int, error) {
	declaredMax := 0
	if cfg.endpoint != nil {
		declaredMax = cfg.endpoint.MaxTokens()
	}

	if cfg.textProvider != nil {
		return cfg.textProvider, declaredMax, nil
	}
	if cfg.endpoint == nil || !cfg.endpoint.IsConfigured() {
		if cfg.readOnly {
			return unavailableGenerator{}, declaredMax, nil
		}
		return nil, 0, ErrNoProvider
	}

	e := cfg.endpoint
	p, err := provider.NewFromEndpoint(provider.Endpoint{
		Kind:          e.Provider(),
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		APIKey:        e.APIKey(),
		Timeout:       e.Timeout(),
		MaxRetries:    e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create text provider: %w", err)
	}
	return p, declaredMax, nil
}

// buildDatabaseURL constructs the database URL from configuration.
func buildDatabaseURL(cfg *clientConfig) (string, error) {
	switch cfg.database {
	case databaseSQLite:
		return "sqlite:///" + cfg.dbPath, nil
	case databasePostgres, databaseURL:
		return cfg.dbDSN, nil
	default:
		return "", ErrNoDatabase
	}
}

func buildCache(cfg *clientConfig) (cache.Cache, error) {
	if cfg.cache != nil {
		return cfg.cache, nil
	}
	if cfg.cacheDir == "" {
		return cache.Noop{}, nil
	}
	return cache.NewDisk(cfg.cacheDir)
}

// unavailableGenerator stands in for the backend of a read-only client.
type unavailableGenerator struct{}

func (unavailableGenerator) ChatCompletion(context.Context, provider.ChatCompletionRequest) (provider.ChatCompletionResponse, error) {
	return provider.ChatCompletionResponse{}, ErrNoProvider
}
