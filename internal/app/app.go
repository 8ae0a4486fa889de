// Package app builds the service graph from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/bi-genie/internal/api"
	"github.com/Rrens/bi-genie/internal/api/handler"
	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/events"
	"github.com/Rrens/bi-genie/internal/generator"
	"github.com/Rrens/bi-genie/internal/layout"
	"github.com/Rrens/bi-genie/internal/linker"
	"github.com/Rrens/bi-genie/internal/llm"
	"github.com/Rrens/bi-genie/internal/llm/anthropic"
	"github.com/Rrens/bi-genie/internal/llm/ark"
	"github.com/Rrens/bi-genie/internal/llm/deepseek"
	"github.com/Rrens/bi-genie/internal/llm/gemini"
	"github.com/Rrens/bi-genie/internal/llm/ollama"
	"github.com/Rrens/bi-genie/internal/llm/openai"
	"github.com/Rrens/bi-genie/internal/materializer"
	"github.com/Rrens/bi-genie/internal/metastore"
	metaMySQL "github.com/Rrens/bi-genie/internal/metastore/mysql"
	metaPostgres "github.com/Rrens/bi-genie/internal/metastore/postgres"
	"github.com/Rrens/bi-genie/internal/metastore/rest"
	metaSQLite "github.com/Rrens/bi-genie/internal/metastore/sqlite"
	"github.com/Rrens/bi-genie/internal/permission"
	"github.com/Rrens/bi-genie/internal/repository/memory"
	"github.com/Rrens/bi-genie/internal/repository/postgres"
	"github.com/Rrens/bi-genie/internal/repository/redis"
	"github.com/Rrens/bi-genie/internal/security"
	"github.com/Rrens/bi-genie/internal/service"
	"github.com/Rrens/bi-genie/internal/superset"
	"github.com/Rrens/bi-genie/internal/validator"
)

// App is the assembled service
type App struct {
	Handler http.Handler
	Service *service.DashboardService
	closers []func()
}

// New connects every configured backend and wires the pipeline
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	readiness := map[string]handler.Pinger{}

	client := superset.NewClient(superset.Options{
		BaseURL:       cfg.Superset.URL,
		ExternalURL:   cfg.Superset.ExternalURL,
		AdminUser:     cfg.Superset.AdminUser,
		AdminPassword: cfg.Superset.AdminPassword,
		Timeout:       cfg.Superset.Timeout,
		SessionTTL:    cfg.Superset.SessionTTL,
	})
	readiness["superset"] = client

	llmRouter, err := NewLLMRouter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	var (
		sessions    domain.SessionStore
		schemaCache permission.SchemaCache
		limiter     *redis.RateLimiter
		flusher     handler.CacheFlusher
	)

	switch cfg.Session.Backend {
	case "memory":
		log.Warn().Msg("Using in-process session store; sessions are not shared between replicas")
		sessions = memory.NewSessionStore(cfg.Session.TTL)
	default:
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { redisClient.Close() })
		readiness["redis"] = redisClient

		var encryptor *security.Encryptor
		if cfg.Session.EncryptionKey != "" {
			encryptor, err = security.NewEncryptorFromSecret(cfg.Session.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create session encryptor: %w", err)
			}
		}

		sessions = redis.NewSessionStore(redisClient, cfg.Session.TTL, encryptor)
		cache := redis.NewSchemaCache(redisClient, cfg.Superset.SchemaCacheTTL)
		schemaCache = cache
		flusher = cache
		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	}

	links, err := a.newLinkStore(ctx, cfg.Metastore, client, readiness)
	if err != nil {
		return nil, err
	}

	var policy *validator.Policy
	if cfg.Policy.RegoPath != "" {
		policy, err = validator.LoadPolicy(ctx, cfg.Policy.RegoPath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Policy.RegoPath).Msg("Chart policy loaded")
	}

	var rounds domain.RoundRepository
	if cfg.Database.Host != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		readiness["ledger"] = db
		rounds = postgres.NewRoundRepository(db.Pool)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, natsPublisher.Close)
		publisher = natsPublisher
	}

	provider := cfg.Generation.Provider
	if provider == "" {
		provider = llmRouter.DefaultProvider()
	}

	a.Service = service.NewDashboardService(service.Deps{
		Resolver: permission.NewResolver(client, permission.Options{
			CrossCheck: cfg.Superset.CrossCheckDatasets,
			Cache:      schemaCache,
		}),
		Generator: generator.New(llmRouter, generator.Options{
			Provider:     provider,
			Model:        cfg.Generation.Model,
			HistoryTurns: cfg.Generation.HistoryTurns,
			MaxCharts:    cfg.Generation.MaxCharts,
		}),
		Validator:    validator.New(policy),
		Materializer: materializer.New(client, cfg.Superset.MaterializeParallelism),
		Linker:       linker.New(client, links),
		Sessions:     sessions,
		Rounds:       rounds,
		Events:       publisher,
		Layout:       layout.OptionsFromConfig(cfg.Layout),
		HistoryTurns: cfg.Generation.HistoryTurns,
	})

	deps := api.Dependencies{
		Dashboards: a.Service,
		Providers:  llmRouter,
		Readiness:  readiness,
	}
	if limiter != nil {
		deps.RateLimiter = limiter
	}
	if flusher != nil {
		deps.Cache = flusher
	}
	a.Handler = api.NewRouter(cfg.Server, deps)

	ok = true
	return a, nil
}

// Close releases every backend connection in reverse order
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) newLinkStore(ctx context.Context, cfg config.MetastoreConfig, client *superset.Client, readiness map[string]handler.Pinger) (domain.LinkStore, error) {
	if cfg.Driver == "rest" {
		log.Info().Msg("Linking charts through the Superset REST API")
		return rest.NewLinkStore(client), nil
	}

	router := metastore.NewRouter()
	router.RegisterAdapter("postgres", metaPostgres.NewAdapter)
	router.RegisterAdapter("mysql", metaMySQL.NewAdapter)
	router.RegisterAdapter("sqlite", metaSQLite.NewAdapter)
	a.closers = append(a.closers, router.CloseAll)

	store := metastore.NewLinkStore(router, cfg.Driver, metastore.ConnectionConfig{
		DSN:      cfg.DSN,
		MaxConns: cfg.MaxConns,
	})
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach superset metadata database: %w", err)
	}
	readiness["metastore"] = store

	log.Info().Str("driver", cfg.Driver).Strs("supported", router.SupportedDrivers()).Msg("Linking charts through the metadata database")
	return store, nil
}

// NewLLMRouter registers every provider that has credentials configured
func NewLLMRouter(ctx context.Context, cfg config.LLMConfig) (*llm.Router, error) {
	router := llm.NewRouter(cfg.DefaultProvider)
	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.OpenAI.APIKey != "" {
		log.Info().Str("base_url", cfg.OpenAI.BaseURL).Msg("Registering OpenAI-compatible provider")
		router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.OpenAI.SkipTLSVerify))
	}
	if cfg.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model))
	}
	if cfg.Gemini.APIKey != "" {
		router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	}
	if cfg.Ark.APIKey != "" {
		p, err := ark.NewProvider(ctx, cfg.Ark)
		if err != nil {
			return nil, err
		}
		router.RegisterProvider(p)
	}
	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}

	if len(router.ListProviders()) == 0 {
		log.Warn().Msg("No LLM provider is configured; dashboard generation will fail")
	}
	return router, nil
}
