package app

import (
	"context"
	"fmt"
	"time"

	"github.com/farbook/far-chat/config"
	"github.com/farbook/far-chat/internal/observability"
	"github.com/farbook/far-chat/repositories"
	"github.com/farbook/far-chat/repositories/postgres"
	"github.com/farbook/far-chat/services/chat"
	"github.com/farbook/far-chat/services/conversation"
	"github.com/farbook/far-chat/services/generation"
	"github.com/farbook/far-chat/services/prompt"
	"github.com/farbook/far-chat/services/providers"
	"github.com/farbook/far-chat/services/providers/gemini"
	"github.com/farbook/far-chat/services/ratelimit"
	"github.com/farbook/far-chat/services/retrieval"
	"github.com/farbook/far-chat/services/vectorstore"
	"github.com/farbook/far-chat/services/vectorstore/qdrant"
	"go.uber.org/zap"
)

// sweeperInterval is how often idle conversations are dropped from the
// rate limiter's hit log.
const sweeperInterval = 10 * time.Minute

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Collector

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories

	// External clients
	Provider    providers.ModelProvider
	VectorStore vectorstore.Store

	// Services
	ConversationService *conversation.ConversationService
	RateLimitService    *ratelimit.RateLimitService
	RetrievalService    *retrieval.RetrievalService
	PromptService       *prompt.PromptService
	GenerationService   *generation.GenerationService
	ChatService         *chat.ChatService

	sweeperCancel context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize the model provider and vector index clients
	if err := deps.initClients(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	// Initialize the question answering pipeline
	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics initializes the Prometheus collector
func (d *Dependencies) initMetrics(cfg *config.Config) {
	d.Metrics = observability.NewCollector(cfg.Observability.MetricsNamespace)
	d.Logger.Info("metrics collector initialized",
		zap.String("namespace", cfg.Observability.MetricsNamespace))
}

// initDatabase initializes the PostgreSQL connection pool and repositories
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Repos = factory.NewRepositories()

	// Create tables on first run
	if err := d.DB.InitSchema(ctx); err != nil {
		return err
	}

	d.Logger.Info("database initialized",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initClients initializes the Gemini provider and the Qdrant vector index
func (d *Dependencies) initClients(cfg *config.Config) error {
	provider, err := gemini.NewClient(providers.ProviderConfig{
		APIKey:              cfg.Gemini.APIKey,
		BaseURL:             cfg.Gemini.BaseURL,
		EmbeddingModel:      cfg.Gemini.EmbeddingModel,
		EmbeddingDimensions: cfg.Gemini.EmbeddingDimensions,
		ChatModel:           cfg.Gemini.ChatModel,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}
	d.Provider = provider

	store, err := qdrant.NewClient(qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create qdrant client: %w", err)
	}
	d.VectorStore = store

	d.Logger.Info("external clients initialized",
		zap.String("provider", provider.Name()),
		zap.String("collection", cfg.Qdrant.Collection))

	return nil
}

// initServices wires the pipeline services in dependency order
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.ConversationService = conversation.NewConversationService(d.Repos, d.Logger)

	d.RateLimitService = ratelimit.NewRateLimitService(ratelimit.Config{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		WindowMinutes: cfg.RateLimit.WindowMinutes,
	}, d.Logger)

	sweepCtx, cancel := context.WithCancel(context.Background())
	d.sweeperCancel = cancel
	go d.RateLimitService.StartSweeper(sweepCtx, sweeperInterval)

	retrievalCfg := retrieval.DefaultConfig()
	retrievalCfg.TopK = cfg.RAG.TopK
	retrievalCfg.ScoreThreshold = cfg.RAG.ScoreThreshold
	d.RetrievalService = retrieval.NewRetrievalService(d.VectorStore, retrievalCfg, d.Metrics, d.Logger)

	d.PromptService = prompt.NewPromptService(prompt.Config{
		MaxContextChars: cfg.RAG.MaxContextChars,
	}, d.Logger)

	generationCfg := generation.DefaultConfig()
	generationCfg.MaxAnswerTokens = cfg.RAG.MaxAnswerTokens
	generationCfg.Temperature = cfg.RAG.Temperature
	d.GenerationService = generation.NewGenerationService(d.Provider, generationCfg, d.Metrics, d.Logger)

	chatCfg := chat.DefaultConfig()
	chatCfg.HistoryMessages = cfg.RAG.HistoryMessages
	d.ChatService = chat.NewChatService(
		d.ConversationService,
		d.RateLimitService,
		d.Provider,
		d.RetrievalService,
		d.PromptService,
		d.GenerationService,
		d.Metrics,
		chatCfg,
		d.Logger,
	)

	d.Logger.Info("services initialized")
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.sweeperCancel != nil {
		d.sweeperCancel()
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
