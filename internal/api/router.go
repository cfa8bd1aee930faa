package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon/internal/api/handlers"
	"github.com/beaconhq/beacon/internal/api/middleware"
	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/connectors"
	"github.com/beaconhq/beacon/internal/connectors/filestore"
	"github.com/beaconhq/beacon/internal/connectors/github"
	"github.com/beaconhq/beacon/internal/connectors/slack"
	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/migration"
	"github.com/beaconhq/beacon/internal/queue"
	"github.com/beaconhq/beacon/internal/rerank"
	"github.com/beaconhq/beacon/internal/retrieval"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	auth  *middleware.Auth

	store       *indexstore.PgStore
	connReg     *connectors.Registry
	queueClient *queue.Client
	modelReg    *embedding.Registry
	manager     *migration.Manager
	retriever   *retrieval.Retriever
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	store := indexstore.NewPgStore(db)
	connReg := NewConnectorRegistry()
	queueClient := queue.NewClient(cfg.Redis)

	provider := embedding.NewOpenAIProvider(cfg.Embedding.OpenAIKey, cfg.Embedding.OpenAIBaseURL)
	embedSvc := embedding.NewService(provider, cfg.Embedding.RequestTimeout)
	modelReg := embedding.NewRegistry(store, cfg.Embedding.RefreshInterval)
	manager := migration.NewManager(store, embedSvc, modelReg, cfg.Indexing.SweepBatchSize)

	var scorer rerank.Scorer
	switch cfg.Rerank.Provider {
	case "openai":
		scorer = rerank.NewOpenAIScorer(cfg.Rerank.OpenAIKey, "", cfg.Rerank.OpenAIModel)
	case "anthropic":
		scorer = rerank.NewAnthropicScorer(cfg.Rerank.AnthropicKey, cfg.Rerank.AnthropicModel)
	}

	cache := retrieval.NewCache(rdb, cfg.Search.CacheTTL)
	retriever := retrieval.NewRetriever(store, embedSvc, modelReg, scorer, cache,
		connReg.SourceTypes(), retrieval.Options{
			CandidateLimit: cfg.Search.CandidateLimit,
			RerankTopK:     cfg.Rerank.TopK,
			DefaultLimit:   cfg.Search.DefaultLimit,
		})

	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		auth:  middleware.NewAuth(cfg.Auth.JWTSecret),

		store:       store,
		connReg:     connReg,
		queueClient: queueClient,
		modelReg:    modelReg,
		manager:     manager,
		retriever:   retriever,
	}
}

// NewConnectorRegistry registers every built-in source type. Shared with
// the worker binary so both sides agree on what a valid source is.
func NewConnectorRegistry() *connectors.Registry {
	reg := connectors.NewRegistry()
	reg.Register("slack", slack.New)
	reg.Register("github", github.New)
	reg.Register("filestore", filestore.New)
	return reg
}

// ModelRegistry exposes the live model snapshot so the caller can run its
// refresh loop.
func (rt *Router) ModelRegistry() *embedding.Registry {
	return rt.modelReg
}

func (rt *Router) Close() error {
	return rt.queueClient.Close()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.auth.Authenticate)

		idxH := handlers.NewIndexingHandler(rt.store, rt.queueClient, rt.connReg)
		r.Route("/ccps", func(r chi.Router) {
			r.Post("/", idxH.Create)
			r.Get("/", idxH.List)
			r.Get("/sources", idxH.Sources)
			r.Get("/{id}", idxH.Get)
			r.Delete("/{id}", idxH.Delete)
			r.Post("/{id}/run", idxH.Run)
			r.Post("/{id}/pause", idxH.Pause)
			r.Post("/{id}/resume", idxH.Resume)
			r.Get("/{id}/attempts", idxH.Attempts)
		})

		searchH := handlers.NewSearchHandler(rt.retriever)
		r.Post("/search", searchH.Search)

		modelH := handlers.NewEmbedModelHandler(rt.manager, rt.store, rt.queueClient)
		r.Route("/embedding-models", func(r chi.Router) {
			r.Get("/", modelH.List)
			r.Get("/status", modelH.Status)
			r.Post("/migrate", modelH.Migrate)
		})
	})

	return r
}
