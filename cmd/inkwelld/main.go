// Command inkwelld runs the chat-completion context-assembly service: one
// HTTP process wiring C1-C9 (persistence, memory, lorebook, card, prompt
// assembly, upstream dispatch, compaction, fact extraction, model limits)
// behind the spec's /chat endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"inkwell/internal/chatservice"
	"inkwell/internal/config"
	"inkwell/internal/factextract"
	"inkwell/internal/history"
	"inkwell/internal/httpapi"
	"inkwell/internal/llmclient"
	"inkwell/internal/lorebook"
	"inkwell/internal/memory"
	"inkwell/internal/modelregistry"
	"inkwell/internal/observability"
	"inkwell/internal/persistence"
	"inkwell/internal/persistence/databases"
	"inkwell/internal/tokencount"
	"inkwell/internal/utilityllm"
	"inkwell/internal/vectorstore"
	"inkwell/internal/workerpool"
)

// embeddingDim is the vector width of the configured embedding model.
// text-embedding-3-small (the default across the OpenAI-compatible
// upstreams this service targets) emits 1536-wide vectors.
const embeddingDim = 1536

// emptyLoreSource is the default LoreEntrySource when no lorebook-CRUD
// backend is configured: lorebook persistence is out of scope (SPEC_FULL.md
// §1), so the default activation set is empty until a turn supplies an
// explicit override.
type emptyLoreSource struct{}

func (emptyLoreSource) ActiveEntries(ctx context.Context, userID string) ([]lorebook.Entry, error) {
	return nil, nil
}

func main() {
	observability.InitLogger("", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitOTel(ctx, observability.OTelConfig{
			Endpoint:       cfg.OTLPEndpoint,
			ServiceName:    "inkwelld",
			ServiceVersion: "dev",
			Environment:    "production",
		})
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	var chatStore persistence.ChatStore
	var memStore persistence.MemoryStore
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, running with in-memory stores")
		chatStore = databases.NewMemoryChatStore()
		memStore = databases.NewMemoryMemoryStore()
	} else {
		pool, err := databases.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database pool")
		}
		defer pool.Close()
		chatStore = databases.NewPostgresChatStore(pool)
		memStore = databases.NewPostgresMemoryStore(pool)
	}

	chatClient := llmclient.New(cfg.ChatAPIURL, cfg.ChatAPIKey, cfg.RAGAPIURL, cfg.RAGAPIKey, cfg.RAGEmbeddingModel)
	utilityClient := llmclient.New(cfg.UtilityAPIURL, cfg.UtilityAPIKey, cfg.RAGAPIURL, cfg.RAGAPIKey, cfg.RAGEmbeddingModel)
	utility := utilityllm.New(utilityClient, cfg.UtilityModel)

	gateway, err := vectorstore.Open(cfg.RAGVectorDBPath, embeddingDim, chatClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open vector store")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("vector store shutdown failed")
		}
	}()

	registry, err := modelregistry.New(cfg.ModelManifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model manifest")
	}
	estimator := tokencount.New()
	memories := memory.New(memStore, gateway)
	compactor := history.New(chatStore, utility, estimator)
	extractor := factextract.New(utility, memories, memories)

	pool := workerpool.New(8)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool.Shutdown(shutdownCtx)
	}()

	svc := chatservice.New(chatStore, memories, gateway, emptyLoreSource{}, registry, estimator, chatClient, compactor, extractor, chatservice.WithWorkerPool(pool))
	server := httpapi.NewServer(svc)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("inkwelld listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}
