package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/auth"
	"github.com/researchdesk/backend/internal/config"
	"github.com/researchdesk/backend/internal/llm"
	"github.com/researchdesk/backend/internal/middleware"
	"github.com/researchdesk/backend/internal/pipeline"
	"github.com/researchdesk/backend/internal/research"
	"github.com/researchdesk/backend/internal/store"
	"github.com/researchdesk/backend/internal/websearch"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		logger.Fatal("postgres migrate", zap.Error(err))
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── MinIO ────────────────────────────────────────────────
	artifacts, err := store.NewArtifactStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		logger.Fatal("minio connect", zap.Error(err))
	}

	// ── Research pipeline ────────────────────────────────────
	llmClient, err := llm.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Fatal("llm client", zap.Error(err))
	}
	searchClient := websearch.NewClient(cfg.SearchAPIKey, cfg.SearchEngineID)

	limiter := pipeline.NewRateLimiter()
	aggregator := pipeline.NewSearchAggregator(searchClient, limiter, logger)
	generator := pipeline.NewContentGenerator(llmClient, logger)
	renderer := pipeline.NewHTMLRenderer()
	orchestrator := pipeline.NewOrchestrator(aggregator, generator, renderer, logger)

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(pgStore, sessions, logger)
	researchHandler := research.NewHandler(mongoStore, artifacts, orchestrator, logger)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth(sessions, logger)).Get("/me", authHandler.Me)
	})

	// Research routes (protected)
	r.Route("/api/research", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions, logger))
		r.Use(middleware.PerClientLimit(cfg.RequestsPerMinute))
		r.Post("/", researchHandler.Create)
		r.Get("/", researchHandler.List)
		r.Get("/{id}", researchHandler.Get)
		r.Delete("/{id}", researchHandler.Delete)
		r.Post("/{id}/revise", researchHandler.Revise)
		r.Get("/{id}/html", researchHandler.DownloadHTML)
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
