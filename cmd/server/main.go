package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"vellum/internal/auth"
	"vellum/internal/config"
	"vellum/internal/handler"
	"vellum/internal/handler/sse"
	"vellum/internal/middleware"
	"vellum/internal/repository/postgres"
	"vellum/internal/service"
	"vellum/internal/service/generation"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	projectRepo := postgres.NewProjectRepository(repoConfig)
	docRepo := postgres.NewDocumentRepository(repoConfig)
	opRepo := postgres.NewOperationRepository(repoConfig)

	// Services
	projectService := service.NewProjectService(projectRepo, logger)
	docService := service.NewDocumentService(docRepo, projectRepo, logger)

	genService, err := generation.SetupService(cfg, opRepo, docRepo, projectRepo, logger)
	if err != nil {
		log.Fatalf("Failed to setup generation service: %v", err)
	}

	logger.Info("services initialized")

	// Handlers
	projectHandler := handler.NewProjectHandler(projectService, logger)
	docHandler := handler.NewDocumentHandler(docService, logger)
	aiHandler := handler.NewAIHandler(genService, sse.DefaultConfig(), logger)
	opsHandler := handler.NewOperationsHandler(genService, logger)

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", docHandler.HealthCheck)

	// Project routes
	mux.HandleFunc("GET /api/projects", projectHandler.ListProjects)
	mux.HandleFunc("POST /api/projects", projectHandler.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", projectHandler.GetProject)

	// Document routes
	mux.HandleFunc("GET /api/documents", docHandler.ListDocuments)
	mux.HandleFunc("POST /api/documents", docHandler.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", docHandler.GetDocument)
	mux.HandleFunc("PATCH /api/documents/{id}", docHandler.UpdateDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", docHandler.DeleteDocument)

	// Generation routes (SSE)
	mux.HandleFunc("POST /api/ai/chat", aiHandler.Chat)
	mux.HandleFunc("POST /api/ai/generate", aiHandler.Generate)
	mux.HandleFunc("POST /api/ai/global-edit", aiHandler.GlobalEdit)

	// Operations registry routes
	mux.HandleFunc("GET /api/ai/operations", opsHandler.ListOperations)
	mux.HandleFunc("PATCH /api/ai/operations/{id}", opsHandler.DecideOperation)
	mux.HandleFunc("POST /api/ai/operations/{id}/interrupt", aiHandler.Interrupt)

	// Build middleware chain (applied in reverse order, they wrap each other)
	// Order: CORS → Recovery → Auth → RateLimit → Routes
	rateLimiter := middleware.NewAIRateLimiter(cfg.AIRequestsPerMinute, logger)

	var root http.Handler = mux
	root = rateLimiter.Handler(root)
	root = middleware.AuthMiddleware(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
