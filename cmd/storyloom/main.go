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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/storyloom/config"
	"github.com/vnmchuo/storyloom/internal/auth"
	"github.com/vnmchuo/storyloom/internal/billing"
	"github.com/vnmchuo/storyloom/internal/budget"
	"github.com/vnmchuo/storyloom/internal/cascade"
	"github.com/vnmchuo/storyloom/internal/library"
	"github.com/vnmchuo/storyloom/internal/pipeline"
	"github.com/vnmchuo/storyloom/internal/pricing"
	"github.com/vnmchuo/storyloom/internal/provider"
	"github.com/vnmchuo/storyloom/internal/provider/claude"
	"github.com/vnmchuo/storyloom/internal/provider/openai"
	"github.com/vnmchuo/storyloom/internal/provider/qwen"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/seeder"
	"github.com/vnmchuo/storyloom/internal/server"
	"github.com/vnmchuo/storyloom/internal/telemetry"
	"github.com/vnmchuo/storyloom/internal/worker"
	"github.com/vnmchuo/storyloom/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("storyloom", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init billing
	billingStore := billing.NewPostgresStore(pool)

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	// 8. Budget tables: compiled-in defaults unless overridden on disk
	rates := pricing.DefaultTable()
	if cfg.RateTablePath != "" {
		rates, err = pricing.LoadTable(cfg.RateTablePath)
		if err != nil {
			log.Fatalf("failed to load rate table: %v", err)
		}
	}
	tiers := budget.DefaultTiers()
	chains := budget.DefaultChains()
	if cfg.TierTablePath != "" {
		tc, err := budget.LoadTierConfig(cfg.TierTablePath)
		if err != nil {
			log.Fatalf("failed to load tier config: %v", err)
		}
		tiers, chains = tc.Tiers, tc.Chains
	}

	// 9. Init ledger, admission, recorder
	cache := budget.NewRedisCache(rdb)
	ledger := budget.NewLedger(cache, tiers)
	controller := budget.NewController(ledger, rates, chains)
	recorder := budget.NewRecorder(ledger, cache, billingStore)

	// 10. Init providers and cascade
	providers := []provider.Provider{
		claude.New(cfg.AnthropicAPIKey),
		openai.New(cfg.OpenAIAPIKey),
		qwen.New(cfg.DashScopeAPIKey),
	}
	router := cascade.NewRouter(providers)
	lib := library.Default()

	tracer := otel.GetTracerProvider().Tracer("storyloom")
	runner := cascade.NewRunner([]cascade.Strategy{
		cascade.NewRealtimeStrategy(router, rates, cfg.ProviderTimeout),
		cascade.NewTemplateStrategy(lib),
		cascade.NewPrecomputedStrategy(lib),
		cascade.NewCanonicalStrategy(lib),
		cascade.NewEmergencyStrategy(),
	}, quality.NewGate(), cfg.CascadeWallClock, tracer)

	svc := pipeline.NewService(controller, runner, recorder)

	// 11. Async worker
	queue := worker.NewRedisQueue(rdb, svc)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		if err := queue.Process(workerCtx); err != nil && err != context.Canceled {
			log.Printf("worker stopped: %v", err)
		}
	}()

	// 12. Init handler
	handler := server.NewHandler(svc, controller, ledger, recorder, billingStore, limiter, queue, tracer)

	// 13. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 14. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"storyloom"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/stories", handler.HandleGenerate)
		r.Post("/v1/admit", handler.HandleAdmit)
		r.Get("/v1/budget", handler.HandleBudget)
		r.Get("/v1/budget/analytics", handler.HandleAnalytics)
		r.Get("/v1/usage", handler.HandleUsage)
		r.Post("/v1/jobs/stories", handler.HandleEnqueue)
		r.Get("/v1/jobs/{id}", handler.HandleJob)
	})

	// 15. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("StoryLoom starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
