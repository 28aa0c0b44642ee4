package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trade-engine/internal/ledger"
	"github.com/papertrade/trade-engine/internal/metrics"
	"github.com/papertrade/trade-engine/internal/quote"
	"github.com/papertrade/trade-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	port := envOr("PORT", "8080")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Quote gateway ---
	quoteTTL := envDuration("QUOTE_CACHE_TTL", 5*time.Minute)
	historyTTL := envDuration("HISTORY_CACHE_TTL", time.Hour)

	var cache quote.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		cache = quote.NewRedisCache(rdb, quoteTTL, historyTTL)
		slog.Info("Redis quote cache enabled")
	} else {
		mc := quote.NewMemoryCache(quoteTTL, historyTTL)
		go mc.Run(ctx, time.Minute)
		cache = mc
	}

	apiKey := os.Getenv("QUOTE_API_KEY")
	if apiKey == "" {
		slog.Error("QUOTE_API_KEY is required")
		os.Exit(1)
	}
	upstream := quote.NewClient(
		envOr("QUOTE_API_URL", "https://financialmodelingprep.com/api/v3"),
		apiKey,
		10*time.Second,
	)

	quota := quote.NewQuotaGuard(envInt("QUOTE_DAILY_LIMIT", 250), 24*time.Hour)
	gateway := quote.NewGateway(cache, quota, upstream, 30)

	// --- WebSocket hub ---
	hub := ledger.NewHub()
	go hub.Run()

	// --- Ledger service ---
	svc := ledger.NewService(st, gateway, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", svc.Status)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket endpoint for settlement and wallet events.
		r.Get("/ws", hub.HandleWS)

		// Quotes.
		r.Get("/stock/{symbol}", svc.GetStock)
		r.Get("/stocks/{symbols}", svc.GetStocks)
		r.Get("/historical/{symbol}", svc.GetHistorical)

		// Settlement.
		r.Post("/trade", svc.ExecuteTrade)
		r.Post("/wallet/transaction", svc.WalletTransaction)

		// Account views.
		r.Get("/wallet/{accountID}", svc.GetWallet)
		r.Get("/portfolio/{accountID}", svc.GetPortfolioHandler)
		r.Get("/history/trades/{accountID}", svc.GetTradeHistory)
		r.Delete("/history/trades/{accountID}", svc.PurgeTradeHistory)
		r.Get("/history/wallet/{accountID}", svc.GetWalletHistory)
		r.Delete("/history/wallet/{accountID}", svc.PurgeWalletHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trade-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down trade-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trade-engine stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}
