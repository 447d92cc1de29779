package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aeromarket/transfercore/config"
	"github.com/aeromarket/transfercore/internal/handler"
	"github.com/aeromarket/transfercore/internal/middleware"
	"github.com/aeromarket/transfercore/internal/repository"
	"github.com/aeromarket/transfercore/internal/service"
	"github.com/aeromarket/transfercore/internal/settings"
	"github.com/aeromarket/transfercore/pkg/cache"
	"github.com/aeromarket/transfercore/pkg/db"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgPool.Close()
	log.Info().Msg("postgresql connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	// ── Settings Provider ────────────────────────────────
	settingsProvider := settings.NewProvider()
	settingsProvider.Watch()

	// ── Repositories ─────────────────────────────────────
	jobRepo := repository.NewJobRepository(pgPool)
	bidRepo := repository.NewBidRepository(pgPool)
	bookingRepo := repository.NewBookingRepository(pgPool)
	operatorRepo := repository.NewOperatorRepository(pgPool)
	timerRepo := repository.NewTimerRepository(pgPool, redisClient)

	// ── Services ─────────────────────────────────────────
	notifySink := service.NewFanoutSink(service.NewLoggingSink(), service.NewRedisSink(redisClient))
	eligibilitySvc := service.NewEligibilityService(operatorRepo, settingsProvider)
	timerSvc := service.NewTimerService(timerRepo, redisClient)
	auctionEngine := service.NewAuctionEngine(jobRepo, bidRepo, bookingRepo, eligibilitySvc, timerSvc, notifySink, settingsProvider)
	adminSvc := service.NewAdminService(auctionEngine)
	bidGateway := service.NewBidGateway(jobRepo, bidRepo, bookingRepo, auctionEngine, eligibilitySvc, settingsProvider)

	// ── Handlers ─────────────────────────────────────────
	webhookHandler := handler.NewWebhookHandler(auctionEngine)
	bidHandler := handler.NewBidHandler(bidGateway)
	adminHandler := handler.NewAdminHandler(adminSvc)

	// ── Router ───────────────────────────────────────────
	router := mux.NewRouter()
	router.Use(middleware.Recoverer, middleware.RequestLogger)

	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/webhooks/booking-paid", webhookHandler.BookingPaid).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/booking-cancelled", webhookHandler.BookingCancelled).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/bids", bidHandler.PlaceOrUpdateBid).Methods(http.MethodPost)
	api.HandleFunc("/bids/{bid_id}", bidHandler.WithdrawBid).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{job_id}/offer/accept", bidHandler.AcceptOffer).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{job_id}/offer/decline", bidHandler.DeclineOffer).Methods(http.MethodPost)
	api.HandleFunc("/operators/{operator_id}/offers", bidHandler.ListMyOffers).Methods(http.MethodGet)
	api.HandleFunc("/admin/jobs/{job_id}/force-close", adminHandler.ForceCloseBidding).Methods(http.MethodPost)
	api.HandleFunc("/admin/jobs/{job_id}/assign", adminHandler.ManualAssign).Methods(http.MethodPost)
	api.HandleFunc("/admin/jobs/{job_id}/reopen", adminHandler.ReopenBidding).Methods(http.MethodPost)
	api.HandleFunc("/admin/jobs/{job_id}/cancel", adminHandler.CancelJob).Methods(http.MethodPost)
	api.HandleFunc("/admin/jobs/{job_id}/complete", adminHandler.CompleteJob).Methods(http.MethodPost)

	rootHandler := middleware.CORS(router)

	// ── Start HTTP server ────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      rootHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// ── Start the timer dispatcher ───────────────────────
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timerSvc.Run(dispatchCtx)
	}()

	go func() {
		log.Info().Str("addr", cfg.Server.ServerAddr()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	cancelDispatch()
	wg.Wait()

	log.Info().Msg("server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
