// scan-service — asynchronous job-discovery pipeline.
//
// Admission puts credit-gated scan requests on a durable Redis queue; the
// drain loop runs each through discover → filter → scrape → normalize →
// persist and upserts the results into Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jobmate/scan-service/internal/config"
	"jobmate/scan-service/internal/credits"
	"jobmate/scan-service/internal/db"
	"jobmate/scan-service/internal/filter"
	"jobmate/scan-service/internal/httpapi"
	"jobmate/scan-service/internal/pipeline"
	"jobmate/scan-service/internal/profile"
	"jobmate/scan-service/internal/queue"
	"jobmate/scan-service/internal/scan"
	"jobmate/scan-service/internal/scheduler"
	"jobmate/scan-service/internal/scrapeexec"
	"jobmate/scan-service/internal/search"
	"jobmate/scan-service/internal/sink"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scan-service] Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[scan-service] Postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[scan-service] Redis: %v", err)
	}
	defer rdb.Close()

	orchestrator := pipeline.New(
		pipeline.Config{
			ScrapeZone:     cfg.ScrapeZone,
			ScrapeCustomer: cfg.ScrapeCustomer,
			ScrapeMode:     cfg.ScrapeMode,
			ResultLimit:    cfg.ResultLimit,
			TruncatePolicy: cfg.TruncatePolicy,
		},
		profile.NewSource(pool),
		search.NewClient(cfg.SearchAPIURL, cfg.SearchAPIKey),
		filter.NewClient(cfg.ScoreAPIURL),
		scrapeexec.NewExecutor(cfg.ScrapeAPIURL, cfg.ScrapeAPIKey),
		pipeline.NewHTMLNormalizer(),
		sink.New(pool),
	)

	scans := scan.NewService(
		queue.NewRedisStore(rdb),
		credits.NewGate(pool),
		orchestrator,
		queue.DefaultOptions(),
	)

	drainOpts := scan.DrainOptions{
		Concurrency: cfg.Drain.Concurrency,
		MaxJobs:     cfg.Drain.MaxJobs,
		MaxDuration: cfg.Drain.MaxDuration,
		IdleWait:    cfg.Drain.IdleWait,
	}

	if cfg.DrainIntervalMinutes > 0 {
		sched := scheduler.New(scans, drainOpts, cfg.DrainIntervalMinutes)
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("[scan-service] Scheduler: %v", err)
		}
		defer sched.Stop()
	}

	api := httpapi.New(scans, pipeline.NewHTMLNormalizer(), sink.New(pool), cfg.Drain, cfg.InternalToken)
	mux := http.NewServeMux()
	api.Routes(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("[scan-service] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[scan-service] Fatal: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[scan-service] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scan-service] Shutdown: %v", err)
		os.Exit(1)
	}
}
