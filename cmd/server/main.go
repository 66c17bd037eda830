package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"idverify/internal/journey/handler"
	"idverify/internal/journey/handoff"
	journeymodels "idverify/internal/journey/models"
	journeyservice "idverify/internal/journey/service"
	journeystore "idverify/internal/journey/store"
	"idverify/internal/notify"
	smtpnotify "idverify/internal/notify/smtp"
	snsnotify "idverify/internal/notify/sns"
	"idverify/internal/pin/service"
	pinstore "idverify/internal/pin/store"
	"idverify/internal/platform/config"
	"idverify/internal/platform/httpserver"
	"idverify/internal/platform/logger"
	platformredis "idverify/internal/platform/redis"
	rlservice "idverify/internal/ratelimit/service"
	counterstore "idverify/internal/ratelimit/store/counter"
	"idverify/internal/resolve"
	httptransport "idverify/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic lives
// in the internal services.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis connected")
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		defer pool.Close()
		log.Info("postgres connected")
	}

	// Stores: shared backends when configured, in-memory for single-instance
	// development runs.
	var counters rlservice.CounterStore = counterstore.NewInMemoryCounterStore()
	if redisClient != nil {
		counters = counterstore.NewRedisCounterStore(redisClient.Client)
	}

	var codes service.CodeStore = pinstore.NewInMemoryCodeStore()
	if pool != nil {
		codes = pinstore.NewPostgresCodeStore(pool)
	}

	var journeys journeyservice.Store
	switch {
	case pool != nil:
		journeys = journeystore.NewPostgresJourneyStore(pool)
	case redisClient != nil:
		journeys = journeystore.NewRedisJourneyStore(redisClient.Client, cfg.JourneyExpiryWindow)
	default:
		journeys = journeystore.NewInMemoryJourneyStore()
	}

	limiter, err := rlservice.New(counters, rlservice.WithLogger(log))
	if err != nil {
		return err
	}

	sender, err := buildSender(ctx, cfg, log)
	if err != nil {
		return err
	}

	pins, err := service.New(codes, limiter, sender,
		service.WithLogger(log),
		service.WithLifetime(cfg.PinLifetime),
	)
	if err != nil {
		return err
	}

	registry := resolve.NewHTTPRegistryClient(cfg.RegistryBaseURL, cfg.RegistryAPIKey, cfg.RegistryTimeout)
	engine, err := resolve.NewEngine(registry, resolve.WithLogger(log))
	if err != nil {
		return err
	}

	signer, err := handoff.NewSigner(cfg.HandoffSigningKey, cfg.HandoffIssuer, cfg.HandoffAudience, cfg.HandoffLifetime)
	if err != nil {
		return err
	}

	journeySvc, err := journeyservice.New(journeys, pins, engine,
		journeyservice.WithLogger(log),
		journeyservice.WithHandoffSigner(signer),
		journeyservice.WithExpiryPolicy(journeymodels.ExpiryPolicy{
			Basis:  journeymodels.ExpiryBasis(cfg.JourneyExpiryBasis),
			Window: cfg.JourneyExpiryWindow,
		}),
	)
	if err != nil {
		return err
	}

	routerOpts := httptransport.Options{
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if redisClient != nil {
		routerOpts.Health = append(routerOpts.Health, redisClient)
	}
	router := httptransport.NewRouter(routerOpts, handler.New(journeySvc, log))

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting idverify", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := journeySvc.Sweep(gctx); err != nil {
					log.Error("journey sweep failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSender picks the delivery stack from configuration. Without SMTP the
// codes land in the log, which is enough for development.
func buildSender(ctx context.Context, cfg config.Config, log *slog.Logger) (notify.Sender, error) {
	if cfg.SMTPHost == "" {
		return notify.NewLogSender(log), nil
	}

	email := smtpnotify.NewMailer(cfg)
	sms, err := snsnotify.NewSender(ctx, cfg)
	if err != nil {
		log.Warn("sms delivery unavailable", "error", err)
		return notify.NewRouter(email, nil), nil
	}
	return notify.NewRouter(email, sms), nil
}
