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

	"golang.org/x/sync/errgroup"

	"civitas/internal/audit"
	"civitas/internal/ceremony"
	"civitas/internal/ceremony/cache"
	"civitas/internal/challenge"
	"civitas/internal/grant"
	"civitas/internal/heartbeat"
	"civitas/internal/identity"
	"civitas/internal/platform/config"
	"civitas/internal/platform/httpserver"
	"civitas/internal/platform/logger"
	"civitas/internal/platform/metrics"
	platformredis "civitas/internal/platform/redis"
	"civitas/internal/ratelimit"
	"civitas/internal/registry"
	transport "civitas/internal/transport/http"
)

// main wires dependencies from configuration and runs the server. Which
// trust mode, rate limit store, and audit sink are active is decided here,
// once, from what is configured; services never re-check.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	health := transport.HealthChecks{}

	issuer, err := challenge.NewIssuer(cfg.ChallengeSecret)
	if err != nil {
		return err
	}
	deriver, err := identity.NewDeriver(cfg.IdentityPepper)
	if err != nil {
		return err
	}

	var envelopes *cache.Signer
	if len(cfg.EnvelopeSecret) > 0 {
		envelopes, err = cache.NewSigner(cfg.EnvelopeSecret)
		if err != nil {
			return err
		}
	}

	store, closeStore, err := buildStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer closeStore()
		store = registry.WithMetrics(store, met)
		health["store"] = store.Health
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var limitStore ratelimit.Store
	if redisClient != nil {
		defer redisClient.Close()
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
		health["redis"] = redisClient.Health
		log.Info("rate limit store: redis")
	} else {
		limitStore = ratelimit.NewMemoryStore()
		log.Info("rate limit store: in-memory")
	}

	sink, closeSink, err := buildSink(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	if closeSink != nil {
		defer closeSink()
	}
	emitter := audit.NewEmitter(sink, log, met)

	verifier, err := ceremony.NewWebAuthnVerifier(ceremony.RelyingParty{
		ID:     cfg.RelyingParty.ID,
		Name:   cfg.RelyingParty.Name,
		Origin: cfg.RelyingParty.Origin,
	})
	if err != nil {
		return err
	}

	ceremonies := ceremony.NewService(issuer, verifier, deriver, store, envelopes, emitter, log, met)
	heartbeats := heartbeat.NewService(store, cfg.Store.Timeout, emitter, log, met)
	grants := grant.NewService(deriver, store, emitter, log, met, cfg.Grant.Amount)

	router := transport.NewRouter(transport.Deps{
		Ceremonies:   ceremonies,
		Heartbeats:   heartbeats,
		Grants:       grants,
		Emitter:      emitter,
		RelyingParty: cfg.RelyingParty,
		RateLimit:    ratelimit.NewMiddleware(limitStore, log, met, ratelimit.WithDisabled(cfg.RateLimit.Disabled)),
		Limits:       cfg.RateLimit,
		Health:       health,
		Logger:       log,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting civitas",
		"addr", cfg.Addr,
		"store_backed", ceremonies.StoreBacked(),
		"rp_id", cfg.RelyingParty.ID,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := audit.NewWorker(emitter, log, 0).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildStore selects the identity store adapter. A nil store selects
// client-held credential mode.
func buildStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (registry.Store, func() error, error) {
	switch {
	case cfg.DSN != "":
		pg, err := registry.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		log.Info("identity store: postgres")
		return pg, pg.Close, nil
	case cfg.URL != "":
		log.Info("identity store: remote registry", "url", cfg.URL)
		return registry.NewHTTPStore(cfg.URL, cfg.Timeout), func() error { return nil }, nil
	default:
		log.Info("identity store: none, client-held credential mode")
		return nil, nil, nil
	}
}

// buildSink selects the audit sink. Kafka wins when brokers are configured;
// with nothing configured events are logged and dropped by the emitter.
func buildSink(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (audit.Sink, func(), error) {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		ks, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		log.Info("audit sink: kafka", "topic", cfg.KafkaTopic)
		return ks, ks.Close, nil
	case cfg.SinkURL != "":
		log.Info("audit sink: http", "url", cfg.SinkURL)
		return audit.NewHTTPSink(cfg.SinkURL, cfg.Timeout), nil, nil
	default:
		log.Info("audit sink: none, events are logged only")
		return nil, nil, nil
	}
}
