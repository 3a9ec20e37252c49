package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cityrater/internal/catalog"
	"cityrater/internal/events"
	identityHandler "cityrater/internal/identity/handler"
	identityMetrics "cityrater/internal/identity/metrics"
	identityService "cityrater/internal/identity/service"
	identityStore "cityrater/internal/identity/store"
	"cityrater/internal/identity/telegram"
	jwttoken "cityrater/internal/jwt_token"
	"cityrater/internal/platform/config"
	"cityrater/internal/platform/database"
	"cityrater/internal/platform/httpserver"
	"cityrater/internal/platform/kafka"
	"cityrater/internal/platform/logger"
	"cityrater/internal/platform/metrics"
	"cityrater/internal/platform/redis"
	rankingHandler "cityrater/internal/ranking/handler"
	rankingMetrics "cityrater/internal/ranking/metrics"
	rankingService "cityrater/internal/ranking/service"
	rlMetrics "cityrater/internal/ratelimit/metrics"
	rlMiddleware "cityrater/internal/ratelimit/middleware"
	rlService "cityrater/internal/ratelimit/service"
	"cityrater/internal/ratelimit/store/bucket"
	httptransport "cityrater/internal/transport/http"
	voteHandler "cityrater/internal/vote/handler"
	voteMetrics "cityrater/internal/vote/metrics"
	voteService "cityrater/internal/vote/service"
	voteStore "cityrater/internal/vote/store"
)

type infra struct {
	cfg       config.Config
	log       *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	producer  *kafka.Producer
	publisher *events.Publisher
	catalog   *catalog.Catalog
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	in, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	pubCtx, stopPublisher := context.WithCancel(context.Background())
	go in.publisher.Run(pubCtx)
	defer func() {
		stopPublisher()
		in.publisher.Wait()
	}()

	router, err := buildRouter(in)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cityrater",
			"addr", cfg.Server.Addr,
			"database", cfg.Database.Driver,
			"redis", in.redis != nil,
			"kafka", in.producer != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{cfg: cfg, log: log}

	cat, err := catalog.Load(cfg.Catalog.CitiesFile, cfg.Catalog.AirportsFile)
	if err != nil {
		return nil, err
	}
	in.catalog = cat
	log.Info("catalog loaded",
		"cities", cat.Size(catalog.KindCity),
		"airports", cat.Size(catalog.KindAirport),
	)

	db, err := database.Open(ctx, database.Config{
		Driver:       cfg.Database.Driver,
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	in.db = db
	if err := database.Migrate(ctx, db); err != nil {
		in.close()
		return nil, err
	}

	in.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		in.close()
		return nil, err
	}

	var sink events.Sink = events.NewLogSink(log)
	if len(cfg.Kafka.Brokers) > 0 {
		in.producer, err = kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			in.close()
			return nil, err
		}
		if err := in.producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("kafka topic not created", "topic", cfg.Kafka.Topic, "error", err)
		}
		sink = events.NewKafkaSink(in.producer)
	}
	in.publisher = events.NewPublisher(sink,
		events.WithLogger(log),
		events.WithMetrics(events.NewMetrics()),
	)
	return in, nil
}

func (in *infra) close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("redis close failed", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.log.Warn("database close failed", "error", err)
		}
	}
}

func buildRouter(in *infra) (http.Handler, error) {
	cfg, log := in.cfg, in.log

	tx := database.NewTransactor(in.db,
		database.WithTimeout(cfg.Database.TxTimeout),
		database.WithMaxAttempts(cfg.Database.TxMaxAttempts),
	)

	identitySvc := identityService.New(identityStore.New(in.db), tx,
		identityService.WithLogger(log),
		identityService.WithMetrics(identityMetrics.New()),
		identityService.WithEventPublisher(in.publisher),
	)

	votes := voteStore.New(in.db)
	rankingSvc := rankingService.New(votes, in.catalog,
		rankingService.WithLogger(log),
		rankingService.WithMetrics(rankingMetrics.New()),
		rankingService.WithTTL(cfg.Votes.RankingCacheTTL),
	)
	voteSvc := voteService.New(votes, tx, in.catalog, identitySvc,
		voteService.WithLogger(log),
		voteService.WithMetrics(voteMetrics.New()),
		voteService.WithRankingInvalidator(rankingSvc),
		voteService.WithEventPublisher(in.publisher),
		voteService.WithMaxBulkEntities(cfg.Votes.MaxBulkEntities),
	)

	if cfg.UsingDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY is the development default; set it before deploying")
	}
	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer,
		jwttoken.WithTTL(cfg.Auth.JWTTTL),
	)
	if cfg.Auth.BotToken == "" {
		log.Warn("BOT_TOKEN is not set; Telegram registration will fail")
	}
	verifier := telegram.NewVerifier(cfg.Auth.BotToken, telegram.WithMaxAge(cfg.Auth.TelegramMaxAuthAge))

	var buckets rlService.BucketStore
	if in.redis != nil {
		buckets = bucket.NewRedisBucketStore(in.redis.Client)
	} else {
		buckets = bucket.NewInMemoryBucketStore()
	}
	limiter, err := rlService.New(buckets,
		rlService.PerMinute(cfg.RateLimit.ReadPerMin, cfg.RateLimit.WritePerMin, cfg.RateLimit.AuthPerMin),
		rlService.WithLogger(log),
		rlService.WithMetrics(rlMetrics.New()),
	)
	if err != nil {
		return nil, err
	}

	checks := map[string]httptransport.CheckFunc{"database": in.db.PingContext}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.producer != nil {
		checks["kafka"] = in.producer.Health
	}

	return httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		Tokens:         jwttoken.NewJWTServiceAdapter(jwtService),
		Limiter:        rlMiddleware.New(limiter, log, rlMiddleware.WithDisabled(cfg.RateLimit.Disabled)),
		Votes:          voteHandler.New(voteSvc, log),
		Rankings:       rankingHandler.New(rankingSvc, log, cfg.Votes.HiddenJamLimit),
		Identity:       identityHandler.New(identitySvc, verifier, jwtService, log),
		Health:         httptransport.NewHealthHandler(log, checks),
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}), nil
}
