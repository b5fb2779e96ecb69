// Server runs the voter auth HTTP API and the gRPC health endpoint.
// Without DATABASE_URL it keeps everything in memory (development only).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"election-voting/auth/internal/audit"
	audithandler "election-voting/auth/internal/audit/handler"
	auditrepo "election-voting/auth/internal/audit/repository"
	"election-voting/auth/internal/config"
	"election-voting/auth/internal/db"
	healthhandler "election-voting/auth/internal/health/handler"
	identityhandler "election-voting/auth/internal/identity/handler"
	"election-voting/auth/internal/identity/service"
	"election-voting/auth/internal/mfa"
	"election-voting/auth/internal/platform/logging"
	policyengine "election-voting/auth/internal/policy/engine"
	"election-voting/auth/internal/ratelimit"
	refreshrepo "election-voting/auth/internal/refreshtoken/repository"
	"election-voting/auth/internal/security"
	"election-voting/auth/internal/server"
	"election-voting/auth/internal/server/middleware"
	"election-voting/auth/internal/telemetry"
	telemetryotel "election-voting/auth/internal/telemetry/otel"
	"election-voting/auth/internal/telemetry/producer"
	voterrepo "election-voting/auth/internal/voter/repository"
)

const (
	shutdownTimeout    = 15 * time.Second
	healthSyncInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	if err := devSecrets(cfg, logger); err != nil {
		return err
	}
	tokens, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		ChallengeTTL:  cfg.ChallengeTTL(),
	})
	if err != nil {
		return err
	}
	secrets, err := security.NewSecretBoxFromHex(cfg.TOTPEncryptionKey)
	if err != nil {
		return err
	}

	var (
		voters  service.VoterRepo
		refresh refreshrepo.Repository
		audits  auditrepo.Repository
		pinger  healthhandler.Pinger
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		voters = voterrepo.NewPostgresRepository(pool)
		refresh = refreshrepo.NewPostgresRepository(pool, cfg.TxMaxAttempts)
		audits = auditrepo.NewPostgresRepository(pool)
		pinger = pool
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		voters = voterrepo.NewMemoryRepository()
		refresh = refreshrepo.NewMemoryRepository()
		audits = auditrepo.NewMemoryRepository()
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer, err = producer.NewKafkaProducer(brokers, cfg.AuditKafkaTopic)
		if err != nil {
			return err
		}
		emitters = append(emitters, kafkaProducer)
		logger.Info("streaming audit events to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.AuditKafkaTopic))
	}
	auditLogger := audit.NewLogger(audits, logger.Named("audit"), emitters...)

	var evaluator *policyengine.OPAEvaluator
	if cfg.BindingPolicyFile != "" {
		evaluator, err = policyengine.LoadOPAEvaluator(ctx, cfg.BindingPolicyFile, logger.Named("policy"))
	} else {
		evaluator, err = policyengine.NewOPAEvaluator(ctx, policyengine.DefaultRegoPolicy, logger.Named("policy"))
	}
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimitMax, cfg.RateLimitPeriod())
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitPeriod())
	}

	svc := service.NewAuthService(service.Deps{
		Voters:      voters,
		Refresh:     refresh,
		Hasher:      security.NewHasher(cfg.BcryptCost),
		Tokens:      tokens,
		TOTP:        mfa.NewTOTP(cfg.TOTPIssuer),
		Secrets:     secrets,
		Audit:       auditLogger,
		Issuer:      service.NewSessionIssuer(tokens, refresh, cfg.TokenVersion),
		Validate:    service.NewRefreshValidator(refresh, evaluator, auditLogger, cfg.TokenVersion, logger.Named("refresh")),
		AcceptDelay: cfg.AcceptDelay(),
		Logger:      logger.Named("auth"),
	})
	checker := healthhandler.NewChecker(pinger, evaluator, logger.Named("health"))

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewHTTPHandler(server.HTTPDeps{
			Auth:           identityhandler.NewHandler(svc, security.NewCookiePolicy(cfg.IsProduction(), tokens.AccessTTL(), tokens.RefreshTTL()), logger.Named("auth")),
			Audit:          audithandler.NewHandler(audits, logger.Named("audit")),
			Health:         checker,
			Authn:          middleware.NewAuthenticator(tokens, cfg.TokenVersion),
			Limiter:        limiter,
			AuditLogger:    auditLogger,
			AllowedOrigins: cfg.AllowedOrigins(),
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, healthSrv := server.NewGRPCServer(logger.Named("grpc"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			checker.Sync(gctx, healthSrv, healthSyncInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// Let in-flight async audit emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if cerr := kafkaProducer.Close(); cerr != nil {
			logger.Warn("kafka producer close failed", zap.Error(cerr))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := providers.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("otel shutdown failed", zap.Error(serr))
	}
	logger.Info("server stopped")
	return err
}

// devSecrets fills missing token secrets and the TOTP key with random values so
// development runs need no setup. Sessions then do not survive a restart.
// Production configs are rejected earlier by config.Load.
func devSecrets(cfg *config.Config, logger *zap.Logger) error {
	fill := func(name string, dst *string) error {
		if *dst != "" {
			return nil
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		*dst = hex.EncodeToString(b)
		logger.Warn("generated ephemeral secret", zap.String("name", name))
		return nil
	}
	if err := fill("ACCESS_TOKEN_SECRET", &cfg.AccessTokenSecret); err != nil {
		return err
	}
	if err := fill("REFRESH_TOKEN_SECRET", &cfg.RefreshTokenSecret); err != nil {
		return err
	}
	return fill("TOTP_ENCRYPTION_KEY", &cfg.TOTPEncryptionKey)
}
