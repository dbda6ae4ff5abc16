package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btc-custody/config"
	httpHandler "btc-custody/internal/adapter/http/handler"
	memStorage "btc-custody/internal/adapter/storage/memory"
	pgStorage "btc-custody/internal/adapter/storage/postgres"
	redisStorage "btc-custody/internal/adapter/storage/redis"
	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/internal/service"
	"btc-custody/pkg/logger"

	"github.com/rs/zerolog"
)

// storage is the repository set for the configured driver.
type storage struct {
	wallets     ports.WalletRepository
	txs         ports.TransactionRepository
	idempotency ports.IdempotencyRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      ports.HealthChecker
	close       func()
}

func main() {
	cfg, err := config.Load(os.Getenv("CUSTODY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("network", cfg.Bitcoin.Network).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting BTC custody service")

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	checkers := []ports.HealthChecker{store.health}

	var (
		idempotencyCache ports.IdempotencyCache
		rateLimitStore   *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled: no idempotency cache, no rate limiting")
	}

	// Core services. Secrets are read once here and never change.
	network := domain.Network(cfg.Bitcoin.Network)
	keySvc := service.NewKeyService(logger.Component(log, "keys"))
	encSvc, err := service.NewAESEncryptionService(cfg.Crypto.MasterSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	integritySvc, err := service.NewIntegrityService(cfg.Crypto.IntegritySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize integrity service")
	}
	signingSvc := service.NewSigningService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(store.audit, logger.Component(log, "audit"))
	locker := service.NewWalletLocker()

	walletSvc := service.NewWalletService(
		store.wallets,
		store.transactor,
		keySvc,
		encSvc,
		integritySvc,
		locker,
		auditSvc,
		network,
		logger.Component(log, "wallets"),
	)
	ledgerSvc := service.NewLedgerService(service.LedgerDeps{
		WalletRepo:       store.wallets,
		TxRepo:           store.txs,
		IdempotencyRepo:  store.idempotency,
		IdempotencyCache: idempotencyCache,
		Transactor:       store.transactor,
		Keys:             keySvc,
		Encryption:       encSvc,
		Integrity:        integritySvc,
		Signer:           signingSvc,
		Locker:           locker,
		Audit:            auditSvc,
	}, network, cfg.Bitcoin.FeeSatoshis, logger.Component(log, "ledger"))

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		AuditSvc:       auditSvc,
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage: all data is lost on exit")
		s := memStorage.NewStore()
		return &storage{
			wallets:     memStorage.NewWalletRepo(s),
			txs:         memStorage.NewTransactionRepo(s),
			idempotency: memStorage.NewIdempotencyRepo(s),
			audit:       memStorage.NewAuditRepo(s),
			transactor:  s,
			health:      s,
			close:       func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &storage{
		wallets:     pgStorage.NewWalletRepo(pool),
		txs:         pgStorage.NewTransactionRepo(pool),
		idempotency: pgStorage.NewIdempotencyRepo(pool),
		audit:       pgStorage.NewAuditRepo(pool),
		transactor:  pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
		health:      pgStorage.NewHealthCheck(pool),
		close:       pool.Close,
	}, nil
}
