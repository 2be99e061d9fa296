package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/notification"
	"clawfinance/internal/domain/openfinance"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/infrastructure/crypto"
	"clawfinance/internal/infrastructure/firebase"
	"clawfinance/internal/infrastructure/flinks"
	"clawfinance/internal/infrastructure/lock"
	"clawfinance/internal/infrastructure/postgres"
	"clawfinance/internal/infrastructure/redis"
	httphandlers "clawfinance/internal/interfaces/http"
	"clawfinance/internal/shared/auth"
	"clawfinance/internal/shared/config"
	"clawfinance/internal/shared/messages"
	"clawfinance/internal/shared/middleware"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Redis *goredis.Client

	// Handlers
	ConnectionHandler *httphandlers.ConnectionHandler
	AccountHandler    *httphandlers.AccountHandler
	HealthHandler     *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// Shared across replicas when Redis is configured.
	RateLimitStore middleware.RateLimitStore

	// For the scheduler job provider
	ConnectionService *connection.Service
	SyncService       *openfinance.SyncService

	closers []io.Closer
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	deps.DB = db
	deps.closers = append(deps.closers, db)
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := postgres.Migrate(ctx, db); err != nil {
		deps.Close()
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encrypt.Key)
	if err != nil {
		deps.Close()
		return nil, err
	}

	// Repositories
	connectionRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	// Provider
	flinksClient := flinks.NewClient(cfg.Flinks.BaseURL(), cfg.Flinks.CustomerID, cfg.Flinks.Timeout)

	// Domain services
	connectionService := connection.NewService(connectionRepo, flinksClient, encryptor, logger)
	accountService := account.NewService(accountRepo)
	transactionService := transaction.NewService(transactionRepo)

	locker, err := deps.newLocker(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	syncService := openfinance.NewSyncService(
		connectionService,
		flinksClient,
		openfinance.NewReconciler(accountService, transactionService),
		notifier,
		locker,
		openfinance.SyncConfig{PollInterval: cfg.Sync.PollInterval, MaxPolls: cfg.Sync.MaxPolls},
		logger,
	)

	deps.JWT = auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	deps.ConnectionService = connectionService
	deps.SyncService = syncService
	deps.ConnectionHandler = httphandlers.NewConnectionHandler(connectionService, syncService, logger)
	deps.AccountHandler = httphandlers.NewAccountHandler(accountService, transactionService, logger)
	deps.HealthHandler = httphandlers.NewHealthHandler(db, logger)

	return deps, nil
}

// newLocker returns the Redis lease lock when REDIS_URL is set, otherwise an
// in-process lock. The Redis client also backs the rate-limit counters.
func (d *Dependencies) newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (openfinance.Locker, error) {
	if cfg.Redis.URL == "" {
		logger.Info("redis not configured, using in-process sync lock and rate limits")
		store := middleware.NewMemoryRateLimitStore(time.Minute)
		d.RateLimitStore = store
		d.closers = append(d.closers, store)
		return lock.NewLocal(), nil
	}

	client, err := redis.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	d.Redis = client
	d.closers = append(d.closers, client)
	d.RateLimitStore = redis.NewRateLimitStore(client, cfg.Redis.KeyPrefix)
	logger.Info("connected to redis")

	return redis.NewLocker(client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, logger), nil
}

// newNotifier builds the push notification service. Without Firebase
// credentials it still renders texts but sends nothing.
func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*notification.Service, error) {
	texts, err := messages.Load(cfg.Firebase.MessagesFile)
	if err != nil {
		return nil, err
	}

	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		client, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, logger)
		if err != nil {
			return nil, err
		}
		messenger = client
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_FILE not set, push notifications disabled")
	}

	return notification.NewService(messenger, texts, logger), nil
}

// Close releases all resources held by dependencies, newest first.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i].Close())
	}
	return errors.Join(errs...)
}
