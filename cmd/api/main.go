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

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/maplecart/api/internal/di"
	"github.com/maplecart/api/internal/handlers"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/idempotency"
	"github.com/maplecart/api/internal/platform/invoice"
	"github.com/maplecart/api/internal/platform/jobs"
	"github.com/maplecart/api/internal/platform/mail"
	"github.com/maplecart/api/internal/platform/observability"
	"github.com/maplecart/api/internal/platform/requestctx"
	"github.com/maplecart/api/internal/platform/secrets"
	platformstorage "github.com/maplecart/api/internal/platform/storage"
	firestoreRepo "github.com/maplecart/api/internal/repositories/firestore"
	"github.com/maplecart/api/internal/services"
)

const (
	providerCloseTimeout = 5 * time.Second
	shutdownTimeout      = 10 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	if err := run(ctx, logger); err != nil {
		logger.Fatal("api terminated", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	resolver, err := secrets.NewResolver(ctx, cfg.Firestore.ProjectID, secrets.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialise secret resolver: %w", err)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("failed to close secret resolver", zap.Error(err))
		}
	}()

	jwtSecret, err := resolver.Resolve(ctx, cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	mailPassword, err := resolver.Resolve(ctx, cfg.Mail.Password)
	if err != nil {
		return fmt.Errorf("resolve mail password: %w", err)
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), providerCloseTimeout)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("failed to close firestore provider", zap.Error(err))
		}
	}()

	fsClient, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("initialise firestore client: %w", err)
	}

	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(jwtSecret, auth.WithTokenTTL(cfg.Auth.TokenTTL), auth.WithRefreshTTL(cfg.Auth.RefreshTTL))
	if err != nil {
		return fmt.Errorf("initialise token issuer: %w", err)
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	authn := auth.NewAuthenticator(tokens, auth.WithGuestHeader(cfg.Auth.GuestHeader))

	var archive services.InvoiceArchive
	if cfg.Storage.InvoicesBucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("initialise cloud storage client: %w", err)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("failed to close storage client", zap.Error(err))
			}
		}()
		archive, err = platformstorage.NewArchive(storageClient, cfg.Storage.InvoicesBucket)
		if err != nil {
			return fmt.Errorf("initialise invoice archive: %w", err)
		}
	} else {
		logger.Info("invoice archive disabled, no bucket configured")
	}

	var mailSender services.MailSender
	if cfg.Mail.Host != "" {
		mailSender = mail.NewSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, mailPassword, cfg.Mail.From)
	} else {
		logger.Info("invoice mail disabled, no smtp host configured")
	}

	var events services.EventPublisher
	if cfg.Events.OrderTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return fmt.Errorf("initialise pubsub client: %w", err)
		}
		topic := pubsubClient.Topic(cfg.Events.OrderTopic)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("failed to close pubsub client", zap.Error(err))
			}
		}()
		events, err = jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			return fmt.Errorf("initialise event publisher: %w", err)
		}
	} else {
		logger.Info("order events disabled, no topic configured")
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Tokens:    tokens,
		Passwords: hasher,
		Renderer:  invoice.NewRenderer(),
		Archive:   archive,
		Mail:      mailSender,
		Events:    events,
		Logger:    serviceLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("initialise container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), providerCloseTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("failed to close container", zap.Error(err))
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idempotencyStore := idempotency.NewFirestoreStore(fsClient)
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	go cleanupIdempotencyRecords(runCtx, logger, idempotencyStore, cfg.Idempotency)

	authHandlers := handlers.NewAuthHandlers(container.Services.Users)
	meHandlers := handlers.NewMeHandlers(authn, container.Services.Users)
	catalogHandlers := handlers.NewCatalogHandlers(authn, container.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(authn, container.Services.Carts)
	orderHandlers := handlers.NewOrderHandlers(authn, container.Services.Orders, container.Services.Payments, container.Services.Invoices)
	adminCatalog := handlers.NewAdminCatalogHandlers(authn, container.Services.Catalog)
	adminOrders := handlers.NewAdminOrderHandlers(authn, container.Services.Orders)
	adminUsers := handlers.NewAdminUserHandlers(authn, container.Services.Users)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			httpx.RateLimitMiddleware(httpx.RateLimitOptions{
				PerMinute:              cfg.RateLimits.DefaultPerMinute,
				AuthenticatedPerMinute: cfg.RateLimits.AuthenticatedPerMinute,
			}),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.Services.System)),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithProductRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
		handlers.WithAdminRoutes(handlers.AdminRoutes(adminCatalog, adminOrders, adminUsers.Routes)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-runCtx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("api stopped")
	return nil
}

// serviceLogger adapts the zap logger to the event-style callback the
// service layer accepts. The request-scoped logger wins when present.
func serviceLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}

func cleanupIdempotencyRecords(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx, time.Now(), cfg.CleanupBatchSize)
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency records removed", zap.Int("count", removed))
			}
		}
	}
}
