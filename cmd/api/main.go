package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/skyward-labs/ndc-gateway/internal/components"
	"github.com/skyward-labs/ndc-gateway/internal/di"
	"github.com/skyward-labs/ndc-gateway/internal/handlers"
	"github.com/skyward-labs/ndc-gateway/internal/metadata"
	"github.com/skyward-labs/ndc-gateway/internal/payments"
	"github.com/skyward-labs/ndc-gateway/internal/platform/archive"
	"github.com/skyward-labs/ndc-gateway/internal/platform/auth"
	"github.com/skyward-labs/ndc-gateway/internal/platform/config"
	pfirestore "github.com/skyward-labs/ndc-gateway/internal/platform/firestore"
	"github.com/skyward-labs/ndc-gateway/internal/platform/observability"
	"github.com/skyward-labs/ndc-gateway/internal/platform/secrets"
	"github.com/skyward-labs/ndc-gateway/internal/provider"
	firestoreRepo "github.com/skyward-labs/ndc-gateway/internal/repositories/firestore"
	"github.com/skyward-labs/ndc-gateway/internal/services"
)

// Populated via -ldflags at build time.
var (
	version   = "dev"
	commitSHA = ""
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("gateway")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	contexts, err := metadata.NewStore(metadata.StoreDeps{
		Repository: registry.Contexts(),
		Logger:     logger,
		Clock:      time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise context store", zap.Error(err))
	}

	var archiver provider.Archiver
	if cfg.Archive.Bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage client close error", zap.Error(err))
			}
		}()
		archiver, err = archive.NewArchiver(storageClient.Bucket(cfg.Archive.Bucket),
			archive.WithLogger(logger.Named("archive")))
		if err != nil {
			logger.Fatal("failed to initialise archiver", zap.Error(err))
		}
	} else {
		logger.Warn("wire message archiving disabled: no bucket configured")
	}

	providers, err := di.NewProviderClients(cfg, contexts, archiver, logger, time.Now)
	if err != nil {
		logger.Fatal("failed to initialise providers", zap.Error(err))
	}

	rulesEngine, err := di.NewRulesEngine(cfg.Rules)
	if err != nil {
		logger.Fatal("failed to load policy profiles", zap.Error(err))
	}

	if cfg.Guarantees.Endpoint == "" {
		logger.Fatal("settlement service endpoint is required")
	}
	guarantees, err := payments.NewHTTPGuaranteeService(payments.HTTPGuaranteeConfig{
		Endpoint: cfg.Guarantees.Endpoint,
		APIKey:   cfg.Guarantees.APIKey,
	})
	if err != nil {
		logger.Fatal("failed to initialise settlement service client", zap.Error(err))
	}

	var charges services.ChargeManager
	if cfg.Payments.StripeAPIKey != "" {
		stripeLogger := logger.Named("stripe")
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.Payments.StripeAPIKey,
			AccountID: cfg.Payments.StripeAccountID,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				stripeLogger.Debug(event, zap.Any("fields", fields))
			},
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		manager, err := payments.NewManager(
			map[string]payments.Provider{"stripe": stripeProvider},
			payments.WithDefaultProvider("stripe"),
		)
		if err != nil {
			logger.Fatal("failed to initialise charge manager", zap.Error(err))
		}
		charges = manager
	} else {
		logger.Warn("booking fee charging disabled: no stripe key configured")
	}

	var notifier components.Notifier = components.NopNotifier{}
	if cfg.Components.Topic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Components.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub client close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(cfg.Components.Topic)
		defer topic.Stop()
		notifier, err = components.NewPubSubNotifier(topic)
		if err != nil {
			logger.Fatal("failed to initialise component notifier", zap.Error(err))
		}
	} else {
		logger.Warn("component notifications disabled: no topic configured")
	}

	container, err := di.NewContainer(cfg, di.Deps{
		Registry:   registry,
		Providers:  providers,
		Rules:      rulesEngine,
		Guarantees: guarantees,
		Charges:    charges,
		Components: notifier,
		Logger:     logger,
		Build: services.BuildInfo{
			Version:     version,
			CommitSHA:   commitSHA,
			Environment: cfg.Environment,
			StartedAt:   startedAt,
		},
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	if cfg.Auth.JWKSURL == "" {
		logger.Fatal("auth jwks url is required")
	}
	jwksCache := auth.NewJWKSCache(cfg.Auth.JWKSURL,
		auth.WithJWKSLogger(observability.NewPrintfAdapter(logger.Named("jwks"))))
	authn := auth.NewAuthenticator(jwksCache,
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithOrgClaim(cfg.Auth.OrgClaim),
		auth.WithAuthLogger(observability.NewPrintfAdapter(logger.Named("auth"))))

	offerHandlers := handlers.NewOfferHandlers(authn, container.Services.Offers)
	orderHandlers := handlers.NewOrderHandlers(authn, container.Services.Orders)
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOfferRoutes(offerHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
			zap.Int("providers", len(providers)))
		serverErrors <- server.ListenAndServe()
	}()

	shutdownSignal, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-shutdownSignal.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("GATEWAY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("GATEWAY_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("GATEWAY_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("GATEWAY_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("GATEWAY_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the resolved values that must be non-empty for
// the deployment to come up. Only concerns actually enabled by the
// environment are required.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	if lookup("GATEWAY_PAYMENTS_STRIPE_API_KEY") != "" {
		required = append(required, "Payments.StripeAPIKey")
	}
	if lookup("GATEWAY_GUARANTEES_API_KEY") != "" {
		required = append(required, "Guarantees.APIKey")
	}
	for _, id := range strings.Split(lookup("GATEWAY_PROVIDERS"), ",") {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		envKey := "GATEWAY_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_API_KEY"
		if lookup(envKey) != "" {
			required = append(required, fmt.Sprintf("Providers[%s].APIKey", id))
		}
	}
	return required
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	return parseKeyValueList(env["GATEWAY_SECRET_PROJECT_IDS"], true)
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	return parseKeyValueList(env["GATEWAY_SECRET_VERSION_PINS"], false)
}

func parseKeyValueList(raw string, lowerKeys bool) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(strings.TrimSpace(raw), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if lowerKeys {
			key = strings.ToLower(key)
		}
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
