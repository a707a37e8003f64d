package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/database"
	"github.com/helixdata/onboard-engine/pkg/handlers"
	"github.com/helixdata/onboard-engine/pkg/messaging"
	"github.com/helixdata/onboard-engine/pkg/middleware"
	"github.com/helixdata/onboard-engine/pkg/repositories"
	"github.com/helixdata/onboard-engine/pkg/secrets"
	"github.com/helixdata/onboard-engine/pkg/services"

	// Prober backends register themselves on import.
	_ "github.com/helixdata/onboard-engine/pkg/adapters/probe/mssql"
	_ "github.com/helixdata/onboard-engine/pkg/adapters/probe/mysql"
	_ "github.com/helixdata/onboard-engine/pkg/adapters/probe/opensearch"
	_ "github.com/helixdata/onboard-engine/pkg/adapters/probe/postgres"
	_ "github.com/helixdata/onboard-engine/pkg/adapters/probe/s3"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: time.Duration(cfg.Mongo.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to connect to document store", zap.Error(err))
	}
	defer func() { _ = db.Close(context.Background()) }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	appRepo := repositories.NewAppRepository(db, cfg.Mongo.AppCollection)
	refRepo := repositories.NewReferenceRepository(db, cfg.Mongo.RefCollection)
	attemptRepo := repositories.NewAttemptRepository(db, cfg.Mongo.AttemptCollection)
	taskRepo := repositories.NewCompletionTaskRepository(db, cfg.Mongo.TaskCollection)

	resolver := secrets.NewAWSResolver(secretsmanager.NewFromConfig(awsCfg))
	verifier := services.NewConnectivityVerifier(cfg, resolver, logger)
	topology := services.NewTopologyService(appRepo, logger)
	credentials := services.NewCredentialService(apigateway.NewFromConfig(awsCfg), appRepo, cfg, logger)

	publisher := messaging.NewKafkaPublisher(messaging.Config{
		Brokers:         cfg.Kafka.Brokers,
		Topic:           cfg.Kafka.OnboardingTopic,
		TrailingMessage: cfg.Kafka.TrailingMessage,
	}, logger)
	defer func() { _ = publisher.Close() }()

	onboarding := services.NewOnboardingService(
		appRepo, refRepo, attemptRepo, taskRepo,
		verifier, topology, credentials, publisher,
		cfg, logger)

	// Completion tasks interrupted by a previous shutdown resume here.
	if err := onboarding.Recover(ctx); err != nil {
		logger.Error("Failed to recover pending completion tasks", zap.Error(err))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewOnboardingHandler(onboarding, cfg, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	logger.Info("Starting onboard-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.Strings("supported_sources", cfg.SupportedSources.All()))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
