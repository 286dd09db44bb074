package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/alertfunnel/alertfunnel/internal/alerts/transformers"
	"github.com/alertfunnel/alertfunnel/internal/config"
	"github.com/alertfunnel/alertfunnel/internal/consumer"
	"github.com/alertfunnel/alertfunnel/internal/database"
	"github.com/alertfunnel/alertfunnel/internal/jobs"
	"github.com/alertfunnel/alertfunnel/internal/processor"
	"github.com/alertfunnel/alertfunnel/internal/tracker"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("app", "alertfunnel").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.QueueURL == "" {
		log.Fatal().Msg("ALERT_QUEUE_URL is not set")
	}

	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}

	ttl := time.Duration(cfg.StateTTLYears) * 365 * 24 * time.Hour
	store := database.NewAlertStateStore(database.GetDB()).WithTTL(ttl)
	proc := processor.NewProcessor(transformers.Default(cfg.Overrides.RegionAliases))

	var issues processor.IssueCreator
	if cfg.CreateIssues {
		issues = tracker.NewGitHubClient(cfg.GitHubOwner, cfg.GitHubRepo, tracker.StaticTokenSource{Value: cfg.GitHubToken})
		log.Info().Str("repo", cfg.IssueRepo()).Msg("issue filing enabled")
	}

	handler := processor.NewBatchHandler(proc, store, issues, cfg.IssueRepo())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS configuration")
	}

	go jobs.NewExpiryReaper(database.GetDB()).Start(ctx, jobs.DefaultReapInterval)

	c := consumer.New(sqs.NewFromConfig(awsCfg), cfg.QueueURL, handler).
		WithWaitTime(int32(cfg.PollWaitSeconds))
	if err := c.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
