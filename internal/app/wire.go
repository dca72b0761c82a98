package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/sdtonline/repricer/internal/blob/s3"
	"github.com/sdtonline/repricer/internal/cache/redis"
	"github.com/sdtonline/repricer/internal/config"
	"github.com/sdtonline/repricer/internal/domain"
	"github.com/sdtonline/repricer/internal/feed"
	"github.com/sdtonline/repricer/internal/notify"
	"github.com/sdtonline/repricer/internal/platform/spapi"
	"github.com/sdtonline/repricer/internal/store/postgres"
	"github.com/sdtonline/repricer/internal/testdata"
)

// Dependencies bundles everything the repricer service needs to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Marketplaces domain.MarketplaceStore
	Profiles     domain.ProfileStore
	Skus         domain.SkuStore
	Events       domain.PriceEventStore
	Runs         domain.RunStore
	Alerts       domain.AlertStore
	Settings     domain.SettingStore
	TestData     domain.TestDataStore

	// Caches (nil when Redis is not configured)
	Locks     domain.LockManager
	Snapshots domain.RunSnapshotCache

	// Blob storage (nil when S3 is not configured)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Collaborators
	Feeds    *feed.Loader
	API      *spapi.Client
	Ingester *testdata.Ingester
	Notifier *notify.Notifier
	Sink     *notify.AlertSink
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Marketplaces = postgres.NewMarketplaceStore(pool)
	deps.Profiles = postgres.NewProfileStore(pool)
	deps.Skus = postgres.NewSkuStore(pool)
	deps.Events = postgres.NewPriceEventStore(pool)
	deps.Runs = postgres.NewRunStore(pool)
	deps.Alerts = postgres.NewAlertStore(pool)
	deps.Settings = postgres.NewSettingStore(pool)
	deps.TestData = postgres.NewTestDataStore(pool)

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Snapshots = redis.NewRunSnapshotCache(redisClient)
	}

	// --- S3 blob storage (required for the s3 feed source, else optional) ---
	if cfg.Feed.Source == "s3" || cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Floor price feeds ---
	var source feed.Source
	switch cfg.Feed.Source {
	case "s3":
		source = feed.NewS3Source(deps.BlobReader, cfg.Feed.Prefix)
	default:
		source = feed.NewDirSource(cfg.Feed.Root)
	}
	staleAfter := time.Duration(cfg.Feed.StaleThresholdMinutes) * time.Minute
	deps.Feeds = feed.NewLoader(source, staleAfter, logger)

	// --- Marketplace API ---
	deps.API = spapi.NewClient(spapi.ClientConfig{
		Endpoint:     cfg.API.Endpoint,
		TokenURL:     cfg.API.TokenURL,
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		RefreshToken: cfg.API.RefreshToken,
		SellerID:     cfg.API.SellerID,
		Rate:         cfg.API.Rate,
		Burst:        cfg.API.Burst,
		MaxAttempts:  cfg.API.MaxAttempts,
	}, logger)

	// --- Test data ingestion ---
	deps.Ingester = testdata.NewIngester(deps.TestData, logger)

	// --- Alerting ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, domain.SeverityWarning, logger)
	deps.Sink = notify.NewAlertSink(deps.Alerts, deps.Notifier, logger)

	return deps, cleanup, nil
}

// seedMarketplaces makes sure every configured marketplace exists in the
// store before the scheduler starts sweeping.
func seedMarketplaces(ctx context.Context, store domain.MarketplaceStore, marketplaces map[string]string) error {
	for code, externalID := range marketplaces {
		m := domain.Marketplace{
			Code:       code,
			Name:       code,
			ExternalID: externalID,
		}
		if err := store.Ensure(ctx, m); err != nil {
			return fmt.Errorf("app: seed marketplace %s: %w", code, err)
		}
	}
	return nil
}
