package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gmail_domain "github.com/huavcjj/mailbridge/internal/domain/gmail"
	messaging_domain "github.com/huavcjj/mailbridge/internal/domain/messaging"
	watermark_domain "github.com/huavcjj/mailbridge/internal/domain/watermark"
	"github.com/huavcjj/mailbridge/internal/infrastructure/oauth"
	gmail_repo "github.com/huavcjj/mailbridge/internal/infrastructure/repository/gmail"
	line_repo "github.com/huavcjj/mailbridge/internal/infrastructure/repository/line"
	messenger_repo "github.com/huavcjj/mailbridge/internal/infrastructure/repository/messenger"
	watermark_repo "github.com/huavcjj/mailbridge/internal/infrastructure/repository/watermark"
	"github.com/huavcjj/mailbridge/internal/service/dispatch"
	"github.com/huavcjj/mailbridge/internal/service/history"
	"github.com/huavcjj/mailbridge/internal/service/notification"
	"github.com/huavcjj/mailbridge/internal/service/watch"
)

const (
	PlatformMessenger = "messenger"
	PlatformLine      = "line"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

type Container struct {
	Authorizer          *oauth.Authorizer
	GmailRepo           gmail_domain.GmailRepo
	WatermarkRepo       watermark_domain.WatermarkRepo
	MessagingRepo       messaging_domain.MessagingRepo
	Fetcher             *history.Fetcher
	Dispatcher          *dispatch.Dispatcher
	NotificationService *notification.Service
	WatchRenewer        *watch.Renewer
}

type Config struct {
	MessagingPlatform    string
	MessengerAccessToken string
	MessengerAPIURL      string
	LineChannelToken     string
	RecipientIDs         []string
	SenderAllowlist      []string

	GmailUserID           string
	GmailLabelID          string
	GmailCredentialsPath  string
	GmailTokenPath        string
	GmailBootstrapHistory watermark_domain.Cursor
	GmailPubSubTopic      string
	GmailWatchInterval    time.Duration

	WatermarkBackend string
	WatermarkPath    string
	SQLitePath       string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string

	HTTPTimeout        time.Duration
	ResolveConcurrency int
	MaxTextLength      int
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	authorizer, err := oauth.NewAuthorizer(cfg.GmailCredentialsPath, cfg.GmailTokenPath, cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail authorizer: %w", err)
	}

	gmailRepo := gmail_repo.NewGmailRepo(authorizer, cfg.GmailUserID)

	watermarkRepo, err := newWatermarkRepo(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize watermark repository: %w", err)
	}

	messagingRepo, err := newMessagingRepo(cfg)
	if err != nil {
		watermarkRepo.Close()
		return nil, fmt.Errorf("failed to initialize messaging repository: %w", err)
	}

	if len(cfg.RecipientIDs) == 0 {
		slog.Warn("no recipients configured, mail will not be forwarded")
	}
	if len(cfg.SenderAllowlist) == 0 {
		slog.Warn("sender allowlist is empty, every message will be rejected")
	}

	fetcher := history.NewFetcher(ctx, gmailRepo, watermarkRepo, cfg.GmailLabelID, cfg.GmailBootstrapHistory)
	dispatcher := dispatch.NewDispatcher(messagingRepo, cfg.RecipientIDs)

	notificationService := notification.NewService(
		fetcher,
		notification.NewResolver(gmailRepo),
		notification.NewSenderFilter(cfg.SenderAllowlist),
		dispatcher,
		notification.Config{
			Recipients:         dispatcher.Recipients(),
			ResolveConcurrency: cfg.ResolveConcurrency,
			MaxTextLength:      cfg.MaxTextLength,
		},
	)

	renewer := watch.NewRenewer(gmailRepo, cfg.GmailPubSubTopic, cfg.GmailLabelID, cfg.GmailWatchInterval)

	slog.Info("container initialized",
		"platform", cfg.MessagingPlatform,
		"watermark_backend", cfg.WatermarkBackend,
		"recipients", len(dispatcher.Recipients()),
		"allowed_senders", len(cfg.SenderAllowlist),
		"label_id", cfg.GmailLabelID,
	)

	return &Container{
		Authorizer:          authorizer,
		GmailRepo:           gmailRepo,
		WatermarkRepo:       watermarkRepo,
		MessagingRepo:       messagingRepo,
		Fetcher:             fetcher,
		Dispatcher:          dispatcher,
		NotificationService: notificationService,
		WatchRenewer:        renewer,
	}, nil
}

func newWatermarkRepo(ctx context.Context, cfg Config) (watermark_domain.WatermarkRepo, error) {
	switch cfg.WatermarkBackend {
	case "", BackendFile:
		return watermark_repo.NewFileRepo(cfg.WatermarkPath)
	case BackendSQLite:
		return watermark_repo.NewSQLiteRepo(ctx, cfg.SQLitePath)
	case BackendMySQL:
		return watermark_repo.NewMySQLRepo(ctx, watermark_repo.MySQLConfig{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
		})
	default:
		return nil, fmt.Errorf("unknown watermark backend %q", cfg.WatermarkBackend)
	}
}

func newMessagingRepo(cfg Config) (messaging_domain.MessagingRepo, error) {
	switch cfg.MessagingPlatform {
	case "", PlatformMessenger:
		return messenger_repo.NewMessengerRepo(cfg.MessengerAPIURL, cfg.MessengerAccessToken, cfg.HTTPTimeout)
	case PlatformLine:
		return line_repo.NewLineRepo(cfg.LineChannelToken)
	default:
		return nil, fmt.Errorf("unknown messaging platform %q", cfg.MessagingPlatform)
	}
}

// Close waits for pending cursor writes and releases the watermark store.
func (c *Container) Close() error {
	if c.Fetcher != nil {
		c.Fetcher.WaitSaves()
	}
	if c.WatermarkRepo != nil {
		return c.WatermarkRepo.Close()
	}
	return nil
}
