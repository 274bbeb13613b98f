package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	watermark_domain "github.com/huavcjj/mailbridge/internal/domain/watermark"
	"github.com/huavcjj/mailbridge/internal/di"
	oauth_handler "github.com/huavcjj/mailbridge/internal/handler/oauth"
	"github.com/huavcjj/mailbridge/internal/handler/webhook"
	"github.com/huavcjj/mailbridge/internal/infrastructure/oauth"
	"github.com/huavcjj/mailbridge/internal/infrastructure/repository/messenger"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found")
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	port := getEnv("PORT", "8080")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer container.Close()

	if !container.Authorizer.Authorized() {
		slog.Warn("gmail is not authorized yet, open the URL below to grant access",
			"auth_url", container.Authorizer.AuthURL())
	}

	if container.WatchRenewer.Enabled() {
		go container.WatchRenewer.Run(ctx, oauth.ErrNotAuthorized)
	} else {
		slog.Info("GMAIL_PUBSUB_TOPIC not set, skipping watch renewal")
	}

	pubsubWebhookHandler := webhook.NewPubSubWebhookHandler(container.NotificationService)
	messengerWebhookHandler := webhook.NewMessengerWebhookHandler(os.Getenv("MESSENGER_VERIFY_TOKEN"))
	lineWebhookHandler := webhook.NewLineWebhookHandler(os.Getenv("LINE_CHANNEL_SECRET"))
	gmailOAuthHandler := oauth_handler.NewGmailOAuthHandler(container.Authorizer, container.WatchRenewer)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/pubsub", pubsubWebhookHandler.HandlePubSub)
	mux.HandleFunc("/{$}", pubsubWebhookHandler.HandlePubSub)
	mux.HandleFunc("/messenger", messengerWebhookHandler.HandleWebhook)
	mux.HandleFunc("/webhook/line", lineWebhookHandler.HandleWebhook)
	mux.HandleFunc("/oauth/gmail/callback", gmailOAuthHandler.HandleCallback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	certFile := os.Getenv("TLS_CERT_FILE")
	keyFile := os.Getenv("TLS_KEY_FILE")

	serverErr := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			slog.Info("starting server", "address", server.Addr, "tls", true)
			err = server.ListenAndServeTLS(certFile, keyFile)
		} else {
			slog.Info("starting server", "address", server.Addr, "tls", false)
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := container.NotificationService.Wait(shutdownCtx); err != nil {
		slog.Warn("pending pushes did not finish", "error", err)
	}
	if err := container.Dispatcher.Wait(shutdownCtx); err != nil {
		slog.Warn("pending deliveries did not finish", "error", err)
	}

	slog.Info("shutdown completed")
	return nil
}

func loadConfig() (di.Config, error) {
	bootstrap, err := watermark_domain.ParseCursor(getEnv("GMAIL_BOOTSTRAP_HISTORY_ID", "1"))
	if err != nil {
		return di.Config{}, fmt.Errorf("invalid GMAIL_BOOTSTRAP_HISTORY_ID: %w", err)
	}
	httpTimeout, err := getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return di.Config{}, err
	}
	watchInterval, err := getEnvDuration("GMAIL_WATCH_RENEW_INTERVAL", 24*time.Hour)
	if err != nil {
		return di.Config{}, err
	}
	concurrency, err := getEnvInt("RESOLVE_CONCURRENCY", 10)
	if err != nil {
		return di.Config{}, err
	}
	maxTextLength, err := getEnvInt("MAX_TEXT_LENGTH", 0)
	if err != nil {
		return di.Config{}, err
	}

	return di.Config{
		MessagingPlatform:    getEnv("MESSAGING_PLATFORM", di.PlatformMessenger),
		MessengerAccessToken: os.Getenv("MESSENGER_ACCESS_TOKEN"),
		MessengerAPIURL:      getEnv("MESSENGER_API_URL", messenger.DefaultAPIURL),
		LineChannelToken:     os.Getenv("LINE_CHANNEL_TOKEN"),
		RecipientIDs:         getEnvList("RECIPIENT_IDS"),
		SenderAllowlist:      getEnvList("SENDER_ALLOWLIST"),

		GmailUserID:           getEnv("GMAIL_USER_ID", "me"),
		GmailLabelID:          getEnv("GMAIL_LABEL_ID", "INBOX"),
		GmailCredentialsPath:  getEnv("GMAIL_CREDENTIALS_PATH", "credentials.json"),
		GmailTokenPath:        getEnv("GMAIL_TOKEN_PATH", "token.json"),
		GmailBootstrapHistory: bootstrap,
		GmailPubSubTopic:      os.Getenv("GMAIL_PUBSUB_TOPIC"),
		GmailWatchInterval:    watchInterval,

		WatermarkBackend: getEnv("WATERMARK_BACKEND", di.BackendFile),
		WatermarkPath:    getEnv("WATERMARK_PATH", "last_history_id.txt"),
		SQLitePath:       getEnv("SQLITE_PATH", "mailbridge.db"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           getEnv("DB_NAME", "mailbridge"),

		HTTPTimeout:        httpTimeout,
		ResolveConcurrency: concurrency,
		MaxTextLength:      maxTextLength,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
