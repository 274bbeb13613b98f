package main

import (
	"strings"
	"testing"
	"time"
)

func TestGetEnvList(t *testing.T) {
	t.Setenv("RECIPIENT_IDS", " psid-1, ,psid-2,,")

	got := getEnvList("RECIPIENT_IDS")
	if strings.Join(got, "|") != "psid-1|psid-2" {
		t.Fatalf("unexpected list: %v", got)
	}

	t.Setenv("RECIPIENT_IDS", "")
	if got := getEnvList("RECIPIENT_IDS"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestGetEnvIntAndDuration(t *testing.T) {
	t.Setenv("RESOLVE_CONCURRENCY", "")
	if n, err := getEnvInt("RESOLVE_CONCURRENCY", 10); err != nil || n != 10 {
		t.Fatalf("expected default 10, got %d, %v", n, err)
	}

	t.Setenv("RESOLVE_CONCURRENCY", "3")
	if n, err := getEnvInt("RESOLVE_CONCURRENCY", 10); err != nil || n != 3 {
		t.Fatalf("expected 3, got %d, %v", n, err)
	}

	t.Setenv("RESOLVE_CONCURRENCY", "many")
	if _, err := getEnvInt("RESOLVE_CONCURRENCY", 10); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}

	t.Setenv("HTTP_TIMEOUT", "1500ms")
	if d, err := getEnvDuration("HTTP_TIMEOUT", time.Second); err != nil || d != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v, %v", d, err)
	}

	t.Setenv("HTTP_TIMEOUT", "soon")
	if _, err := getEnvDuration("HTTP_TIMEOUT", time.Second); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"MESSAGING_PLATFORM", "GMAIL_LABEL_ID", "GMAIL_BOOTSTRAP_HISTORY_ID",
		"WATERMARK_BACKEND", "HTTP_TIMEOUT", "RESOLVE_CONCURRENCY", "MAX_TEXT_LENGTH",
		"GMAIL_WATCH_RENEW_INTERVAL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("SENDER_ALLOWLIST", "boss@example.com,ops@example.com")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.MessagingPlatform != "messenger" || cfg.WatermarkBackend != "file" {
		t.Fatalf("unexpected defaults: platform=%q backend=%q", cfg.MessagingPlatform, cfg.WatermarkBackend)
	}
	if cfg.GmailLabelID != "INBOX" || cfg.GmailBootstrapHistory != 1 {
		t.Fatalf("unexpected gmail defaults: label=%q bootstrap=%d", cfg.GmailLabelID, cfg.GmailBootstrapHistory)
	}
	if cfg.HTTPTimeout != 10*time.Second || cfg.ResolveConcurrency != 10 || cfg.GmailWatchInterval != 24*time.Hour {
		t.Fatalf("unexpected tuning defaults: %+v", cfg)
	}
	if len(cfg.SenderAllowlist) != 2 {
		t.Fatalf("expected 2 allowed senders, got %v", cfg.SenderAllowlist)
	}
}

func TestLoadConfigRejectsBadBootstrap(t *testing.T) {
	t.Setenv("GMAIL_BOOTSTRAP_HISTORY_ID", "-5")

	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for invalid bootstrap history id")
	}
}
