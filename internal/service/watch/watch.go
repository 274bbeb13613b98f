package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
)

const DefaultRenewInterval = 24 * time.Hour

// Renewer keeps the Gmail push subscription alive. Gmail drops a watch
// after seven days unless it is renewed.
type Renewer struct {
	gmailRepo gmail_repo.GmailRepo
	topic     string
	labelIDs  []string
	interval  time.Duration
}

func NewRenewer(gmailRepo gmail_repo.GmailRepo, topic, labelID string, interval time.Duration) *Renewer {
	if interval <= 0 {
		interval = DefaultRenewInterval
	}
	var labelIDs []string
	if labelID != "" {
		labelIDs = []string{labelID}
	}
	return &Renewer{
		gmailRepo: gmailRepo,
		topic:     topic,
		labelIDs:  labelIDs,
		interval:  interval,
	}
}

func (r *Renewer) Enabled() bool {
	return r.topic != ""
}

func (r *Renewer) Renew(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	result, err := r.gmailRepo.WatchMailbox(ctx, r.topic, r.labelIDs)
	if err != nil {
		return fmt.Errorf("failed to renew gmail watch: %w", err)
	}
	slog.Info("Gmail watch setup successfully",
		"topic", r.topic,
		"history_id", result.HistoryID,
		"expiration", result.Expiration,
	)
	return nil
}

// Run renews immediately and then on every interval until ctx is done.
// notReady errors are logged at info level, since the watch cannot be set up
// before the mailbox has been authorized.
func (r *Renewer) Run(ctx context.Context, notReady error) {
	if !r.Enabled() {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Renew(ctx); err != nil {
			if notReady != nil && errors.Is(err, notReady) {
				slog.Info("skipping gmail watch renewal until authorized")
			} else {
				slog.Warn("failed to setup Gmail watch, push notifications may not work", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
