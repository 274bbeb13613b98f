package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
	watermark_repo "github.com/huavcjj/mailbridge/internal/domain/watermark"
	"github.com/huavcjj/mailbridge/internal/service/history"
	"golang.org/x/sync/errgroup"
)

const (
	defaultResolveConcurrency = 10
	emptyBodyText             = "(no text content)"
)

type HistoryFetcher interface {
	Fetch(ctx context.Context, hint watermark_repo.Cursor) (*history.Batch, error)
}

type MessageResolver interface {
	Resolve(ctx context.Context, messageID string) (*gmail_repo.Message, error)
}

type Dispatcher interface {
	DeliverBatch(recipientID string, texts ...string) error
}

type Config struct {
	Recipients         []string
	ResolveConcurrency int
	MaxTextLength      int
}

type Service struct {
	fetcher    HistoryFetcher
	resolver   MessageResolver
	filter     *SenderFilter
	dispatcher Dispatcher

	recipients         []string
	resolveConcurrency int
	maxTextLength      int

	inflight sync.WaitGroup
}

func NewService(fetcher HistoryFetcher, resolver MessageResolver, filter *SenderFilter, dispatcher Dispatcher, cfg Config) *Service {
	concurrency := cfg.ResolveConcurrency
	if concurrency <= 0 {
		concurrency = defaultResolveConcurrency
	}
	return &Service{
		fetcher:            fetcher,
		resolver:           resolver,
		filter:             filter,
		dispatcher:         dispatcher,
		recipients:         append([]string(nil), cfg.Recipients...),
		resolveConcurrency: concurrency,
		maxTextLength:      cfg.MaxTextLength,
	}
}

// HandlePush processes a push notification in the background and returns
// immediately.
func (s *Service) HandlePush(hint watermark_repo.Cursor) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.ProcessPush(context.Background(), hint)
	}()
}

// Wait blocks until background push processing has finished or ctx is done.
// HandlePush must no longer be called once Wait starts; stop the HTTP server
// first.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessPush fetches the history since the last cursor and fans every
// allow-listed message out to all recipients. Failures are logged and never
// returned.
func (s *Service) ProcessPush(ctx context.Context, hint watermark_repo.Cursor) {
	log := slog.With("push_id", uuid.NewString())

	batch, err := s.fetcher.Fetch(ctx, hint)
	if err != nil {
		log.Error("failed to fetch history, dropping push", "hint_history_id", hint.String(), "error", err)
		return
	}

	if len(batch.Events) == 0 {
		log.Warn("empty history", "history_id", batch.Cursor.String())
		return
	}

	log.Info("history fetched",
		"events", len(batch.Events),
		"history_id", batch.Cursor.String(),
		"cold_start", batch.ColdStart,
	)

	messages := s.resolveAll(ctx, log, batch.Events)

	for _, msg := range messages {
		if msg == nil {
			continue
		}
		s.forward(log, msg)
	}
}

// resolveAll fetches the primary message of each event. Results keep the
// event order; failed lookups leave a nil slot.
func (s *Service) resolveAll(ctx context.Context, log *slog.Logger, events []gmail_repo.HistoryEvent) []*gmail_repo.Message {
	messages := make([]*gmail_repo.Message, len(events))

	var g errgroup.Group
	g.SetLimit(s.resolveConcurrency)
	for i, event := range events {
		if len(event.MessageIDs) == 0 {
			continue
		}
		messageID := event.MessageIDs[0]
		g.Go(func() error {
			msg, err := s.resolver.Resolve(ctx, messageID)
			if err != nil {
				log.Error("failed to resolve message", "message_id", messageID, "history_event_id", event.ID, "error", err)
				return nil
			}
			messages[i] = msg
			return nil
		})
	}
	_ = g.Wait()

	return messages
}

func (s *Service) forward(log *slog.Logger, msg *gmail_repo.Message) {
	sender, ok := s.filter.Allowed(msg)
	if !ok {
		log.Debug("sender not allowed, skipping message", "message_id", msg.ID, "sender", sender)
		return
	}

	body, err := decodeBody(msg)
	if err != nil {
		log.Warn("failed to decode message body, using snippet", "message_id", msg.ID, "error", err)
		body = ""
	}
	if body == "" {
		body = msg.Snippet
	}
	if body == "" {
		body = emptyBodyText
	}

	texts := append([]string{fmt.Sprintf("📧 New mail from %s:", sender)}, splitText(body, s.maxTextLength)...)

	for _, recipientID := range s.recipients {
		if err := s.dispatcher.DeliverBatch(recipientID, texts...); err != nil {
			log.Error("failed to enqueue notification", "recipient_id", recipientID, "message_id", msg.ID, "error", err)
		}
	}

	log.Info("notification enqueued",
		"message_id", msg.ID,
		"sender", sender,
		"recipients", len(s.recipients),
	)
}
